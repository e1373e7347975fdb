package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/inputpoint"
	"github.com/waftester/injectscan/pkg/jsonutil"
	"github.com/waftester/injectscan/pkg/payloads"
	"github.com/waftester/injectscan/pkg/report"
	"github.com/waftester/injectscan/pkg/scan"
	"github.com/waftester/injectscan/pkg/ui"
)

func TestMain(m *testing.M) {
	ui.SetNoColor(true)
	os.Exit(m.Run())
}

// runCLI runs the command line and returns exit code, stdout and stderr.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// quietConfig writes a config with no pacing and a private store.
func quietConfig(t *testing.T) (path, storeDir string) {
	t.Helper()
	dir := t.TempDir()
	storeDir = filepath.Join(dir, "store")
	path = filepath.Join(dir, "injectscan.yaml")
	body := fmt.Sprintf(`crawl:
  delay: 0s
  jitter: 0s
test:
  delay: 0s
store:
  dir: %s
`, storeDir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, storeDir
}

// reflectingTarget echoes q into an HTML page.
func reflectingTarget(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><p>Results for %s</p></body></html>", r.URL.Query().Get("q"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{"version", []string{"version"}, exitOK, defaults.Version, ""},
		{"help", []string{"help"}, exitOK, "Commands:", ""},
		{"no args", nil, exitUsage, "", "Usage:"},
		{"unknown command", []string{"frobnicate"}, exitUsage, "", `unknown command "frobnicate"`},
		{"scan without target", []string{"scan"}, exitUsage, "", "target URL is required"},
		{"scan bad format", []string{"scan", "-u", "http://a.test/", "--format", "xml"}, exitUsage, "", "unknown format"},
		{"scan pdf to stdout", []string{"scan", "-u", "http://a.test/", "--format", "pdf"}, exitUsage, "", "output file"},
		{"bad flag", []string{"crawl", "--no-such-flag"}, exitUsage, "", "no-such-flag"},
		{"flag help", []string{"payloads", "-h"}, exitOK, "", "Usage: injectscan payloads"},
		{"jobs unknown action", []string{"jobs", "explode"}, exitUsage, "", "unknown action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, tt.args...)
			assert.Equal(t, tt.wantCode, code, "stderr: %s", stderr)
			assert.Contains(t, stdout, tt.wantOut)
			assert.Contains(t, stderr, tt.wantErr)
		})
	}
}

func TestStringSliceFlag(t *testing.T) {
	var s stringSliceFlag
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&s, "scanners", "")
	require.NoError(t, fs.Parse([]string{"--scanners", "xss, sqli", "--scanners", "xss,,"}))
	assert.Equal(t, stringSliceFlag{"xss", "sqli", "xss"}, s)
	assert.Equal(t, "xss,sqli,xss", s.String())
}

func TestHeaderFlag(t *testing.T) {
	h := headerFlag{}
	require.NoError(t, h.Set("Authorization: Bearer abc"))
	require.NoError(t, h.Set("X-Empty:"))
	assert.Equal(t, headerFlag{"Authorization": "Bearer abc", "X-Empty": ""}, h)

	assert.Error(t, h.Set("no-colon"))
	assert.Error(t, h.Set(": value"))
}

func TestOptions_ConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`test:
  concurrency: 4
crawl:
  max_pages: 12
http:
  headers:
    X-From-File: "1"
`), 0o600))

	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	var o options
	o.registerCommon(fs)
	o.registerHTTP(fs)
	o.registerEngine(fs)
	o.registerScan(fs)
	require.NoError(t, fs.Parse([]string{
		"--config", path,
		"-c", "7",
		"--delay", "250ms",
		"-H", "X-From-Flag: 2",
		"--scanners", "sqli",
		"--daemon", "http://127.0.0.1:8090",
	}))

	cfg, err := o.config(fs)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Test.Concurrency, "flag overrides file")
	assert.Equal(t, 12, cfg.Crawl.MaxPages, "unset flag keeps file value")
	assert.Equal(t, 250*time.Millisecond, cfg.Crawl.Delay)
	assert.Equal(t, 250*time.Millisecond, cfg.Test.Delay)
	assert.Equal(t, map[string]string{"X-From-File": "1", "X-From-Flag": "2"}, cfg.HTTP.Headers)
	assert.Equal(t, []string{"sqli"}, cfg.Scan.Scanners)
	assert.True(t, cfg.Delegated())
	assert.Equal(t, defaults.CrawlConcurrency, cfg.Crawl.Concurrency, "default survives")
}

func TestOptions_ConfigInvalid(t *testing.T) {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	var o options
	o.registerCommon(fs)
	o.registerEngine(fs)
	require.NoError(t, fs.Parse([]string{"-c", "-1"}))

	_, err := o.config(fs)
	assert.Error(t, err)
}

func TestRunPayloads(t *testing.T) {
	t.Run("json family", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "payloads", "--family", "sqli", "--json")
		require.Equal(t, exitOK, code, stderr)

		var got []payloads.Payload
		require.NoError(t, jsonutil.Unmarshal([]byte(stdout), &got))
		assert.Len(t, got, len(payloads.Default().Select(finding.FamilySQLi)))
		for _, p := range got {
			assert.Equal(t, finding.FamilySQLi, p.Family())
		}
	})

	t.Run("table", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "payloads")
		require.Equal(t, exitOK, code, stderr)
		assert.Contains(t, stdout, string(finding.CategoryReflected))
		assert.Contains(t, stdout, string(finding.CategoryTimeBased))
		assert.Contains(t, stdout, fmt.Sprintf("%d payload(s)", payloads.Default().Len()))
	})

	t.Run("unknown family", func(t *testing.T) {
		code, _, stderr := runCLI(t, "payloads", "--family", "csrf")
		assert.Equal(t, exitUsage, code)
		assert.Contains(t, stderr, "csrf")
	})
}

func TestRunCrawl_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
<form name="login" action="/login" method="post"><input name="user"><input name="pass" type="password"></form>
</body></html>`)
	}))
	defer srv.Close()
	cfgPath, _ := quietConfig(t)

	code, stdout, stderr := runCLI(t, "crawl", "--config", cfgPath, "--json", "-u", srv.URL+"/")
	require.Equal(t, exitOK, code, stderr)

	var points []inputpoint.InputPoint
	require.NoError(t, jsonutil.Unmarshal([]byte(stdout), &points))
	var form *inputpoint.InputPoint
	for i := range points {
		if points[i].Source == inputpoint.SourceForm {
			form = &points[i]
		}
	}
	require.NotNil(t, form, "points: %+v", points)
	assert.Equal(t, inputpoint.POST, form.Method)
	assert.Equal(t, "login", form.FormName)
	assert.Equal(t, []string{"user", "pass"}, form.Params.Names())
}

func TestRunScan_ThenJobs(t *testing.T) {
	srv := reflectingTarget(t)
	cfgPath, _ := quietConfig(t)

	code, stdout, stderr := runCLI(t, "scan", "--config", cfgPath,
		"--scanners", "xss", "--format", "json", "-u", srv.URL+"/search?q=hello")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stderr, "completed")

	r, err := report.Decode([]byte(stdout))
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCompleted, r.Status)
	require.NotZero(t, r.Summary.Total)
	assert.Equal(t, finding.FamilyXSS, r.Findings[0].VulnerabilityType)
	assert.Equal(t, []string{"q"}, r.Findings[0].Parameters)

	t.Run("list", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "jobs", "list", "--config", cfgPath, "--json")
		require.Equal(t, exitOK, code, stderr)
		var jobs []scan.Job
		require.NoError(t, jsonutil.Unmarshal([]byte(stdout), &jobs))
		require.Len(t, jobs, 1)
		assert.Equal(t, r.JobID, jobs[0].ID)
	})

	t.Run("show markdown", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "jobs", "show", r.JobID, "--config", cfgPath, "--format", "md")
		require.Equal(t, exitOK, code, stderr)
		assert.Contains(t, stdout, r.JobID)
		assert.Contains(t, stdout, "Cross-Site Scripting")
	})

	t.Run("show to pdf file", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "report.pdf")
		code, _, stderr := runCLI(t, "jobs", "show", r.JobID, "--config", cfgPath, "--format", "pdf", "-o", out)
		require.Equal(t, exitOK, code, stderr)
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	})

	t.Run("delete", func(t *testing.T) {
		code, _, stderr := runCLI(t, "jobs", "delete", r.JobID, "--config", cfgPath)
		require.Equal(t, exitOK, code, stderr)

		code, _, stderr = runCLI(t, "jobs", "show", r.JobID, "--config", cfgPath)
		assert.Equal(t, exitError, code)
		assert.Contains(t, stderr, "not found")
	})
}

func TestRunScan_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(cancel)
		<-r.Context().Done()
	}))
	defer srv.Close()
	cfgPath, _ := quietConfig(t)

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"scan", "--config", cfgPath, "--format", "json", "-u", srv.URL + "/?q=1"}, &stdout, &stderr)
	assert.Equal(t, exitCanceled, code, stderr.String())

	r, err := report.Decode(stdout.Bytes())
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCanceled, r.Status)
	assert.Empty(t, r.Findings)
	assert.Contains(t, stderr.String(), "canceled")
}
