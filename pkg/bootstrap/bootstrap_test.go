package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/injectscan/pkg/config"
	"github.com/waftester/injectscan/pkg/delegated"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/inputpoint"
	"github.com/waftester/injectscan/pkg/payloads"
	"github.com/waftester/injectscan/pkg/scan"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Store.Dir = t.TempDir()
	cfg.Crawl.Delay, cfg.Crawl.Jitter, cfg.Test.Delay = 0, 0, 0
	return cfg
}

func TestBuild_Defaults(t *testing.T) {
	rt, err := Build(testConfig(t), nil)
	require.NoError(t, err)

	assert.Equal(t, payloads.Default().Len(), rt.Library.Len())
	assert.Equal(t, finding.Families, rt.Scanners)
	assert.IsType(t, &scan.CrawlTestEngine{}, rt.Engine)
	assert.NotNil(t, rt.Orchestrator)
	assert.NotNil(t, rt.Metrics)
	assert.NotNil(t, CrawlerConfig(rt.Config).Key)
}

func TestBuild_Delegated(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.URL = "http://127.0.0.1:8090"
	rt, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &delegated.Engine{}, rt.Engine)
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.Concurrency = 0
	_, err := Build(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLibrary_FileAndTampers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "payloads.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`payloads:
  - category: reflected-xss
    value: "<script>alert(1)</script>"
  - category: error-based-sqli
    value: "' OR 1=1"
`), 0o644))
	script := filepath.Join(dir, "space2comment.tengo")
	require.NoError(t, os.WriteFile(script, []byte(`text := import("text")
transform := func(p) { return text.replace(p, " ", "/**/", -1) }
`), 0o644))

	lib, err := Library(config.Payloads{File: file, TamperScripts: []string{script}})
	require.NoError(t, err)
	assert.Greater(t, lib.Len(), 2)

	var values []string
	for _, p := range lib.All() {
		values = append(values, p.Value)
	}
	assert.Contains(t, values, "'/**/OR/**/1=1")

	_, err = Library(config.Payloads{TamperScripts: []string{filepath.Join(dir, "missing.tengo")}})
	assert.Error(t, err)
}

func TestMappers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Test.PathProbe = false
	cfg.Detect.Heuristic = true
	cfg.HTTP.UserAgent = "custom/1.0"

	assert.False(t, InjectorConfig(cfg).PathProbe)
	assert.True(t, DetectConfig(cfg).Heuristic)
	assert.Equal(t, "custom/1.0", HTTPConfig(cfg).UserAgent)
	ip := inputpoint.InputPoint{URL: "http://a.test/", Method: inputpoint.GET, Params: inputpoint.ParamsFromNames("q")}
	assert.Equal(t, inputpoint.KeyURLMethodParams(ip), CrawlerConfig(cfg).Key(ip))
}

func TestRuntime_ScanEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><p>Results for %s</p></body></html>", r.URL.Query().Get("q"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Scan.Scanners = []string{"xss"}
	rt, err := Build(cfg, nil)
	require.NoError(t, err)

	out, err := rt.Orchestrator.Run(context.Background(), rt.Request(srv.URL+"/search?q=hello", false, nil))
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCompleted, out.Status)
	require.NotEmpty(t, out.Findings)
	assert.Equal(t, finding.FamilyXSS, out.Findings[0].VulnerabilityType)

	job, err := rt.Store.Get(out.JobID)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCompleted, job.Status)
	assert.Len(t, job.Findings, len(out.Findings))
}
