package mcpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/jsonutil"
	"github.com/waftester/injectscan/pkg/mcpserver"
	"github.com/waftester/injectscan/pkg/payloads"
	"github.com/waftester/injectscan/pkg/report"
	"github.com/waftester/injectscan/pkg/scan"
	"github.com/waftester/injectscan/pkg/store"
)

// fakeEngine returns canned findings and records what it was asked for.
type fakeEngine struct {
	mu       sync.Mutex
	found    func(target string) []finding.Finding
	families []finding.Family
	mode     scan.Mode
}

func (e *fakeEngine) Scan(_ context.Context, target string, mode scan.Mode, families []finding.Family) ([]finding.Finding, error) {
	e.mu.Lock()
	e.families = families
	e.mode = mode
	e.mu.Unlock()
	if e.found == nil {
		return nil, nil
	}
	return e.found(target), nil
}

func (e *fakeEngine) seen() ([]finding.Family, scan.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.families, e.mode
}

func sqliHit(target string) []finding.Finding {
	return []finding.Finding{{
		URL:                  target,
		VulnerabilityType:    finding.FamilySQLi,
		PayloadCategory:      finding.CategoryErrorBased,
		PayloadUsed:          "'",
		VulnerableParameters: []string{"id"},
		Severity:             finding.High,
		Details:              "SQL Injection in id",
		Evidence:             "You have an error in your SQL syntax",
		DiscoveredAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
}

// newTestSession wires a server over in-memory transports and returns the
// connected client session.
func newTestSession(t *testing.T, engine scan.Engine) (*mcp.ClientSession, *store.Memory) {
	t.Helper()

	jobs := store.NewMemory()
	srv := mcpserver.New(mcpserver.Config{
		Runner:  scan.NewOrchestrator(engine, jobs),
		Jobs:    jobs,
		Library: payloads.Default(),
	})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = srv.MCPServer().Run(ctx, serverTransport)
	}()

	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs, jobs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", result.Content[0])
	return text.Text, result.IsError
}

func decodeReport(t *testing.T, text string) report.Report {
	t.Helper()
	r, err := report.Decode([]byte(text))
	require.NoError(t, err)
	return r
}

func TestListTools(t *testing.T) {
	cs, _ := newTestSession(t, &fakeEngine{})

	result, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
		assert.NotNil(t, tool.InputSchema, tool.Name)
		assert.NotNil(t, tool.Annotations, tool.Name)
	}
	assert.ElementsMatch(t, []string{"scan", "list_payloads", "get_job"}, names)
}

func TestScanTool(t *testing.T) {
	engine := &fakeEngine{found: sqliHit}
	cs, jobs := newTestSession(t, engine)

	text, isErr := callTool(t, cs, "scan", map[string]any{
		"target":   "http://example.test/item?id=1",
		"deep":     true,
		"scanners": []string{"sqli"},
	})
	require.False(t, isErr, text)

	r := decodeReport(t, text)
	assert.Equal(t, scan.StatusCompleted, r.Status)
	assert.Equal(t, scan.ModeDeep, r.Mode)
	assert.Equal(t, 1, r.Summary.Total)
	require.Len(t, r.Findings, 1)
	assert.Equal(t, []string{"id"}, r.Findings[0].Parameters)
	assert.Equal(t, "'", r.Findings[0].PayloadUsed)

	families, mode := engine.seen()
	assert.Equal(t, []finding.Family{finding.FamilySQLi}, families)
	assert.Equal(t, scan.ModeDeep, mode)

	job, err := jobs.Get(r.JobID)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCompleted, job.Status)
}

func TestScanTool_CleanTarget(t *testing.T) {
	cs, _ := newTestSession(t, &fakeEngine{})

	text, isErr := callTool(t, cs, "scan", map[string]any{"target": "http://example.test/"})
	require.False(t, isErr, text)

	r := decodeReport(t, text)
	assert.Equal(t, scan.StatusCompleted, r.Status)
	assert.Equal(t, scan.ModeShallow, r.Mode)
	assert.Zero(t, r.Summary.Total)
	require.Len(t, r.Findings, 1)
	assert.Equal(t, finding.Info, r.Findings[0].Severity)
}

func TestScanTool_Errors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing target", map[string]any{}, "target URL is required"},
		{"unsupported scheme", map[string]any{"target": "ftp://example.test/"}, "invalid"},
		{"unknown scanner", map[string]any{"target": "http://example.test/", "scanners": []string{"csrf"}}, "csrf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, _ := newTestSession(t, &fakeEngine{})
			text, isErr := callTool(t, cs, "scan", tt.args)
			assert.True(t, isErr)
			assert.Contains(t, text, tt.want)
		})
	}
}

func TestGetJobTool(t *testing.T) {
	cs, _ := newTestSession(t, &fakeEngine{found: sqliHit})

	text, isErr := callTool(t, cs, "scan", map[string]any{"target": "http://example.test/item?id=1"})
	require.False(t, isErr, text)
	scanned := decodeReport(t, text)

	text, isErr = callTool(t, cs, "get_job", map[string]any{"id": scanned.JobID})
	require.False(t, isErr, text)
	got := decodeReport(t, text)
	assert.Equal(t, scanned.JobID, got.JobID)
	assert.Equal(t, scanned.Findings, got.Findings)

	text, isErr = callTool(t, cs, "get_job", map[string]any{"id": "no-such-job"})
	assert.True(t, isErr)
	assert.Contains(t, text, "not found")

	text, isErr = callTool(t, cs, "get_job", map[string]any{})
	assert.True(t, isErr)
	assert.Contains(t, text, "id is required")
}

type payloadList struct {
	Total      int                      `json:"total"`
	Matched    int                      `json:"matched"`
	ByCategory map[finding.Category]int `json:"byCategory"`
	Payloads   []struct {
		Category finding.Category `json:"category"`
		Family   finding.Family   `json:"family"`
		Value    string           `json:"value"`
	} `json:"payloads"`
}

func TestListPayloadsTool(t *testing.T) {
	cs, _ := newTestSession(t, &fakeEngine{})
	lib := payloads.Default()

	t.Run("family filter", func(t *testing.T) {
		text, isErr := callTool(t, cs, "list_payloads", map[string]any{"family": "sqli", "limit": 1000})
		require.False(t, isErr, text)

		var got payloadList
		require.NoError(t, jsonutil.Unmarshal([]byte(text), &got))
		assert.Equal(t, lib.Len(), got.Total)
		assert.Equal(t, len(lib.Select(finding.FamilySQLi)), got.Matched)
		require.Len(t, got.Payloads, got.Matched)
		for _, p := range got.Payloads {
			assert.Equal(t, finding.FamilySQLi, p.Family)
		}
	})

	t.Run("category and limit", func(t *testing.T) {
		text, isErr := callTool(t, cs, "list_payloads", map[string]any{"category": "Reflected-XSS", "limit": 2})
		require.False(t, isErr, text)

		var got payloadList
		require.NoError(t, jsonutil.Unmarshal([]byte(text), &got))
		assert.Equal(t, lib.Counts()[finding.CategoryReflected], got.Matched)
		assert.LessOrEqual(t, len(got.Payloads), 2)
		for _, p := range got.Payloads {
			assert.Equal(t, finding.CategoryReflected, p.Category)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		text, isErr := callTool(t, cs, "list_payloads", map[string]any{"category": "ldap"})
		assert.True(t, isErr)
		assert.Contains(t, text, "unknown category")
	})
}

func TestHTTPHandler_Health(t *testing.T) {
	srv := mcpserver.New(mcpserver.Config{})
	ts := httptest.NewServer(srv.HTTPHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	srv.MarkReady()
	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/health", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
