package detect

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/payloads"
)

var (
	scriptPayload = payloads.Payload{Category: finding.CategoryReflected, Value: "<script>alert(1)</script>"}
	quotePayload  = payloads.Payload{Category: finding.CategoryErrorBased, Value: "'"}
	sleepPayload  = payloads.Payload{Category: finding.CategoryTimeBased, Value: "' OR SLEEP(5)-- -"}
)

func TestReflection(t *testing.T) {
	d := NewReflection()
	tests := []struct {
		name    string
		payload payloads.Payload
		body    string
		want    Verdict
		reason  string
	}{
		{
			name:    "unescaped",
			payload: scriptPayload,
			body:    "<p>Results for <script>alert(1)</script></p>",
			want:    Vulnerable,
			reason:  "reflected unescaped",
		},
		{
			name:    "case differs",
			payload: scriptPayload,
			body:    "<p><SCRIPT>ALERT(1)</SCRIPT></p>",
			want:    Vulnerable,
		},
		{
			name:    "only escaped",
			payload: scriptPayload,
			body:    "<p>Results for &lt;script&gt;alert(1)&lt;/script&gt;</p>",
			want:    NotVulnerable,
		},
		{
			name:    "verbatim next to escaped copy",
			payload: scriptPayload,
			body:    "<p>&lt;script&gt;alert(1)&lt;/script&gt;</p><!-- <script>alert(1)</script> -->",
			want:    NotVulnerable,
		},
		{
			name:    "inside script block",
			payload: payloads.Payload{Category: finding.CategoryDOM, Value: "';alert(1);//"},
			body:    "<script>var q = '';alert(1);//';</script>",
			want:    Vulnerable,
			reason:  "reflected in script block",
		},
		{
			name:    "after closed script block",
			payload: payloads.Payload{Category: finding.CategoryDOM, Value: "probe123"},
			body:    "<script>var a = 1;</script><p>probe123</p>",
			want:    NotVulnerable,
		},
		{
			name:    "inside event handler",
			payload: payloads.Payload{Category: finding.CategoryReflected, Value: "alert(1)"},
			body:    `<img src="x" onerror="alert(1)">`,
			want:    Vulnerable,
			reason:  "reflected in event handler",
		},
		{
			name:    "inside javascript href",
			payload: payloads.Payload{Category: finding.CategoryReflected, Value: "alert(document.domain)"},
			body:    `<a href="javascript:alert(document.domain)">go</a>`,
			want:    Vulnerable,
			reason:  "reflected in javascript: href",
		},
		{
			name:    "url encoded reflection",
			payload: scriptPayload,
			body:    `<a href="/next?q=%3Cscript%3Ealert%281%29%3C%2Fscript%3E">next</a>`,
			want:    Vulnerable,
			reason:  "reflected url-encoded",
		},
		{
			name:    "absent",
			payload: scriptPayload,
			body:    "<p>No results</p>",
			want:    NotVulnerable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.payload, Response{Status: 200, Body: tt.body})
			assert.Equal(t, tt.want, got.Verdict, got.Reason)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, got.Reason)
			}
			if got.Vulnerable() {
				assert.NotEmpty(t, got.Evidence)
			}
		})
	}
}

func TestReflection_EvidenceTruncated(t *testing.T) {
	body := "<p>" + scriptPayload.Value + strings.Repeat("x", 1000) + "</p>"
	got := NewReflection().Detect(scriptPayload, Response{Status: 200, Body: body})
	assert.True(t, got.Vulnerable())
	assert.Len(t, got.Evidence, defaults.EvidenceLimit)
	assert.True(t, strings.HasPrefix(got.Evidence, scriptPayload.Value))
}

func TestChallengeSuppressesHits(t *testing.T) {
	suite := New(Config{Heuristic: true})
	pages := []Response{
		{Status: 200, Body: "<title>Attention Required! | Cloudflare</title>" + scriptPayload.Value},
		{Status: 200, Body: "<h1>Access Denied</h1><p>You have an error in your SQL syntax</p>" + scriptPayload.Value},
		{Status: 200, Body: `<div class="g-recaptcha"></div>` + scriptPayload.Value},
		{Status: 200, Body: "Checking your browser before accessing. " + scriptPayload.Value},
		{Status: 403, Body: scriptPayload.Value + " SQLSTATE[42000]"},
		{Status: 429, Body: scriptPayload.Value},
	}
	for _, p := range []payloads.Payload{scriptPayload, quotePayload, sleepPayload} {
		for _, resp := range pages {
			resp.Elapsed = 10 * time.Second
			got := suite.Detect(p, resp)
			assert.Equal(t, Undetermined, got.Verdict, "payload %q body %q", p.Value, resp.Body)
			assert.False(t, got.Vulnerable())
		}
	}
}

func TestErrorTime_Signatures(t *testing.T) {
	d := NewErrorTime(DefaultConfig())
	tests := []struct {
		body   string
		reason string
	}{
		{"You have an error in your SQL syntax; check the manual that corresponds to your MySQL server", "database error (mysql)"},
		{"ERROR:  syntax error at or near \"'\"", "database error (postgresql)"},
		{"Unclosed quotation mark after the character string ''.", "database error (mssql)"},
		{"ORA-01756: quoted string not properly terminated", "database error (oracle)"},
		{"SQLSTATE[HY000]: General error", "database error (sqlstate)"},
		{"Fatal error: Uncaught PDOException in /var/www/index.php", "database error (pdo)"},
		{"org.hibernate.exception.JDBCException: could not execute query", "database error (jdbc)"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			got := d.Detect(quotePayload, Response{Status: 500, Body: "<pre>" + tt.body + "</pre>"})
			assert.True(t, got.Vulnerable())
			assert.Equal(t, tt.reason, got.Reason)
			assert.NotEmpty(t, got.Evidence)
		})
	}

	got := d.Detect(quotePayload, Response{Status: 200, Body: "<p>Welcome back</p>"})
	assert.Equal(t, NotVulnerable, got.Verdict)
}

func TestErrorTime_Timing(t *testing.T) {
	d := NewErrorTime(DefaultConfig())

	slow := d.Detect(sleepPayload, Response{Status: 200, Body: "ok", Elapsed: 3500 * time.Millisecond})
	assert.True(t, slow.Vulnerable())
	assert.Equal(t, "time delay", slow.Reason)
	assert.Contains(t, slow.Evidence, "3500ms")

	fast := d.Detect(sleepPayload, Response{Status: 200, Body: "ok", Elapsed: 500 * time.Millisecond})
	assert.False(t, fast.Vulnerable())

	slowNoDelayPayload := d.Detect(quotePayload, Response{Status: 200, Body: "ok", Elapsed: 3500 * time.Millisecond})
	assert.False(t, slowNoDelayPayload.Vulnerable())

	custom := NewErrorTime(Config{TimeThreshold: time.Second})
	assert.True(t, custom.Detect(sleepPayload, Response{Body: "ok", Elapsed: 1500 * time.Millisecond}).Vulnerable())
}

func TestErrorTime_Heuristic(t *testing.T) {
	body := "<p>Login as admin</p>"

	off := NewErrorTime(DefaultConfig())
	assert.False(t, off.Detect(quotePayload, Response{Status: 200, Body: body}).Vulnerable())

	on := NewErrorTime(Config{Heuristic: true})
	got := on.Detect(quotePayload, Response{Status: 200, Body: body})
	assert.True(t, got.Vulnerable())
	assert.Equal(t, "heuristic token admin", got.Reason)

	custom := NewErrorTime(Config{Heuristic: true, HeuristicTokens: []string{" Secret "}})
	assert.False(t, custom.Detect(quotePayload, Response{Body: body}).Vulnerable())
	assert.True(t, custom.Detect(quotePayload, Response{Body: "top SECRET data"}).Vulnerable())
}

func TestSuite_DispatchesByFamily(t *testing.T) {
	suite := New(DefaultConfig())
	body := "<p><script>alert(1)</script></p>"

	assert.True(t, suite.Detect(scriptPayload, Response{Status: 200, Body: body}).Vulnerable())
	assert.False(t, suite.Detect(quotePayload, Response{Status: 200, Body: body}).Vulnerable())
	assert.False(t, suite.Detect(payloads.Payload{Category: "bogus", Value: "x"}, Response{Body: "x"}).Vulnerable())
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "", snippet("abc", 5))
	assert.Equal(t, "bc", snippet("abc", 1))
	long := strings.Repeat("é", 150)
	s := snippet(long, 0)
	assert.LessOrEqual(t, len(s), defaults.EvidenceLimit)
	assert.True(t, strings.HasSuffix(s, "é"))
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "vulnerable", Vulnerable.String())
	assert.Equal(t, "undetermined", Undetermined.String())
	assert.Equal(t, "not-vulnerable", NotVulnerable.String())
}
