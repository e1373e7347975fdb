package detect

import (
	"html"
	"net/url"
	"strings"

	"github.com/waftester/injectscan/pkg/payloads"
	"github.com/waftester/injectscan/pkg/regexcache"
)

var (
	eventHandlerTail = regexcache.MustGet(`\son[a-z]+\s*=\s*["']?[^"'>]*$`)
	jsHrefTail       = regexcache.MustGet(`\bhref\s*=\s*["']?\s*javascript:[^"'>]*$`)
)

// Reflection detects payloads echoed back without neutralization.
type Reflection struct{}

// NewReflection returns the reflection detector.
func NewReflection() *Reflection { return &Reflection{} }

// Detect checks, in order: the payload sits in a script block, event
// handler or javascript: href; the payload appears verbatim while its
// HTML-escaped form does not; the URL-encoded payload appears verbatim.
func (d *Reflection) Detect(p payloads.Payload, resp Response) Result {
	if marker, ok := Challenge(resp); ok {
		return undetermined(marker)
	}
	body := strings.ToLower(resp.Body)
	needle := strings.ToLower(p.Value)
	if needle == "" {
		return Result{}
	}
	evidenceSrc := resp.Body
	if len(evidenceSrc) != len(body) {
		evidenceSrc = body
	}

	for off := 0; ; {
		i := strings.Index(body[off:], needle)
		if i < 0 {
			break
		}
		at := off + i
		if ctx := dangerousContext(body[:at]); ctx != "" {
			return Result{Verdict: Vulnerable, Reason: "reflected in " + ctx, Evidence: snippet(evidenceSrc, at)}
		}
		off = at + len(needle)
	}

	if escaped := html.EscapeString(needle); escaped != needle {
		if at := strings.Index(body, needle); at >= 0 && !strings.Contains(body, escaped) {
			return Result{Verdict: Vulnerable, Reason: "reflected unescaped", Evidence: snippet(evidenceSrc, at)}
		}
	}

	if encoded := strings.ToLower(url.QueryEscape(p.Value)); encoded != needle {
		if at := strings.Index(body, encoded); at >= 0 {
			return Result{Verdict: Vulnerable, Reason: "reflected url-encoded", Evidence: snippet(evidenceSrc, at)}
		}
	}
	return Result{}
}

// dangerousContext names the executable context the text following prefix
// lands in, or returns "".
func dangerousContext(prefix string) string {
	if strings.LastIndex(prefix, "<script") > strings.LastIndex(prefix, "</script") {
		return "script block"
	}
	open := strings.LastIndex(prefix, "<")
	if open < 0 || open < strings.LastIndex(prefix, ">") {
		return ""
	}
	tag := prefix[open:]
	switch {
	case eventHandlerTail.MatchString(tag):
		return "event handler"
	case jsHrefTail.MatchString(tag):
		return "javascript: href"
	}
	return ""
}
