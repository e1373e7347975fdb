package injector

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/inputpoint"
)

// Probe names recorded on findings.
const (
	ProbeQuery     = "query"
	ProbeForm      = "form"
	ProbePath      = "path"
	ProbeSynthetic = "synthetic"
)

// PathParam is the parameter name reported for path-segment hits.
const PathParam = "path-segment"

// attempt is one request shape for a unit of work.
type attempt struct {
	probe  string
	method inputpoint.Method
	target string
	params []string

	body string
}

func (a attempt) request(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if a.method == inputpoint.POST {
		body = strings.NewReader(a.body)
	}
	req, err := http.NewRequestWithContext(ctx, string(a.method), a.target, body)
	if err != nil {
		return nil, err
	}
	if a.method == inputpoint.POST {
		req.Header.Set("Content-Type", defaults.ContentTypeForm)
	}
	return req, nil
}

// attempts lists the request shapes for u in the order they are tried:
// one per declared parameter, then the path-segment and synthetic-query
// probes for GET points.
func (t *Tester) attempts(u unit) []attempt {
	ip, value := u.point, u.payload.Value
	target, err := url.Parse(ip.URL)
	if err != nil {
		return nil
	}

	var out []attempt
	for _, name := range ip.Params.Names() {
		switch ip.Method {
		case inputpoint.POST:
			out = append(out, formAttempt(ip, name, value))
		default:
			out = append(out, queryAttempt(target, name, value))
		}
	}
	if ip.Method != inputpoint.GET {
		return out
	}
	if t.cfg.PathProbe {
		out = append(out, pathAttempt(target, value))
	}
	if t.cfg.SyntheticProbe && target.RawQuery == "" {
		out = append(out, syntheticAttempt(target, t.cfg.SyntheticParams, value))
	}
	return out
}

// queryAttempt substitutes one query parameter of target with value.
func queryAttempt(target *url.URL, name, value string) attempt {
	u := *target
	q := u.Query()
	q.Set(name, value)
	u.RawQuery = q.Encode()
	return attempt{probe: ProbeQuery, method: inputpoint.GET, target: u.String(), params: []string{name}}
}

// formAttempt posts value in name and a benign placeholder in every other
// field.
func formAttempt(ip inputpoint.InputPoint, name, value string) attempt {
	form := url.Values{}
	for _, field := range ip.Params.Names() {
		switch {
		case field == name:
			form.Set(field, value)
		case strings.Contains(strings.ToLower(field), "json"):
			form.Set(field, "{}")
		default:
			form.Set(field, "")
		}
	}
	return attempt{probe: ProbeForm, method: inputpoint.POST, target: ip.URL, params: []string{name}, body: form.Encode()}
}

// pathAttempt appends the escaped value as an extra path segment.
func pathAttempt(target *url.URL, value string) attempt {
	u := *target
	u.RawQuery = ""
	u.Fragment = ""
	raw := strings.TrimSuffix(u.String(), "/") + "/" + url.PathEscape(value)
	return attempt{probe: ProbePath, method: inputpoint.GET, target: raw, params: []string{PathParam}}
}

// syntheticAttempt appends every synthetic parameter carrying value.
func syntheticAttempt(target *url.URL, names []string, value string) attempt {
	u := *target
	q := url.Values{}
	for _, n := range names {
		q.Set(n, value)
	}
	u.RawQuery = q.Encode()
	return attempt{probe: ProbeSynthetic, method: inputpoint.GET, target: u.String(), params: append([]string(nil), names...)}
}

// firstHit runs try over items in order and returns the first successful
// result. It stops early when ctx ends.
func firstHit[T, R any](ctx context.Context, items []T, try func(context.Context, T) (R, bool)) (R, bool) {
	var zero R
	for _, item := range items {
		if ctx.Err() != nil {
			return zero, false
		}
		if r, ok := try(ctx, item); ok {
			return r, true
		}
	}
	return zero, false
}
