// Package inputpoint models a discovered place where attacker-controlled
// data enters the target: a URL's query parameters or an HTML form's
// fields. Input points are values; they are never mutated after the crawler
// creates them.
package inputpoint

import (
	"slices"
	"strings"

	"github.com/waftester/injectscan/pkg/finding"
)

// Method is the HTTP method used to submit an input point.
type Method string

const (
	GET  Method = "GET"
	POST Method = "POST"
)

// Source records how an input point was discovered.
type Source string

const (
	SourceQuery     Source = "query"     // the page URL's own query string
	SourceFallback  Source = "fallback"  // common parameter names on a query-less URL
	SourceForm      Source = "form"      // an HTML <form>
	SourceSynthetic Source = "synthetic" // POST surface added when the crawl found no form
)

// Param is one named parameter and its original value.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Params is an ordered parameter list. Names are unique.
type Params []Param

// ParamsFromNames builds Params with empty values, skipping duplicates.
func ParamsFromNames(names ...string) Params {
	var p Params
	for _, n := range names {
		p = p.Add(n, "")
	}
	return p
}

// Add returns p with name appended unless it is already present or empty.
func (p Params) Add(name, value string) Params {
	if name == "" || p.Has(name) {
		return p
	}
	return append(p, Param{Name: name, Value: value})
}

// Has reports whether name is present.
func (p Params) Has(name string) bool {
	return slices.ContainsFunc(p, func(x Param) bool { return x.Name == name })
}

// Get returns the value for name.
func (p Params) Get(name string) (string, bool) {
	for _, x := range p {
		if x.Name == name {
			return x.Value, true
		}
	}
	return "", false
}

// Names returns parameter names in declaration order.
func (p Params) Names() []string {
	names := make([]string, len(p))
	for i, x := range p {
		names[i] = x.Name
	}
	return names
}

// InputPoint is a candidate injection surface.
type InputPoint struct {
	URL        string `json:"url"`
	Method     Method `json:"method"`
	Params     Params `json:"parameters"`
	FormName   string `json:"formName,omitempty"`
	FormID     string `json:"formId,omitempty"`
	FormAction string `json:"formAction,omitempty"`
	Source     Source `json:"source"`
}

// Form returns the form identity, or nil when the point did not come from
// a form.
func (ip InputPoint) Form() *finding.Form {
	if ip.FormName == "" && ip.FormID == "" && ip.FormAction == "" {
		return nil
	}
	return &finding.Form{Name: ip.FormName, ID: ip.FormID, Action: ip.FormAction}
}

// Clone returns a deep copy.
func (ip InputPoint) Clone() InputPoint {
	ip.Params = slices.Clone(ip.Params)
	return ip
}

// KeyFunc computes the de-duplication identity of an input point.
type KeyFunc func(InputPoint) string

// KeyURLMethod identifies a point by URL and method.
func KeyURLMethod(ip InputPoint) string {
	return string(ip.Method) + " " + ip.URL
}

// KeyURLMethodParams also includes the sorted parameter names, so two forms
// posting to one action with different fields stay distinct.
func KeyURLMethodParams(ip InputPoint) string {
	names := ip.Params.Names()
	slices.Sort(names)
	return KeyURLMethod(ip) + " [" + strings.Join(names, ",") + "]"
}
