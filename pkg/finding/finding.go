package finding

import (
	"slices"
	"strings"
	"time"
)

// Form identifies the HTML form a finding came from.
type Form struct {
	Name   string `json:"name,omitempty"`
	ID     string `json:"id,omitempty"`
	Action string `json:"action,omitempty"`
}

// Finding is one confirmed, evidenced vulnerability at an input point.
// Findings are values; nothing mutates one after Normalize.
type Finding struct {
	URL                  string   `json:"url"`
	Method               string   `json:"method,omitempty"`
	VulnerabilityType    Family   `json:"vulnerabilityType"`
	PayloadCategory      Category `json:"payloadCategory,omitempty"`
	PayloadUsed          string   `json:"payloadUsed"`
	VulnerableParameters []string `json:"vulnerableParameters"`
	Severity             Severity `json:"severity"`
	Details              string   `json:"details"`
	Evidence             string   `json:"evidenceSnippet,omitempty"`
	Form                 *Form    `json:"formMetadata,omitempty"`

	// Probe names the request shape that triggered the hit
	// (query, form, path, synthetic, delegated).
	Probe          string    `json:"probe,omitempty"`
	ResponseTimeMs int64     `json:"responseTimeMs,omitempty"`
	DiscoveredAt   time.Time `json:"discoveredAt"`
}

// Normalize returns a copy with the parameter set sorted and de-duplicated
// and empty parameter names removed.
func (f Finding) Normalize() Finding {
	params := make([]string, 0, len(f.VulnerableParameters))
	for _, p := range f.VulnerableParameters {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, p)
		}
	}
	slices.Sort(params)
	f.VulnerableParameters = slices.Compact(params)
	if f.Form != nil {
		form := *f.Form
		f.Form = &form
	}
	return f
}

// Validate checks the invariant that every emitted finding names at least
// one vulnerable parameter.
func (f Finding) Validate() error {
	for _, p := range f.VulnerableParameters {
		if strings.TrimSpace(p) != "" {
			return nil
		}
	}
	return ErrNoParameters
}

// Key is the de-duplication identity: URL, sorted parameter set and form
// identity. The payload is not part of the key, so the first payload to
// land on a parameter set wins.
func (f Finding) Key() string {
	n := f.Normalize()
	var b strings.Builder
	b.WriteString(n.URL)
	b.WriteByte('|')
	b.WriteString(strings.Join(n.VulnerableParameters, ","))
	b.WriteByte('|')
	if n.Form != nil {
		b.WriteString(n.Form.Name)
		b.WriteByte('#')
		b.WriteString(n.Form.ID)
		b.WriteByte('@')
		b.WriteString(n.Form.Action)
	}
	return b.String()
}

// IsClean reports whether f is the explicit no-vulnerabilities record.
func (f Finding) IsClean() bool {
	return f.VulnerabilityType == FamilyNone
}

// NoVulnerabilities is the record returned when a completed scan confirmed
// nothing, so callers can tell "found nothing" from "did not run".
func NoVulnerabilities(target string, at time.Time) Finding {
	return Finding{
		URL:                  target,
		VulnerabilityType:    FamilyNone,
		VulnerableParameters: []string{},
		Severity:             Info,
		Details:              "No vulnerabilities found",
		DiscoveredAt:         at,
	}
}

// Less orders findings by descending severity, then URL, then key.
func Less(a, b Finding) bool {
	if sa, sb := a.Severity.Score(), b.Severity.Score(); sa != sb {
		return sa > sb
	}
	if a.URL != b.URL {
		return a.URL < b.URL
	}
	return a.Key() < b.Key()
}

// Sort orders fs in place by Less, keeping the relative order of equal
// findings.
func Sort(fs []Finding) {
	slices.SortStableFunc(fs, func(a, b Finding) int {
		switch {
		case Less(a, b):
			return -1
		case Less(b, a):
			return 1
		}
		return 0
	})
}
