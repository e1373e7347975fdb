// Package report renders a finished scan job for people and tools. Field
// names in the JSON form are stable; optional fields are omitted when
// empty, and readers must tolerate their absence.
package report

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/jsonutil"
	"github.com/waftester/injectscan/pkg/scan"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("report: unknown format")

// Format selects a renderer.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatTable    Format = "table"
	FormatPDF      Format = "pdf"
)

// Formats lists the supported formats.
var Formats = []Format{FormatTable, FormatJSON, FormatMarkdown, FormatPDF}

// ParseFormat maps a name (case-insensitive; "markdown" is accepted) to a
// Format.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if f == "markdown" {
		f = FormatMarkdown
	}
	if slices.Contains(Formats, f) {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Entry is one reported finding.
type Entry struct {
	Severity          finding.Severity `json:"severity"`
	Details           string           `json:"details"`
	PayloadUsed       string           `json:"payloadUsed"`
	VulnerabilityType finding.Family   `json:"vulnerabilityType"`
	URL               string           `json:"url"`
	Parameters        []string         `json:"parameters"`
	Evidence          string           `json:"evidence,omitempty"`
	Form              *finding.Form    `json:"form,omitempty"`
}

// Summary counts real findings by severity. The explicit
// no-vulnerabilities record is not counted.
type Summary struct {
	Total      int                      `json:"total"`
	BySeverity map[finding.Severity]int `json:"bySeverity"`
}

// Report is the rendered view of a job.
type Report struct {
	JobID       string      `json:"jobId"`
	TargetURL   string      `json:"targetUrl"`
	Mode        scan.Mode   `json:"mode"`
	Status      scan.Status `json:"status"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	Error       string      `json:"error,omitempty"`
	Summary     Summary     `json:"summary"`
	Findings    []Entry     `json:"findings"`
}

// FromJob builds a report from a job.
func FromJob(job scan.Job) Report {
	r := Report{
		JobID:       job.ID,
		TargetURL:   job.TargetURL,
		Mode:        job.Mode,
		Status:      job.Status,
		CompletedAt: job.CompletedAt,
		Error:       job.Error,
		Summary:     Summary{BySeverity: make(map[finding.Severity]int)},
		Findings:    make([]Entry, 0, len(job.Findings)),
	}
	if !job.StartedAt.IsZero() {
		at := job.StartedAt
		r.StartedAt = &at
	}
	for _, f := range job.Findings {
		r.Findings = append(r.Findings, entryOf(f))
		if !f.IsClean() {
			r.Summary.Total++
			r.Summary.BySeverity[f.Severity]++
		}
	}
	return r
}

func entryOf(f finding.Finding) Entry {
	e := Entry{
		Severity:          f.Severity,
		Details:           f.Details,
		PayloadUsed:       f.PayloadUsed,
		VulnerabilityType: f.VulnerabilityType,
		URL:               f.URL,
		Parameters:        slices.Clone(f.VulnerableParameters),
		Evidence:          f.Evidence,
	}
	if e.Parameters == nil {
		e.Parameters = []string{}
	}
	if f.Form != nil && (f.Form.Name != "" || f.Form.ID != "" || f.Form.Action != "") {
		form := *f.Form
		e.Form = &form
	}
	return e
}

// Write renders r to w in format f.
func Write(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatJSON:
		return jsonutil.Encode(w, r, true)
	case FormatMarkdown:
		return writeMarkdown(w, r)
	case FormatTable:
		return writeTable(w, r)
	case FormatPDF:
		return writePDF(w, r)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Decode reads a JSON report. Unknown fields are ignored and absent
// optional fields stay zero.
func Decode(data []byte) (Report, error) {
	var r Report
	if err := jsonutil.UnmarshalLenient(data, &r); err != nil {
		return Report{}, fmt.Errorf("report: decode: %w", err)
	}
	return r, nil
}

var titleCase = cases.Title(language.English)

// severityLabel returns "High" for finding.High, and "-" for an empty
// severity.
func severityLabel(s finding.Severity) string {
	if s == "" {
		return "-"
	}
	return titleCase.String(string(s))
}

// typeLabel returns the display name for a family.
func typeLabel(f finding.Family) string {
	if f == "" {
		return "-"
	}
	return f.Label()
}

func orderedSeverities() []finding.Severity {
	return finding.Severities
}
