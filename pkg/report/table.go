package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/waftester/injectscan/pkg/ui"
)

const (
	maxURLWidth     = 60
	maxPayloadWidth = 40
)

// writeTable renders the console view: a status header and one row per
// finding.
func writeTable(w io.Writer, r Report) error {
	var b strings.Builder
	ui.PrintSection(&b, "Scan "+r.JobID)
	ui.PrintConfigLine(&b, "Target", ui.URLStyle.Render(r.TargetURL))
	ui.PrintConfigLine(&b, "Mode", string(r.Mode))
	ui.PrintConfigLine(&b, "Status", ui.StatusStyle(string(r.Status)).Render(string(r.Status)))
	if r.StartedAt != nil && r.CompletedAt != nil {
		ui.PrintConfigLine(&b, "Duration", r.CompletedAt.Sub(*r.StartedAt).Round(time.Millisecond).String())
	}
	if r.Error != "" {
		ui.PrintConfigLine(&b, "Error", r.Error)
	}
	b.WriteByte('\n')

	if r.Summary.Total == 0 {
		ui.PrintSuccess(&b, "No vulnerabilities found")
		_, err := io.WriteString(w, b.String())
		return err
	}

	rows := make([][]string, 0, len(r.Findings))
	sevs := make([]string, 0, len(r.Findings))
	for _, e := range r.Findings {
		if e.VulnerabilityType == "" || e.Severity == "" {
			continue
		}
		sevs = append(sevs, string(e.Severity))
		rows = append(rows, []string{
			severityLabel(e.Severity),
			typeLabel(e.VulnerabilityType),
			clip(e.URL, maxURLWidth),
			strings.Join(e.Parameters, ", "),
			clip(e.PayloadUsed, maxPayloadWidth),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ui.DividerStyle).
		Headers("SEVERITY", "TYPE", "URL", "PARAMETERS", "PAYLOAD").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return ui.HeaderStyle
			case col == 0 && row >= 0 && row < len(sevs):
				return ui.SeverityStyle(sevs[row])
			}
			return ui.CellStyle
		})

	b.WriteString(t.Render())
	b.WriteByte('\n')
	fmt.Fprintf(&b, "\n%d finding(s)", r.Summary.Total)
	for _, sev := range orderedSeverities() {
		if n := r.Summary.BySeverity[sev]; n > 0 {
			fmt.Fprintf(&b, "  %s %d", severityLabel(sev), n)
		}
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// clip shortens s to at most n runes, marking the cut with "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
