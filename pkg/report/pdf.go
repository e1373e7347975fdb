package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	gofpdf "github.com/go-pdf/fpdf"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/finding"
)

type rgb struct{ r, g, b int }

var severityColors = map[finding.Severity]rgb{
	finding.Critical: {220, 38, 38},
	finding.High:     {234, 88, 12},
	finding.Medium:   {202, 138, 4},
	finding.Low:      {22, 163, 74},
	finding.Info:     {37, 99, 235},
}

// writePDF renders a printable report. Text is translated to cp1252 for
// the core fonts; characters outside it are dropped by the translator.
func writePDF(w io.Writer, r Report) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Scan report: "+r.TargetURL, true)
	pdf.SetAuthor(defaults.ToolName+" "+defaults.Version, true)
	pdf.SetCreator(defaults.ToolName, true)
	if r.CompletedAt != nil {
		pdf.SetCreationDate(r.CompletedAt.UTC())
	}
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 8, fmt.Sprintf("%s - page %d/{nb}", defaults.ToolName, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(0, 10, "Vulnerability Scan Report", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	meta := [][2]string{
		{"Target", r.TargetURL},
		{"Job", r.JobID},
		{"Mode", string(r.Mode)},
		{"Status", string(r.Status)},
	}
	if r.StartedAt != nil {
		meta = append(meta, [2]string{"Started", r.StartedAt.UTC().Format(time.RFC1123)})
	}
	if r.CompletedAt != nil {
		meta = append(meta, [2]string{"Completed", r.CompletedAt.UTC().Format(time.RFC1123)})
	}
	if r.Error != "" {
		meta = append(meta, [2]string{"Error", r.Error})
	}
	for _, kv := range meta {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(30, 6, kv[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, tr(kv[1]), "", "L", false)
	}
	pdf.Ln(4)

	addSectionHeader(pdf, "Summary")
	pdf.SetFont("Helvetica", "", 10)
	if r.Summary.Total == 0 {
		pdf.MultiCell(0, 6, "No vulnerabilities found.", "", "L", false)
	} else {
		for _, sev := range orderedSeverities() {
			n := r.Summary.BySeverity[sev]
			if n == 0 {
				continue
			}
			setFill(pdf, sev)
			pdf.SetTextColor(255, 255, 255)
			pdf.CellFormat(25, 7, severityLabel(sev), "", 0, "C", true, 0, "")
			pdf.SetTextColor(30, 30, 30)
			pdf.CellFormat(20, 7, fmt.Sprintf("%d", n), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(4)

	if r.Summary.Total > 0 {
		addSectionHeader(pdf, "Findings")
		for i, e := range r.Findings {
			if e.VulnerabilityType == finding.FamilyNone {
				continue
			}
			addFinding(pdf, tr, i+1, e)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("report: render pdf: %w", err)
	}
	return nil
}

func addSectionHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(125, 86, 244)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.SetTextColor(30, 30, 30)
	pdf.Ln(2)
}

func setFill(pdf *gofpdf.Fpdf, sev finding.Severity) {
	c, ok := severityColors[sev]
	if !ok {
		c = rgb{107, 114, 128}
	}
	pdf.SetFillColor(c.r, c.g, c.b)
}

func addFinding(pdf *gofpdf.Fpdf, tr func(string) string, n int, e Entry) {
	setFill(pdf, e.Severity)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(22, 7, severityLabel(e.Severity), "", 0, "C", true, 0, "")
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(0, 7, tr(fmt.Sprintf(" #%d %s", n, typeLabel(e.VulnerabilityType))), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	rows := [][2]string{
		{"URL", e.URL},
		{"Parameters", strings.Join(e.Parameters, ", ")},
		{"Payload", e.PayloadUsed},
		{"Details", e.Details},
	}
	if e.Form != nil {
		rows = append(rows, [2]string{"Form", fmt.Sprintf("name=%s id=%s action=%s", e.Form.Name, e.Form.ID, e.Form.Action)})
	}
	if e.Evidence != "" {
		rows = append(rows, [2]string{"Evidence", e.Evidence})
	}
	for _, kv := range rows {
		if kv[1] == "" {
			continue
		}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(25, 5, kv[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 9)
		pdf.MultiCell(0, 5, tr(kv[1]), "", "L", false)
	}
	pdf.Ln(3)
}
