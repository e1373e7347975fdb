package report

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

const markdownTemplate = `# Scan report: {{ .TargetURL }}

| | |
|---|---|
| Job | ` + "`{{ .JobID | default \"-\" }}`" + ` |
| Mode | {{ .Mode | default "-" }} |
| Status | **{{ .Status | default "unknown" }}** |
{{- with .StartedAt }}
| Started | {{ .UTC.Format "2006-01-02 15:04:05 UTC" }} |
{{- end }}
{{- with .CompletedAt }}
| Completed | {{ .UTC.Format "2006-01-02 15:04:05 UTC" }} |
{{- end }}
{{- with .Error }}
| Error | {{ md . }} |
{{- end }}

## Summary

{{ if eq .Summary.Total 0 -}}
No vulnerabilities found.
{{- else -}}
{{ .Summary.Total }} finding{{ if ne .Summary.Total 1 }}s{{ end }}:
{{- range $sev := severities }}{{ with index $.Summary.BySeverity $sev }} {{ severityLabel $sev }} {{ . }};{{ end }}{{ end }}
{{- end }}
{{ if .Findings }}
## Findings

| Severity | Type | URL | Parameters | Payload | Details |
|---|---|---|---|---|---|
{{- range .Findings }}
| {{ severityLabel .Severity }} | {{ typeLabel .VulnerabilityType }} | {{ md .URL }} | {{ md (join ", " .Parameters) | default "-" }} | {{ if .PayloadUsed }}` + "`{{ md (trunc 80 .PayloadUsed) }}`" + `{{ else }}-{{ end }} | {{ md .Details }} |
{{- end }}
{{- range .Findings }}{{ if .Evidence }}

### {{ typeLabel .VulnerabilityType }} in {{ join ", " .Parameters }}
{{ with .Form }}
Form: name={{ .Name | default "-" }} id={{ .ID | default "-" }} action={{ .Action | default "-" }}
{{ end }}
` + "```" + `
{{ .Evidence }}
` + "```" + `
{{- end }}{{ end }}
{{- end }}
`

var mdTemplate = template.Must(template.New("report.md").
	Funcs(sprig.TxtFuncMap()).
	Funcs(template.FuncMap{
		"md":            mdEscape,
		"severityLabel": severityLabel,
		"typeLabel":     typeLabel,
		"severities":    orderedSeverities,
	}).
	Parse(markdownTemplate))

func writeMarkdown(w io.Writer, r Report) error {
	if err := mdTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("report: render markdown: %w", err)
	}
	return nil
}

var mdReplacer = strings.NewReplacer("|", `\|`, "\r", " ", "\n", " ", "`", "'")

// mdEscape makes s safe inside a Markdown table cell.
func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}
