// Package ui renders the CLI's terminal output: banner, section headers,
// severity and status badges, and a wait spinner. Styling uses lipgloss;
// color is dropped when stderr is not a terminal or NO_COLOR is set.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	Primary   = lipgloss.Color("#7D56F4")
	Secondary = lipgloss.Color("#00D4AA")

	Critical = lipgloss.Color("#FF0000")
	High     = lipgloss.Color("#FF6B6B")
	Medium   = lipgloss.Color("#FFD93D")
	Low      = lipgloss.Color("#6BCB77")
	Info     = lipgloss.Color("#4D96FF")

	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	BannerStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	VersionStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true).
			MarginTop(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Width(14)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#3B3B4F")).
			Bold(true).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().Padding(0, 1)

	URLStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Underline(true)

	DividerStyle = lipgloss.NewStyle().Foreground(Muted)

	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)
)

// SeverityStyle returns the badge style for a severity name. Matching is
// case-insensitive.
func SeverityStyle(severity string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch strings.ToLower(severity) {
	case "critical":
		return base.Foreground(lipgloss.Color("#FFFFFF")).Background(Critical)
	case "high":
		return base.Foreground(lipgloss.Color("#FFFFFF")).Background(High)
	case "medium":
		return base.Foreground(lipgloss.Color("#000000")).Background(Medium)
	case "low":
		return base.Foreground(lipgloss.Color("#000000")).Background(Low)
	case "info":
		return base.Foreground(lipgloss.Color("#FFFFFF")).Background(Info)
	default:
		return base.Foreground(Muted)
	}
}

// StatusStyle returns the style for a scan job status.
func StatusStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch status {
	case "completed":
		return base.Foreground(Success)
	case "failed":
		return base.Foreground(Error)
	case "canceled":
		return base.Foreground(Warning)
	case "in_progress":
		return base.Foreground(Info)
	default:
		return base.Foreground(Muted)
	}
}

func lipglossFg(c lipgloss.Color, s string) string {
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(s)
}
