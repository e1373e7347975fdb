package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/waftester/injectscan/pkg/defaults"
)

const bannerArt = `
 _       _           _                           
(_)_ __ (_) ___  ___| |_ ___  ___ __ _ _ __  
| | '_ \| |/ _ \/ __| __/ __|/ __/ _' | '_ \ 
| | | | | |  __/ (__| |_\__ \ (_| (_| | | | |
|_|_| |_/ |\___|\___|\__|___/\___\__,_|_| |_|
      |__/                                   
`

const divider = "________________________________________________"

// PrintBanner writes the banner and version to w.
func PrintBanner(w io.Writer) {
	for _, line := range strings.Split(bannerArt, "\n") {
		if strings.TrimSpace(line) != "" {
			fmt.Fprintln(w, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(w, "  %s %s\n\n", defaults.ToolName, VersionStyle.Render("v"+defaults.Version))
}

// PrintSection writes a section header.
func PrintSection(w io.Writer, title string) {
	fmt.Fprintln(w, SectionStyle.Render(title))
	fmt.Fprintln(w, DividerStyle.Render(divider))
}

// PrintConfigLine writes an aligned label/value pair.
func PrintConfigLine(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", LabelStyle.Render(label), ValueStyle.Render(value))
}

// PrintSuccess, PrintWarning and PrintError write a one-line message with
// a status marker.
func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", lipglossFg(Success, Icon("✔", "[+]")), msg)
}

func PrintWarning(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", lipglossFg(Warning, Icon("⚠", "[!]")), msg)
}

func PrintError(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", lipglossFg(Error, Icon("✖", "[-]")), msg)
}
