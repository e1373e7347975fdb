package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/waftester/injectscan/pkg/bootstrap"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/jsonutil"
	"github.com/waftester/injectscan/pkg/payloads"
	"github.com/waftester/injectscan/pkg/ui"
)

func runPayloads(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("payloads", stderr, "payloads [--payloads FILE] [--tamper SCRIPT] [--family xss|sqli] [--json]")
	var o options
	o.registerCommon(fs)
	fs.StringVar(&o.PayloadFile, "payloads", "", "YAML payload file replacing the built-in library")
	fs.Var(&o.Tampers, "tamper", "Tengo tamper script (repeatable)")
	family := fs.String("family", "", "Only list this family: xss or sqli")
	fs.BoolVar(&o.JSON, "json", false, "Print every payload as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := o.config(fs)
	if err != nil {
		return err
	}
	lib, err := bootstrap.Library(cfg.Payloads)
	if err != nil {
		return err
	}

	var selected []payloads.Payload
	if *family != "" {
		fam, err := finding.ParseFamily(*family)
		if err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		selected = lib.Select(fam)
	} else {
		selected = lib.All()
	}

	if o.JSON {
		if selected == nil {
			selected = []payloads.Payload{}
		}
		return jsonutil.Encode(stdout, selected, true)
	}

	configureColor(stdout, o.NoColor)
	counts := make(map[finding.Category]int)
	for _, p := range selected {
		counts[p.Category]++
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range lib.Categories() {
		if counts[c] == 0 {
			continue
		}
		rows = append(rows, []string{string(c), string(c.Family()), string(c.Severity()), strconv.Itoa(counts[c])})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ui.DividerStyle).
		Headers("CATEGORY", "FAMILY", "SEVERITY", "PAYLOADS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return ui.HeaderStyle
			case col == 2 && row >= 0 && row < len(rows):
				return ui.SeverityStyle(rows[row][2])
			}
			return ui.CellStyle
		})
	fmt.Fprintln(stdout, t.String())
	fmt.Fprintf(stdout, "%d payload(s) in %d categor%s\n", len(selected), len(rows), plural(len(rows), "y", "ies"))
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
