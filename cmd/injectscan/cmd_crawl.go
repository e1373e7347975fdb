package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/waftester/injectscan/pkg/bootstrap"
	"github.com/waftester/injectscan/pkg/inputpoint"
	"github.com/waftester/injectscan/pkg/jsonutil"
	"github.com/waftester/injectscan/pkg/scan"
	"github.com/waftester/injectscan/pkg/ui"
)

func runCrawl(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("crawl", stderr, "crawl -u URL [flags]")
	var o options
	o.registerCommon(fs)
	o.registerHTTP(fs)
	o.registerEngine(fs)
	o.registerTarget(fs)
	fs.BoolVar(&o.JSON, "json", false, "Print input points as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	target := o.target(fs)
	if target == "" {
		return usageError("crawl: a target URL is required (-u)")
	}
	cfg, err := o.config(fs)
	if err != nil {
		return err
	}
	// The built-in crawler is used even when a daemon is configured.
	cfg.Daemon.URL = ""

	logger := newLogger(stderr, o.Verbose)
	configureColor(stdout, o.NoColor || o.JSON)
	rt, err := bootstrap.Build(cfg, logger)
	if err != nil {
		return err
	}

	mode := scan.ModeFor(o.Deep)
	spin := ui.NewSpinner(stderr, "Crawling "+target)
	spin.Start()
	points, err := rt.Crawler.Crawl(ctx, target, mode.Depth())
	spin.Stop()
	if err != nil {
		return err
	}

	if o.JSON {
		if points == nil {
			points = []inputpoint.InputPoint{}
		}
		return jsonutil.Encode(stdout, points, true)
	}
	if len(points) == 0 {
		ui.PrintWarning(stdout, "No input points found")
		return nil
	}
	_, err = fmt.Fprintln(stdout, pointTable(points))
	if err == nil {
		ui.PrintSuccess(stderr, fmt.Sprintf("%d input point(s) discovered (%s crawl)", len(points), mode))
	}
	return err
}

func pointTable(points []inputpoint.InputPoint) string {
	rows := make([][]string, 0, len(points))
	for _, ip := range points {
		form := ip.FormName
		if form == "" {
			form = ip.FormID
		}
		rows = append(rows, []string{
			string(ip.Method),
			ip.URL,
			strings.Join(ip.Params.Names(), ", "),
			string(ip.Source),
			form,
		})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ui.DividerStyle).
		Headers("METHOD", "URL", "PARAMETERS", "SOURCE", "FORM").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return ui.HeaderStyle
			case col == 1:
				return ui.URLStyle
			}
			return ui.CellStyle
		}).
		String()
}
