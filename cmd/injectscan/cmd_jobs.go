package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/waftester/injectscan/pkg/jsonutil"
	"github.com/waftester/injectscan/pkg/report"
	"github.com/waftester/injectscan/pkg/scan"
	"github.com/waftester/injectscan/pkg/store"
	"github.com/waftester/injectscan/pkg/ui"
)

const jobsUsage = "jobs [list|show ID|delete ID|prune] [flags]"

func runJobs(args []string, stdout, stderr io.Writer) error {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "list", "ls", "show", "delete", "rm", "prune":
	default:
		return usageError("jobs: unknown action %q (want list, show, delete or prune)", sub)
	}
	// show and delete take the job ID before or after the flags.
	var id string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		id, args = args[0], args[1:]
	}

	fs := newFlagSet("jobs "+sub, stderr, jobsUsage)
	var o options
	o.registerCommon(fs)
	targetFilter := fs.String("target", "", "list: only jobs for this target URL")
	limit := fs.Int("limit", 20, "list: maximum jobs to show (0 for all)")
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "prune: remove finished jobs created before this age")
	fs.StringVar(&o.Format, "format", string(report.FormatTable), "show: report format: "+formatNames())
	fs.StringVar(&o.Output, "o", "", "show: write the report to this file")
	fs.BoolVar(&o.JSON, "json", false, "list: print jobs as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if id == "" {
		id = fs.Arg(0)
	}

	cfg, err := o.config(fs)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Dir)
	if err != nil {
		return err
	}

	switch sub {
	case "list", "ls":
		configureColor(stdout, o.NoColor || o.JSON)
		jobs := st.List(*targetFilter, *limit)
		if o.JSON {
			return jsonutil.Encode(stdout, jobs, true)
		}
		if len(jobs) == 0 {
			ui.PrintWarning(stdout, "No stored jobs in "+st.Path())
			return nil
		}
		_, err := fmt.Fprintln(stdout, jobTable(jobs))
		return err

	case "show":
		if id == "" {
			return usageError("jobs show: a job ID is required")
		}
		format, err := report.ParseFormat(o.Format)
		if err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		if format == report.FormatPDF && o.Output == "" {
			return usageError("jobs show: pdf reports need an output file (-o)")
		}
		job, err := st.Get(id)
		if err != nil {
			return err
		}
		if o.Output == "" {
			configureColor(stdout, o.NoColor)
		}
		return writeReport(report.FromJob(job), format, o.Output, stdout)

	case "delete", "rm":
		if id == "" {
			return usageError("jobs delete: a job ID is required")
		}
		if err := st.Delete(id); err != nil {
			return err
		}
		ui.PrintSuccess(stderr, "Deleted job "+id)
		return nil

	case "prune":
		n, err := st.Prune(*olderThan)
		if err != nil {
			return err
		}
		ui.PrintSuccess(stderr, fmt.Sprintf("Pruned %d job(s)", n))
		return nil
	}
	return nil
}

func jobTable(jobs []scan.Job) string {
	rows := make([][]string, 0, len(jobs))
	statuses := make([]string, 0, len(jobs))
	for _, j := range jobs {
		n := 0
		for _, f := range j.Findings {
			if !f.IsClean() {
				n++
			}
		}
		statuses = append(statuses, string(j.Status))
		rows = append(rows, []string{
			j.ID,
			j.TargetURL,
			string(j.Mode),
			string(j.Status),
			strconv.Itoa(n),
			j.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ui.DividerStyle).
		Headers("ID", "TARGET", "MODE", "STATUS", "FINDINGS", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return ui.HeaderStyle
			case col == 3 && row >= 0 && row < len(statuses):
				return ui.StatusStyle(statuses[row])
			case col == 1:
				return ui.URLStyle
			}
			return ui.CellStyle
		}).
		String()
}
