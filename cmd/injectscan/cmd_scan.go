package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/waftester/injectscan/pkg/bootstrap"
	"github.com/waftester/injectscan/pkg/config"
	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/duration"
	"github.com/waftester/injectscan/pkg/report"
	"github.com/waftester/injectscan/pkg/scan"
	"github.com/waftester/injectscan/pkg/tracing"
	"github.com/waftester/injectscan/pkg/ui"
)

func runScan(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("scan", stderr, "scan -u URL [flags]")
	var o options
	o.registerCommon(fs)
	o.registerHTTP(fs)
	o.registerEngine(fs)
	o.registerScan(fs)
	o.registerTarget(fs)
	fs.StringVar(&o.Format, "format", string(report.FormatTable), "Report format: "+formatNames())
	fs.StringVar(&o.Output, "o", "", "Write the report to this file")
	fs.StringVar(&o.Output, "output", "", "Write the report to this file (alias)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	target := o.target(fs)
	if target == "" {
		return usageError("scan: a target URL is required (-u)")
	}
	format, err := report.ParseFormat(o.Format)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if format == report.FormatPDF && o.Output == "" {
		return usageError("scan: pdf reports need an output file (-o)")
	}
	cfg, err := o.config(fs)
	if err != nil {
		return err
	}

	logger := newLogger(stderr, o.Verbose)
	if o.Output == "" {
		configureColor(stdout, o.NoColor)
	} else {
		configureColor(stderr, o.NoColor)
	}

	shutdown, err := tracing.Setup(ctx, tracing.Options{
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
	})
	if err != nil {
		return err
	}
	defer flushTracing(shutdown, logger)

	rt, err := bootstrap.Build(cfg, logger)
	if err != nil {
		return err
	}
	stopMetrics := serveMetrics(ctx, rt, logger)
	defer stopMetrics()

	req := rt.Request(target, o.Deep, nil)
	ui.PrintBanner(stderr)
	ui.PrintSection(stderr, "Scan")
	ui.PrintConfigLine(stderr, "Target", ui.URLStyle.Render(target))
	ui.PrintConfigLine(stderr, "Mode", string(scan.ModeFor(o.Deep)))
	ui.PrintConfigLine(stderr, "Scanners", joinFamilies(req))
	ui.PrintConfigLine(stderr, "Engine", engineName(cfg))
	if !cfg.Delegated() {
		ui.PrintConfigLine(stderr, "Payloads", strconv.Itoa(rt.Library.Len()))
	}
	fmt.Fprintln(stderr)

	spin := ui.NewSpinner(stderr, "Scanning "+target)
	spin.Start()
	out, err := rt.Orchestrator.Run(ctx, req)
	elapsed := spin.Stop()
	if err != nil {
		if errors.Is(err, scan.ErrInvalidRequest) {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return err
	}

	job, err := rt.Store.Get(out.JobID)
	if err != nil {
		return err
	}
	rep := report.FromJob(job)
	if err := writeReport(rep, format, o.Output, stdout); err != nil {
		return err
	}
	if o.Output != "" {
		ui.PrintSuccess(stderr, fmt.Sprintf("Report written to %s", o.Output))
	}

	switch out.Status {
	case scan.StatusCanceled:
		return fmt.Errorf("%w: job %s after %s", errCanceled, out.JobID, elapsed.Round(time.Millisecond))
	case scan.StatusFailed:
		return fmt.Errorf("scan %s failed: %s", out.JobID, out.Error)
	}
	ui.PrintSuccess(stderr, fmt.Sprintf("Job %s completed in %s with %d finding(s)",
		out.JobID, elapsed.Round(time.Millisecond), rep.Summary.Total))
	return nil
}

// writeReport renders r to path, or to stdout when path is empty.
func writeReport(r report.Report, format report.Format, path string, stdout io.Writer) error {
	if path == "" {
		return report.Write(stdout, r, format)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaults.FilePermission)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.Write(f, r, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// serveMetrics exposes /metrics while the command runs. The returned func
// stops the listener.
func serveMetrics(ctx context.Context, rt *bootstrap.Runtime, logger *slog.Logger) func() {
	addr := rt.Config.Metrics.Addr
	if addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("metrics listening", slog.String("addr", addr))
		if err := rt.Metrics.Serve(ctx, addr); err != nil {
			logger.Error("metrics server", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func flushTracing(shutdown tracing.Shutdown, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), duration.ShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("flush traces", slog.String("error", err.Error()))
	}
}

func engineName(cfg config.Config) string {
	if cfg.Delegated() {
		return "delegated (" + cfg.Daemon.URL + ")"
	}
	return "built-in crawl + inject"
}

func joinFamilies(req scan.Request) string {
	names := make([]string, 0, len(req.Scanners))
	for _, f := range req.Scanners {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

func formatNames() string {
	names := make([]string, 0, len(report.Formats))
	for _, f := range report.Formats {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
