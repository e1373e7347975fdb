// Command injectscan crawls a web application and tests the input points
// it finds for cross-site scripting and SQL injection.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "scan":
		err = runScan(ctx, args[1:], stdout, stderr)
	case "crawl":
		err = runCrawl(ctx, args[1:], stdout, stderr)
	case "payloads":
		err = runPayloads(args[1:], stdout, stderr)
	case "jobs":
		err = runJobs(args[1:], stdout, stderr)
	case "mcp":
		err = runMCP(ctx, args[1:], stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "%s %s\n", defaults.ToolName, defaults.Version)
		return exitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		ui.PrintError(stderr, fmt.Sprintf("unknown command %q", args[0]))
		printUsage(stderr)
		return exitUsage
	}
	return exitCode(stderr, err)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: %[1]s <command> [flags]

Commands:
  scan      Crawl a target and test its input points for XSS and SQLi
  crawl     List the input points a crawl discovers
  payloads  List the payload library
  jobs      List, show or delete stored scan jobs
  mcp       Serve the Model Context Protocol over stdio or HTTP
  version   Print the version

Examples:
  %[1]s scan -u https://app.example.com/search?q=1
  %[1]s scan -u https://app.example.com --deep --scanners sqli --format pdf -o report.pdf
  %[1]s crawl -u https://app.example.com --json
  %[1]s jobs show 0b9f0a4e-6c1e-4f57-9d55-0a8c2f7f3d11 --format md

Run '%[1]s <command> -h' for command flags.
`, defaults.ToolName)
}

// newLogger writes text logs to w: warnings and above, or everything with
// verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// configureColor sets the color profile for output written to w.
func configureColor(w io.Writer, noColor bool) {
	if noColor {
		ui.SetNoColor(true)
		return
	}
	ui.ConfigureColor(w)
}
