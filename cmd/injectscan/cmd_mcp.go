package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/waftester/injectscan/pkg/bootstrap"
	"github.com/waftester/injectscan/pkg/duration"
	"github.com/waftester/injectscan/pkg/mcpserver"
	"github.com/waftester/injectscan/pkg/tracing"
)

// runMCP starts the MCP server.
//   - default:       stdio, for IDE integrations
//   - --http <addr>: streamable HTTP for remote deployments
func runMCP(ctx context.Context, args []string, stderr io.Writer) error {
	fs := newFlagSet("mcp", stderr, "mcp [--http ADDR] [flags]")
	var o options
	o.registerCommon(fs)
	o.registerHTTP(fs)
	o.registerEngine(fs)
	o.registerScan(fs)
	httpAddr := fs.String("http", os.Getenv("INJECTSCAN_HTTP_ADDR"), "Serve streamable HTTP on this address instead of stdio")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := o.config(fs)
	if err != nil {
		return err
	}

	// stdout carries the protocol in stdio mode; logs go to stderr only.
	logger := newLogger(stderr, o.Verbose)
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

	srv := mcpserver.New(mcpserver.Config{
		Runner:   rt.Orchestrator,
		Jobs:     rt.Store,
		Library:  rt.Library,
		Scanners: rt.Scanners,
	}, mcpserver.WithLogger(logger.With(slog.String("component", "mcp"))))
	srv.MarkReady()

	if *httpAddr == "" {
		return srv.RunStdio(ctx)
	}

	httpSrv := &http.Server{
		Addr:              *httpAddr,
		Handler:           srv.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), duration.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("mcp shutdown", slog.String("error", err.Error()))
		}
	}()

	fmt.Fprintf(stderr, "injectscan MCP server listening on %s\n", *httpAddr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
