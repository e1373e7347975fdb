// Package bootstrap turns a validated config.Config into the runtime the
// CLI and MCP server share: payload library, HTTP client, metrics, the
// scan engine, the job store and the orchestrator. Everything it builds is
// immutable or internally synchronized and is passed by reference; there
// is no package-level registry.
package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/waftester/injectscan/pkg/config"
	"github.com/waftester/injectscan/pkg/crawler"
	"github.com/waftester/injectscan/pkg/delegated"
	"github.com/waftester/injectscan/pkg/detect"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/httpclient"
	"github.com/waftester/injectscan/pkg/injector"
	"github.com/waftester/injectscan/pkg/inputpoint"
	"github.com/waftester/injectscan/pkg/metrics"
	"github.com/waftester/injectscan/pkg/payloads"
	"github.com/waftester/injectscan/pkg/retry"
	"github.com/waftester/injectscan/pkg/scan"
	"github.com/waftester/injectscan/pkg/store"
)

// Runtime is the wired scanner.
type Runtime struct {
	Config       config.Config
	Logger       *slog.Logger
	Library      *payloads.Library
	Client       *http.Client
	Metrics      *metrics.Recorder
	Crawler      *crawler.Crawler
	Engine       scan.Engine
	Store        *store.File
	Orchestrator *scan.Orchestrator

	// Scanners are the configured default families.
	Scanners []finding.Family
}

// Build validates cfg and wires a Runtime. A nil logger uses
// slog.Default().
func Build(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lib, err := Library(cfg.Payloads)
	if err != nil {
		return nil, err
	}
	scanners, err := scan.ParseScanners(cfg.Scan.Scanners)
	if err != nil {
		return nil, err
	}

	client, err := httpclient.New(HTTPConfig(cfg))
	if err != nil {
		return nil, err
	}
	rec, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: metrics: %w", err)
	}
	st, err := store.Open(cfg.Store.Dir)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Library:  lib,
		Client:   client,
		Metrics:  rec,
		Store:    st,
		Scanners: scanners,
	}
	rt.Crawler = crawler.New(CrawlerConfig(cfg), client,
		crawler.WithLogger(logger.With(slog.String("component", "crawler"))),
		crawler.WithMetrics(rec))

	if cfg.Delegated() {
		dc, err := delegated.NewClient(cfg.Daemon.URL, cfg.Daemon.APIKey, &http.Client{})
		if err != nil {
			return nil, err
		}
		rt.Engine = delegated.NewEngine(dc,
			delegated.WithLogger(logger.With(slog.String("component", "delegated"))),
			delegated.WithMetrics(rec),
			delegated.WithPollInterval(cfg.Daemon.PollInterval))
	} else {
		tester := injector.New(InjectorConfig(cfg), client, detect.New(DetectConfig(cfg)),
			injector.WithLogger(logger.With(slog.String("component", "injector"))),
			injector.WithMetrics(rec))
		rt.Engine = scan.NewCrawlTestEngine(rt.Crawler, tester, lib, logger)
	}

	rt.Orchestrator = scan.NewOrchestrator(rt.Engine, st,
		scan.WithLogger(logger.With(slog.String("component", "orchestrator"))),
		scan.WithMetrics(rec),
		scan.WithWatchdog(cfg.Scan.Watchdog),
		scan.WithRetry(retry.PersistConfig()))
	return rt, nil
}

// Request builds a scan request, using the configured scanners when
// families is empty.
func (r *Runtime) Request(target string, deep bool, families []finding.Family) scan.Request {
	if len(families) == 0 {
		families = r.Scanners
	}
	return scan.Request{TargetURL: target, DeepScan: deep, Scanners: families}
}

// Library builds the payload library: the file when set, else the
// built-in set, extended by any tamper scripts.
func Library(cfg config.Payloads) (*payloads.Library, error) {
	lib := payloads.Default()
	if cfg.File != "" {
		var err error
		if lib, err = payloads.Load(cfg.File); err != nil {
			return nil, err
		}
	}
	if len(cfg.TamperScripts) == 0 {
		return lib, nil
	}
	tampers := make([]*payloads.Tamper, 0, len(cfg.TamperScripts))
	for _, path := range cfg.TamperScripts {
		t, err := payloads.LoadTamper(path)
		if err != nil {
			return nil, err
		}
		tampers = append(tampers, t)
	}
	return lib.WithTampers(tampers...)
}

// HTTPConfig maps cfg onto the shared client's settings.
func HTTPConfig(cfg config.Config) httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = max(cfg.Crawl.Timeout, cfg.Test.Timeout)
	hc.Proxy = cfg.HTTP.Proxy
	hc.SkipVerify = cfg.HTTP.SkipVerify
	hc.BrowserTLS = cfg.HTTP.BrowserTLS
	if cfg.HTTP.UserAgent != "" {
		hc.UserAgent = cfg.HTTP.UserAgent
	}
	hc.Headers = cfg.HTTP.Headers
	hc.MaxConnsPerHost = max(cfg.Crawl.Concurrency, cfg.Test.Concurrency)
	return hc
}

// CrawlerConfig maps cfg onto the crawler. Points are kept distinct by
// parameter names so the engine can coarsen them per family.
func CrawlerConfig(cfg config.Config) crawler.Config {
	cc := crawler.DefaultConfig()
	cc.Concurrency = cfg.Crawl.Concurrency
	cc.Delay = cfg.Crawl.Delay
	cc.Jitter = cfg.Crawl.Jitter
	cc.Timeout = cfg.Crawl.Timeout
	cc.MaxPages = cfg.Crawl.MaxPages
	cc.Key = inputpoint.KeyURLMethodParams
	return cc
}

// InjectorConfig maps cfg onto the tester.
func InjectorConfig(cfg config.Config) injector.Config {
	ic := injector.DefaultConfig()
	ic.Concurrency = cfg.Test.Concurrency
	ic.Delay = cfg.Test.Delay
	ic.Timeout = cfg.Test.Timeout
	ic.PathProbe = cfg.Test.PathProbe
	ic.SyntheticProbe = cfg.Test.SyntheticProbe
	return ic
}

// DetectConfig maps cfg onto the detectors.
func DetectConfig(cfg config.Config) detect.Config {
	return detect.Config{
		TimeThreshold:   cfg.Detect.TimeThreshold,
		Heuristic:       cfg.Detect.Heuristic,
		HeuristicTokens: cfg.Detect.HeuristicTokens,
	}
}
