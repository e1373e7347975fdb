package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/waftester/injectscan/pkg/config"
)

// stringSliceFlag implements flag.Value for repeated or comma-separated
// string flags.
type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			*s = append(*s, v)
		}
	}
	return nil
}

// headerFlag collects repeated "Name: value" headers.
type headerFlag map[string]string

func (h headerFlag) String() string {
	parts := make([]string, 0, len(h))
	for k, v := range h {
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, ", ")
}

func (h headerFlag) Set(value string) error {
	name, val, ok := strings.Cut(value, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("header %q: want \"Name: value\"", value)
	}
	h[name] = strings.TrimSpace(val)
	return nil
}

// options holds every flag a subcommand may register. Only flags the user
// actually set override the configuration file.
type options struct {
	// common
	ConfigFile string
	Verbose    bool
	NoColor    bool
	StoreDir   string

	// http
	Proxy      string
	SkipVerify bool
	BrowserTLS bool
	UserAgent  string
	Headers    headerFlag
	Timeout    time.Duration

	// engine
	Concurrency      int
	CrawlConcurrency int
	Delay            time.Duration
	MaxPages         int
	Scanners         stringSliceFlag
	PayloadFile      string
	Tampers          stringSliceFlag
	Heuristic        bool
	Watchdog         time.Duration
	Daemon           string
	DaemonKey        string

	// observability
	MetricsAddr  string
	OTLPEndpoint string
	OTLPInsecure bool

	// target
	Target string
	Deep   bool

	// output
	Format string
	Output string
	JSON   bool
}

func newFlagSet(name string, stderr io.Writer, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: injectscan %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses args and maps parse failures to errUsage.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	return nil
}

func (o *options) registerCommon(fs *flag.FlagSet) {
	fs.StringVar(&o.ConfigFile, "config", "", "YAML configuration file")
	fs.BoolVar(&o.Verbose, "verbose", false, "Debug logging")
	fs.BoolVar(&o.Verbose, "v", false, "Debug logging (alias)")
	fs.BoolVar(&o.NoColor, "no-color", false, "Disable colored output")
	fs.StringVar(&o.StoreDir, "store-dir", "", "Job store directory")
}

func (o *options) registerHTTP(fs *flag.FlagSet) {
	o.Headers = headerFlag{}
	fs.StringVar(&o.Proxy, "proxy", "", "HTTP or SOCKS5 proxy URL")
	fs.StringVar(&o.Proxy, "x", "", "Proxy (alias)")
	fs.BoolVar(&o.SkipVerify, "skip-verify", false, "Skip TLS certificate verification")
	fs.BoolVar(&o.SkipVerify, "k", false, "Skip TLS verification (alias)")
	fs.BoolVar(&o.BrowserTLS, "browser-tls", false, "Present a browser TLS fingerprint")
	fs.StringVar(&o.UserAgent, "user-agent", "", "User-Agent header")
	fs.Var(o.Headers, "H", "Extra request header \"Name: value\" (repeatable)")
	fs.DurationVar(&o.Timeout, "timeout", 0, "Per-request timeout for crawl and test")
}

func (o *options) registerEngine(fs *flag.FlagSet) {
	fs.IntVar(&o.Concurrency, "concurrency", 0, "Concurrent injection requests")
	fs.IntVar(&o.Concurrency, "c", 0, "Concurrent injection requests (alias)")
	fs.IntVar(&o.CrawlConcurrency, "crawl-concurrency", 0, "Concurrent page fetches")
	fs.DurationVar(&o.Delay, "delay", 0, "Delay between requests")
	fs.IntVar(&o.MaxPages, "max-pages", 0, "Maximum pages to crawl")
}

func (o *options) registerScan(fs *flag.FlagSet) {
	fs.Var(&o.Scanners, "scanners", "Vulnerability families: xss,sqli")
	fs.StringVar(&o.PayloadFile, "payloads", "", "YAML payload file replacing the built-in library")
	fs.Var(&o.Tampers, "tamper", "Tengo tamper script (repeatable)")
	fs.BoolVar(&o.Heuristic, "heuristic", false, "Loose SQL injection token matching")
	fs.DurationVar(&o.Watchdog, "watchdog", 0, "Abort the scan after this long")
	fs.StringVar(&o.Daemon, "daemon", "", "Delegate crawling and testing to a ZAP-compatible daemon at this URL")
	fs.StringVar(&o.DaemonKey, "daemon-key", "", "Daemon API key")
	fs.StringVar(&o.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&o.OTLPEndpoint, "otlp-endpoint", "", "OTLP/gRPC collector host:port")
	fs.BoolVar(&o.OTLPInsecure, "otlp-insecure", false, "Dial the collector without TLS")
}

func (o *options) registerTarget(fs *flag.FlagSet) {
	fs.StringVar(&o.Target, "u", "", "Target URL")
	fs.StringVar(&o.Target, "url", "", "Target URL (alias)")
	fs.BoolVar(&o.Deep, "deep", false, "Crawl three levels instead of one")
}

// target returns -u, or the first positional argument.
func (o *options) target(fs *flag.FlagSet) string {
	if o.Target != "" {
		return o.Target
	}
	return fs.Arg(0)
}

// config loads the configuration file (or the defaults) and overlays every
// flag that was set on fs.
func (o *options) config(fs *flag.FlagSet) (config.Config, error) {
	cfg := config.Defaults()
	if o.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(o.ConfigFile); err != nil {
			return config.Config{}, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		o.apply(&cfg, f.Name)
	})
	return cfg, cfg.Validate()
}

func (o *options) apply(cfg *config.Config, name string) {
	switch name {
	case "store-dir":
		cfg.Store.Dir = o.StoreDir
	case "proxy", "x":
		cfg.HTTP.Proxy = o.Proxy
	case "skip-verify", "k":
		cfg.HTTP.SkipVerify = o.SkipVerify
	case "browser-tls":
		cfg.HTTP.BrowserTLS = o.BrowserTLS
	case "user-agent":
		cfg.HTTP.UserAgent = o.UserAgent
	case "H":
		if cfg.HTTP.Headers == nil {
			cfg.HTTP.Headers = make(map[string]string, len(o.Headers))
		}
		for k, v := range o.Headers {
			cfg.HTTP.Headers[k] = v
		}
	case "timeout":
		cfg.Crawl.Timeout = o.Timeout
		cfg.Test.Timeout = o.Timeout
	case "concurrency", "c":
		cfg.Test.Concurrency = o.Concurrency
	case "crawl-concurrency":
		cfg.Crawl.Concurrency = o.CrawlConcurrency
	case "delay":
		cfg.Crawl.Delay = o.Delay
		cfg.Test.Delay = o.Delay
	case "max-pages":
		cfg.Crawl.MaxPages = o.MaxPages
	case "scanners":
		cfg.Scan.Scanners = []string(o.Scanners)
	case "payloads":
		cfg.Payloads.File = o.PayloadFile
	case "tamper":
		cfg.Payloads.TamperScripts = []string(o.Tampers)
	case "heuristic":
		cfg.Detect.Heuristic = o.Heuristic
	case "watchdog":
		cfg.Scan.Watchdog = o.Watchdog
	case "daemon":
		cfg.Daemon.URL = o.Daemon
	case "daemon-key":
		cfg.Daemon.APIKey = o.DaemonKey
	case "metrics-addr":
		cfg.Metrics.Addr = o.MetricsAddr
	case "otlp-endpoint":
		cfg.Tracing.Endpoint = o.OTLPEndpoint
	case "otlp-insecure":
		cfg.Tracing.Insecure = o.OTLPInsecure
	}
}
