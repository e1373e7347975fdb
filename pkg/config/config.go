// Package config loads the scanner's YAML configuration. A Config is
// built once at startup, optionally overlaid by CLI flags, validated, and
// then treated as immutable.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/duration"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/httpclient"
)

// Config is the full scanner configuration.
type Config struct {
	Crawl    Crawl    `yaml:"crawl"`
	Test     Test     `yaml:"test"`
	Detect   Detect   `yaml:"detect"`
	Scan     Scan     `yaml:"scan"`
	Payloads Payloads `yaml:"payloads"`
	HTTP     HTTP     `yaml:"http"`
	Store    Store    `yaml:"store"`
	Metrics  Metrics  `yaml:"metrics"`
	Tracing  Tracing  `yaml:"tracing"`
	Daemon   Daemon   `yaml:"daemon"`
}

// Crawl configures discovery.
type Crawl struct {
	Concurrency int           `yaml:"concurrency"`
	Delay       time.Duration `yaml:"delay"`
	Jitter      time.Duration `yaml:"jitter"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxPages    int           `yaml:"max_pages"`
}

// Test configures payload injection.
type Test struct {
	Concurrency    int           `yaml:"concurrency"`
	Delay          time.Duration `yaml:"delay"`
	Timeout        time.Duration `yaml:"timeout"`
	PathProbe      bool          `yaml:"path_probe"`
	SyntheticProbe bool          `yaml:"synthetic_probe"`
}

// Detect configures the detectors.
type Detect struct {
	TimeThreshold time.Duration `yaml:"time_threshold"`

	// Heuristic enables the loose token match in the SQL injection
	// detector. It is a known source of false positives.
	Heuristic       bool     `yaml:"heuristic"`
	HeuristicTokens []string `yaml:"heuristic_tokens"`
}

// Scan configures the orchestrator.
type Scan struct {
	Watchdog time.Duration `yaml:"watchdog"`
	Scanners []string      `yaml:"scanners"`
}

// Payloads selects the payload library.
type Payloads struct {
	// File replaces the built-in library when set.
	File          string   `yaml:"file"`
	TamperScripts []string `yaml:"tamper_scripts"`
}

// HTTP configures the shared client.
type HTTP struct {
	Proxy      string            `yaml:"proxy"`
	UserAgent  string            `yaml:"user_agent"`
	BrowserTLS bool              `yaml:"browser_tls"`
	SkipVerify bool              `yaml:"skip_verify"`
	Headers    map[string]string `yaml:"headers"`
}

// Store configures job persistence.
type Store struct {
	Dir string `yaml:"dir"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Tracing configures OTLP export.
type Tracing struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Daemon configures the delegated scan path. An empty URL keeps the
// built-in engine.
type Daemon struct {
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Crawl: Crawl{
			Concurrency: defaults.CrawlConcurrency,
			Delay:       duration.CrawlDelay,
			Jitter:      duration.CrawlJitter,
			Timeout:     duration.FetchTimeout,
			MaxPages:    defaults.MaxPages,
		},
		Test: Test{
			Concurrency:    defaults.TestConcurrency,
			Delay:          duration.AttemptDelay,
			Timeout:        duration.FetchTimeout,
			PathProbe:      true,
			SyntheticProbe: true,
		},
		Detect: Detect{
			TimeThreshold:   duration.TimeBasedThreshold,
			HeuristicTokens: append([]string(nil), defaults.HeuristicTokens...),
		},
		Scan: Scan{
			Watchdog: duration.ScanWatchdog,
		},
		HTTP: HTTP{
			UserAgent:  defaults.UserAgent,
			SkipVerify: true,
		},
		Store: Store{Dir: defaults.StoreDir},
		Daemon: Daemon{
			PollInterval: duration.DaemonPoll,
		},
	}
}

// Load reads path over Defaults. Keys absent from the file keep their
// default; unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over Defaults.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting, joined.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Crawl.Concurrency < 1 || c.Crawl.Concurrency > defaults.ConcurrencyMax {
		bad("crawl.concurrency must be 1..%d, got %d", defaults.ConcurrencyMax, c.Crawl.Concurrency)
	}
	if c.Test.Concurrency < 1 || c.Test.Concurrency > defaults.ConcurrencyMax {
		bad("test.concurrency must be 1..%d, got %d", defaults.ConcurrencyMax, c.Test.Concurrency)
	}
	if c.Crawl.Delay < 0 || c.Crawl.Jitter < 0 || c.Test.Delay < 0 {
		bad("delays must not be negative")
	}
	if c.Crawl.Timeout <= 0 || c.Test.Timeout <= 0 {
		bad("timeouts must be positive")
	}
	if c.Crawl.MaxPages < 1 {
		bad("crawl.max_pages must be at least 1, got %d", c.Crawl.MaxPages)
	}
	if c.Detect.TimeThreshold <= 0 {
		bad("detect.time_threshold must be positive")
	} else if c.Test.Timeout > 0 && c.Test.Timeout <= c.Detect.TimeThreshold {
		bad("test.timeout %s must exceed detect.time_threshold %s", c.Test.Timeout, c.Detect.TimeThreshold)
	}
	if c.Detect.Heuristic && len(c.Detect.HeuristicTokens) == 0 {
		bad("detect.heuristic needs heuristic_tokens")
	}
	if c.Scan.Watchdog <= 0 {
		bad("scan.watchdog must be positive")
	}
	for _, name := range c.Scan.Scanners {
		if _, err := finding.ParseFamily(name); err != nil {
			bad("scan.scanners: %v", err)
		}
	}
	if c.HTTP.Proxy != "" {
		if _, err := httpclient.ParseProxy(c.HTTP.Proxy); err != nil {
			bad("http.proxy: %v", err)
		}
	}
	if c.Store.Dir == "" {
		errs = append(errs, fmt.Errorf("%w: store.dir", ErrMissingRequired))
	}
	if c.Daemon.URL != "" {
		u, err := url.Parse(c.Daemon.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			bad("daemon.url %q is not an http(s) URL", c.Daemon.URL)
		}
		if c.Daemon.PollInterval <= 0 {
			bad("daemon.poll_interval must be positive")
		}
	}
	return errors.Join(errs...)
}

// Delegated reports whether scans go to the external daemon.
func (c Config) Delegated() bool {
	return c.Daemon.URL != ""
}
