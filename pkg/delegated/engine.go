package delegated

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/waftester/injectscan/pkg/aggregate"
	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/duration"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/metrics"
	"github.com/waftester/injectscan/pkg/scan"
)

// ProbeDelegated marks findings raised by the daemon.
const ProbeDelegated = "delegated"

// shallowChildren limits the daemon spider in shallow mode.
const shallowChildren = 10

var tracer = otel.Tracer("github.com/waftester/injectscan/pkg/delegated")

// Engine implements scan.Engine on top of the daemon: spider, wait,
// active scan, wait, then collect alerts.
type Engine struct {
	client   *Client
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
}

var _ scan.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records accepted findings on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithPollInterval sets how often progress is polled.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// NewEngine returns an engine driving c.
func NewEngine(c *Client, opts ...Option) *Engine {
	e := &Engine{
		client:   c,
		interval: duration.DaemonPoll,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scan implements scan.Engine.
func (e *Engine) Scan(ctx context.Context, target string, mode scan.Mode, families []finding.Family) ([]finding.Finding, error) {
	ctx, span := tracer.Start(ctx, "delegated.Scan")
	span.SetAttributes(attribute.String("target", target), attribute.String("mode", string(mode)))
	defer span.End()

	children := 0
	if mode != scan.ModeDeep {
		children = shallowChildren
	}
	crawlID, err := e.client.StartCrawl(ctx, target, children)
	if err != nil {
		return nil, fmt.Errorf("start crawl: %w", err)
	}
	e.logger.Info("daemon crawl started", slog.String("target", target), slog.String("id", crawlID))
	if err := e.wait(ctx, "crawl", func(ctx context.Context) (int, error) {
		return e.client.PollCrawlStatus(ctx, crawlID)
	}); err != nil {
		return nil, err
	}

	scanID, err := e.client.StartActiveScan(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("start active scan: %w", err)
	}
	e.logger.Info("daemon active scan started", slog.String("target", target), slog.String("id", scanID))
	if err := e.wait(ctx, "active scan", func(ctx context.Context) (int, error) {
		return e.client.PollScanStatus(ctx, scanID)
	}); err != nil {
		return nil, err
	}

	alerts, err := e.client.FetchAlerts(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch alerts: %w", err)
	}

	agg := aggregate.New(aggregate.WithLogger(e.logger), aggregate.WithMetrics(e.metrics))
	at := e.now()
	for _, a := range alerts {
		f, ok := Convert(a, at)
		if !ok || !slices.Contains(families, f.VulnerabilityType) {
			continue
		}
		agg.Add(f)
	}
	e.logger.Info("daemon alerts mapped",
		slog.Int("alerts", len(alerts)),
		slog.Int("findings", agg.Len()))
	return agg.Findings(), nil
}

// wait polls until progress reaches 100 or ctx ends.
func (e *Engine) wait(ctx context.Context, phase string, poll func(context.Context) (int, error)) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		pct, err := poll(ctx)
		if err != nil {
			return fmt.Errorf("poll %s: %w", phase, err)
		}
		e.logger.Debug("daemon progress", slog.String("phase", phase), slog.Int("percent", pct))
		if pct >= 100 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Convert maps a daemon alert onto a finding. Alerts outside the scanner's
// families, and alerts that name no parameter, are dropped.
func Convert(a Alert, at time.Time) (finding.Finding, bool) {
	param := strings.TrimSpace(a.Param)
	if param == "" {
		return finding.Finding{}, false
	}
	cat, ok := categoryOf(a.Title())
	if !ok {
		return finding.Finding{}, false
	}
	fam := cat.Family()
	evidence := a.Evidence
	if len(evidence) > defaults.EvidenceLimit {
		cut := defaults.EvidenceLimit
		for cut > 0 && !utf8.RuneStart(evidence[cut]) {
			cut--
		}
		evidence = evidence[:cut]
	}
	return finding.Finding{
		URL:                  a.URL,
		Method:               strings.ToUpper(a.Method),
		VulnerabilityType:    fam,
		PayloadCategory:      cat,
		PayloadUsed:          a.Attack,
		VulnerableParameters: []string{param},
		Severity:             severityOf(a.Risk, cat),
		Details:              fmt.Sprintf("%s in %s (%s)", fam.Label(), param, a.Title()),
		Evidence:             evidence,
		Probe:                ProbeDelegated,
		DiscoveredAt:         at,
	}.Normalize(), true
}

func categoryOf(name string) (finding.Category, bool) {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "cross site scripting"), strings.Contains(n, "cross-site scripting"):
		switch {
		case strings.Contains(n, "persistent"), strings.Contains(n, "stored"):
			return finding.CategoryStored, true
		case strings.Contains(n, "dom"):
			return finding.CategoryDOM, true
		}
		return finding.CategoryReflected, true
	case strings.Contains(n, "sql injection"):
		switch {
		case strings.Contains(n, "time based"), strings.Contains(n, "time-based"):
			return finding.CategoryTimeBased, true
		case strings.Contains(n, "boolean"):
			return finding.CategoryBoolean, true
		case strings.Contains(n, "union"):
			return finding.CategoryUnion, true
		}
		return finding.CategoryErrorBased, true
	}
	return "", false
}

// severityOf maps the daemon's risk label, falling back to the category's
// severity for labels it does not recognize.
func severityOf(risk string, cat finding.Category) finding.Severity {
	switch strings.ToLower(strings.TrimSpace(risk)) {
	case "high":
		return finding.High
	case "medium":
		return finding.Medium
	case "low":
		return finding.Low
	case "informational", "info":
		return finding.Info
	}
	return cat.Severity()
}
