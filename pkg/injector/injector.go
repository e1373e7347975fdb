// Package injector runs payloads against discovered input points. Each
// (input point, payload) pair is one unit of work on a bounded pool; within
// a unit, request shapes are tried in order and the first confirmed hit
// ends the unit. Attempts against one input point are spaced by Delay
// however many workers reach it.
package injector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waftester/injectscan/pkg/aggregate"
	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/detect"
	"github.com/waftester/injectscan/pkg/duration"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/inputpoint"
	"github.com/waftester/injectscan/pkg/iohelper"
	"github.com/waftester/injectscan/pkg/metrics"
	"github.com/waftester/injectscan/pkg/payloads"
	"github.com/waftester/injectscan/pkg/ratelimit"
	"github.com/waftester/injectscan/pkg/workerpool"
)

// Config holds tester configuration.
type Config struct {
	// Concurrency is the number of simultaneous attempts.
	Concurrency int

	// Delay is the minimum gap between attempts on the same input point.
	Delay time.Duration

	// Timeout bounds each request.
	Timeout time.Duration

	// PathProbe also appends the payload as an extra path segment of GET
	// input points.
	PathProbe bool

	// SyntheticProbe also sends the payload in SyntheticParams on GET input
	// points whose URL has no query string.
	SyntheticProbe  bool
	SyntheticParams []string
}

// DefaultConfig returns default tester configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:     defaults.TestConcurrency,
		Delay:           duration.AttemptDelay,
		Timeout:         duration.FetchTimeout,
		PathProbe:       true,
		SyntheticProbe:  true,
		SyntheticParams: defaults.SyntheticParams,
	}
}

// Tester injects payloads and collects confirmed findings.
type Tester struct {
	cfg      Config
	client   *http.Client
	detector detect.Detector
	logger   *slog.Logger
	metrics  *metrics.Recorder
	tracer   trace.Tracer
}

// Option configures a Tester.
type Option func(*Tester)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tester) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics records attempts and findings on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(t *Tester) { t.metrics = r }
}

// New returns a tester sending requests with client and judging responses
// with det.
func New(cfg Config, client *http.Client, det detect.Detector, opts ...Option) *Tester {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if len(cfg.SyntheticParams) == 0 {
		cfg.SyntheticParams = def.SyntheticParams
	}
	if client == nil {
		client = http.DefaultClient
	}
	if det == nil {
		det = detect.New(detect.DefaultConfig())
	}
	t := &Tester{
		cfg:      cfg,
		client:   client,
		detector: det,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/waftester/injectscan/pkg/injector"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type unit struct {
	point   inputpoint.InputPoint
	payload payloads.Payload
	gate    *ratelimit.Pacer // shared by every unit of point
}

// Test runs every payload against every input point and returns the
// de-duplicated findings. Per-request failures count as misses. When ctx
// ends, the findings confirmed so far are returned with ctx.Err().
func (t *Tester) Test(ctx context.Context, points []inputpoint.InputPoint, ps []payloads.Payload) ([]finding.Finding, error) {
	ctx, span := t.tracer.Start(ctx, "injector.Test",
		trace.WithAttributes(
			attribute.Int("test.input_points", len(points)),
			attribute.Int("test.payloads", len(ps)),
		))
	defer span.End()

	// Payload-major order spreads concurrent workers across input points.
	gates := make([]*ratelimit.Pacer, len(points))
	for i := range points {
		gates[i] = t.pointGate()
	}
	units := make([]unit, 0, len(points)*len(ps))
	for _, p := range ps {
		for i, ip := range points {
			units = append(units, unit{point: ip, payload: p, gate: gates[i]})
		}
	}

	agg := aggregate.New(aggregate.WithLogger(t.logger), aggregate.WithMetrics(t.metrics))
	pool := workerpool.New(t.cfg.Concurrency)
	defer pool.Close()
	pacer := ratelimit.New(ratelimit.Config{Adaptive: true})

	err := workerpool.Each(ctx, pool, units, func(u unit) {
		if f, ok := t.run(ctx, pacer, u); ok {
			agg.Add(f)
		}
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
	}

	findings := agg.Findings()
	span.SetAttributes(attribute.Int("test.findings", len(findings)))
	t.logger.Info("testing finished",
		slog.Int("attempt_units", len(units)),
		slog.Int("findings", len(findings)))
	return findings, err
}

// pointGate returns the pacer for one input point, nil when Delay is zero.
func (t *Tester) pointGate() *ratelimit.Pacer {
	if t.cfg.Delay <= 0 {
		return nil
	}
	return ratelimit.New(ratelimit.Config{Interval: t.cfg.Delay})
}

// run tries every request shape for one unit and returns the first hit.
func (t *Tester) run(ctx context.Context, pacer *ratelimit.Pacer, u unit) (finding.Finding, bool) {
	return firstHit(ctx, t.attempts(u), func(ctx context.Context, a attempt) (finding.Finding, bool) {
		return t.try(ctx, pacer, u, a)
	})
}

// try sends one attempt and turns a confirmed detection into a finding.
func (t *Tester) try(ctx context.Context, pacer *ratelimit.Pacer, u unit, a attempt) (finding.Finding, bool) {
	family := string(u.payload.Family())
	if err := u.gate.Wait(ctx); err != nil {
		return finding.Finding{}, false
	}
	if err := pacer.Wait(ctx); err != nil {
		return finding.Finding{}, false
	}

	resp, err := t.send(ctx, pacer, a)
	if err != nil {
		t.metrics.Attempt(family, metrics.AttemptError, 0)
		t.logger.Debug("attempt failed",
			slog.String("url", a.target),
			slog.String("probe", a.probe),
			slog.String("error", err.Error()))
		return finding.Finding{}, false
	}

	res := t.detector.Detect(u.payload, resp)
	switch res.Verdict {
	case detect.Vulnerable:
		t.metrics.Attempt(family, metrics.AttemptHit, resp.Elapsed)
	case detect.Undetermined:
		t.metrics.Attempt(family, metrics.AttemptUndetermined, resp.Elapsed)
		t.logger.Debug("response undetermined",
			slog.String("url", a.target),
			slog.String("reason", res.Reason))
		return finding.Finding{}, false
	default:
		t.metrics.Attempt(family, metrics.AttemptMiss, resp.Elapsed)
		return finding.Finding{}, false
	}

	p := u.payload
	return finding.Finding{
		URL:                  u.point.URL,
		Method:               string(a.method),
		VulnerabilityType:    p.Family(),
		PayloadCategory:      p.Category,
		PayloadUsed:          p.Value,
		VulnerableParameters: a.params,
		Severity:             p.Severity(),
		Details: fmt.Sprintf("%s in %s (%s)",
			p.Family().Label(), strings.Join(a.params, ", "), res.Reason),
		Evidence:       res.Evidence,
		Form:           u.point.Form(),
		Probe:          a.probe,
		ResponseTimeMs: resp.Elapsed.Milliseconds(),
		DiscoveredAt:   time.Now().UTC(),
	}, true
}

// send issues one time-bounded request and reads the response.
func (t *Tester) send(ctx context.Context, pacer *ratelimit.Pacer, a attempt) (detect.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	req, err := a.request(ctx)
	if err != nil {
		return detect.Response{}, err
	}
	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return detect.Response{}, err
	}
	pacer.Observe(resp.StatusCode)
	body, err := iohelper.ReadAndClose(resp.Body, iohelper.PageMaxBodySize)
	elapsed := time.Since(start)
	if err != nil {
		return detect.Response{}, err
	}
	return detect.Response{Status: resp.StatusCode, Body: string(body), Elapsed: elapsed}, nil
}
