// Package metrics exposes scanner instrumentation for Prometheus. A nil
// *Recorder is valid and records nothing, so instrumented packages never
// need to check whether metrics are enabled.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waftester/injectscan/pkg/duration"
)

// Page outcomes.
const (
	PageOK      = "ok"
	PageError   = "error"
	PageStatus  = "bad_status"
	PageSkipped = "skipped"
)

// Attempt outcomes.
const (
	AttemptHit          = "hit"
	AttemptMiss         = "miss"
	AttemptError        = "error"
	AttemptUndetermined = "undetermined"
)

// Recorder owns a private registry and the scanner's collectors.
type Recorder struct {
	registry *prometheus.Registry

	pages       *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	findings    *prometheus.CounterVec
	scans       *prometheus.CounterVec
	activeScans prometheus.Gauge
	latency     *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "injectscan_pages_total",
			Help: "Crawl fetches by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "injectscan_attempts_total",
			Help: "Payload attempts by vulnerability family and outcome.",
		}, []string{"family", "outcome"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "injectscan_findings_total",
			Help: "Confirmed findings by vulnerability family and severity.",
		}, []string{"family", "severity"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "injectscan_scans_total",
			Help: "Finished scans by terminal status.",
		}, []string{"status"}),
		activeScans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "injectscan_active_scans",
			Help: "Scans currently in progress.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "injectscan_request_duration_seconds",
			Help:    "Target response time by scan phase.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"phase"}),
	}
	for _, c := range []prometheus.Collector{r.pages, r.attempts, r.findings, r.scans, r.activeScans, r.latency} {
		if err := r.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Page counts one crawl fetch.
func (r *Recorder) Page(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.pages.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		r.latency.WithLabelValues("crawl").Observe(elapsed.Seconds())
	}
}

// Attempt counts one payload attempt.
func (r *Recorder) Attempt(family, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(family, outcome).Inc()
	if elapsed > 0 {
		r.latency.WithLabelValues("test").Observe(elapsed.Seconds())
	}
}

// Finding counts one accepted finding.
func (r *Recorder) Finding(family, severity string) {
	if r == nil {
		return
	}
	r.findings.WithLabelValues(family, severity).Inc()
}

// ScanStarted marks a scan as in progress.
func (r *Recorder) ScanStarted() {
	if r == nil {
		return
	}
	r.activeScans.Inc()
}

// ScanFinished records a terminal status for a scan started with
// ScanStarted.
func (r *Recorder) ScanFinished(status string) {
	if r == nil {
		return
	}
	r.activeScans.Dec()
	r.scans.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Serve exposes /metrics on addr until ctx ends.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: duration.ShutdownTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), duration.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
