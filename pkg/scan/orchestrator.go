// Package scan owns the end-to-end lifecycle of a scan job: validation,
// persistence handoff, the watchdog, cancellation and the status state
// machine. It is the only package external callers drive.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/waftester/injectscan/pkg/crawler"
	"github.com/waftester/injectscan/pkg/duration"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/metrics"
	"github.com/waftester/injectscan/pkg/retry"
)

// Store persists job records. The orchestrator writes at creation and at
// terminal status only and never reads mid-run.
type Store interface {
	CreateJob(ctx context.Context, targetURL string, mode Mode) (string, error)
	AppendFindings(ctx context.Context, jobID string, findings []finding.Finding) error
	UpdateStatus(ctx context.Context, jobID string, status Status, ts Timestamps) error
}

// Orchestrator runs scans. It is safe for concurrent use; each Run owns
// its job.
type Orchestrator struct {
	engine   Engine
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Recorder
	tracer   trace.Tracer
	watchdog time.Duration
	retryCfg retry.Config
	now      func() time.Time

	mu      sync.Mutex
	jobs    map[string]*Job
	cancels map[string]context.CancelCauseFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records scan lifecycle metrics on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithWatchdog bounds total scan duration. Non-positive values keep the
// default.
func WithWatchdog(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.watchdog = d
		}
	}
}

// WithRetry sets the backoff used for persistence writes.
func WithRetry(cfg retry.Config) Option {
	return func(o *Orchestrator) { o.retryCfg = cfg }
}

// NewOrchestrator returns an orchestrator running engine and persisting to
// store.
func NewOrchestrator(engine Engine, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:   engine,
		store:    store,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/waftester/injectscan/pkg/scan"),
		watchdog: duration.ScanWatchdog,
		retryCfg: retry.PersistConfig(),
		now:      func() time.Time { return time.Now().UTC() },
		jobs:     make(map[string]*Job),
		cancels:  make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var (
	errCanceledByCaller = errors.New("scan: canceled by caller")
	errWatchdog         = errors.New("scan: watchdog expired")
)

// Run executes one scan to a terminal status. It returns an error only for
// validation failures (ErrInvalidRequest) and store failures
// (ErrStoreUnavailable); both come with a Failed outcome. Cancellation
// through ctx, Cancel or the watchdog yields Canceled with no findings.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	target, err := crawler.ParseSeed(req.TargetURL)
	if err != nil {
		return o.rejected(fmt.Errorf("%w: %w", ErrInvalidTarget, err))
	}
	families, err := ParseScanners(familyNames(req.Scanners))
	if err != nil {
		return o.rejected(err)
	}
	mode := ModeFor(req.DeepScan)

	ctx, span := o.tracer.Start(ctx, "scan.Run",
		trace.WithAttributes(
			attribute.String("scan.target", target.String()),
			attribute.String("scan.mode", string(mode)),
		))
	defer span.End()

	id, err := o.store.CreateJob(ctx, target.String(), mode)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("create job", slog.String("target", target.String()), slog.String("error", err.Error()))
		out := &Outcome{Status: StatusFailed, Error: err.Error()}
		return out, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	span.SetAttributes(attribute.String("scan.job_id", id))

	job := &Job{ID: id, TargetURL: target.String(), Mode: mode, Scanners: families, Status: StatusPending, CreatedAt: o.now()}
	runCtx, cancel := context.WithCancelCause(ctx)
	o.register(job, cancel)
	defer o.unregister(id)
	defer cancel(nil)

	started := o.now()
	if err := o.advance(job, StatusInProgress, started); err != nil {
		return o.finish(ctx, job, StatusFailed, nil, err)
	}
	if err := o.persistStatus(ctx, o.snapshot(job)); err != nil {
		return o.finish(ctx, job, StatusFailed, nil, err)
	}
	o.metrics.ScanStarted()
	o.logger.Info("scan started",
		slog.String("job", id),
		slog.String("target", job.TargetURL),
		slog.String("mode", string(mode)))

	watchdog := time.AfterFunc(o.watchdog, func() { cancel(errWatchdog) })
	defer watchdog.Stop()

	found, scanErr := o.engine.Scan(runCtx, job.TargetURL, mode, families)

	var out *Outcome
	switch {
	case runCtx.Err() != nil:
		cause := context.Cause(runCtx)
		o.logger.Info("scan canceled", slog.String("job", id), slog.String("cause", cause.Error()))
		out, err = o.finish(ctx, job, StatusCanceled, nil, nil)
	case scanErr != nil:
		o.logger.Error("scan failed", slog.String("job", id), slog.String("error", scanErr.Error()))
		job.Error = scanErr.Error()
		out, err = o.finish(ctx, job, StatusFailed, nil, nil)
	default:
		if len(found) == 0 {
			found = []finding.Finding{finding.NoVulnerabilities(job.TargetURL, o.now())}
		}
		out, err = o.finish(ctx, job, StatusCompleted, found, nil)
	}
	o.metrics.ScanFinished(string(out.Status))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("scan.status", string(out.Status)))
	return out, err
}

// finish moves job to a terminal status, persists it and freezes the
// outcome. A store failure turns any outcome into Failed.
func (o *Orchestrator) finish(ctx context.Context, job *Job, status Status, found []finding.Finding, cause error) (*Outcome, error) {
	// Persist even if the caller's context is already done.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), duration.FinalizeTimeout)
	defer cancel()

	if cause != nil && job.Error == "" {
		job.Error = cause.Error()
	}
	storeErr := cause
	if status == StatusCompleted {
		if err := retry.Do(ctx, o.persistRetry(job.ID, "append findings"), func() error {
			return o.store.AppendFindings(ctx, job.ID, found)
		}); err != nil {
			storeErr = err
			status, found = StatusFailed, nil
			job.Error = err.Error()
		}
	}

	// The terminal status is written before the job commits to it, so a
	// failed write can still fall back to Failed.
	at := o.now()
	if err := o.persistStatus(ctx, o.terminal(job, status, at)); err != nil && status != StatusFailed {
		if storeErr == nil {
			storeErr = err
		}
		status, found = StatusFailed, nil
		job.Error = err.Error()
		if err := o.persistStatus(ctx, o.terminal(job, status, at)); err != nil {
			o.logger.Error("record failed status", slog.String("job", job.ID), slog.String("error", err.Error()))
		}
	} else if err != nil && storeErr == nil {
		storeErr = err
	}

	if err := o.advance(job, status, at); err != nil {
		o.logger.Error("status transition", slog.String("job", job.ID), slog.String("error", err.Error()))
	}
	o.mu.Lock()
	job.Findings = found
	o.mu.Unlock()

	snap := o.snapshot(job)
	out := &Outcome{
		JobID:     snap.ID,
		Status:    snap.Status,
		Findings:  snap.Findings,
		StartedAt: snap.StartedAt,
		Error:     snap.Error,
	}
	if snap.CompletedAt != nil {
		out.CompletedAt = *snap.CompletedAt
	}
	o.logger.Info("scan finished",
		slog.String("job", job.ID),
		slog.String("status", string(out.Status)),
		slog.Int("findings", len(out.Findings)))

	if storeErr != nil {
		return out, fmt.Errorf("%w: %w", ErrStoreUnavailable, storeErr)
	}
	return out, nil
}

// terminal returns a copy of job moved to status, leaving job untouched.
func (o *Orchestrator) terminal(job *Job, status Status, at time.Time) Job {
	snap := o.snapshot(job)
	if err := snap.Transition(status, at); err != nil {
		o.logger.Error("status transition", slog.String("job", job.ID), slog.String("error", err.Error()))
	}
	return snap
}

func (o *Orchestrator) persistStatus(ctx context.Context, snap Job) error {
	return retry.Do(ctx, o.persistRetry(snap.ID, "update status"), func() error {
		return o.store.UpdateStatus(ctx, snap.ID, snap.Status, Timestamps{
			StartedAt:   snap.StartedAt,
			CompletedAt: snap.CompletedAt,
		})
	})
}

func (o *Orchestrator) persistRetry(jobID, op string) retry.Config {
	cfg := o.retryCfg
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	cfg.OnRetry = func(attempt int, err error) {
		o.logger.Warn("retrying store write",
			slog.String("job", jobID),
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return cfg
}

func (o *Orchestrator) advance(job *Job, status Status, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return job.Transition(status, at)
}

func (o *Orchestrator) rejected(err error) (*Outcome, error) {
	o.logger.Warn("scan rejected", slog.String("error", err.Error()))
	return &Outcome{Status: StatusFailed, Error: err.Error()}, err
}

func (o *Orchestrator) register(job *Job, cancel context.CancelCauseFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs[job.ID] = job
	o.cancels[job.ID] = cancel
}

// unregister forgets the cancel func; the job record stays readable.
func (o *Orchestrator) unregister(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, id)
}

func (o *Orchestrator) snapshot(job *Job) Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return job.Clone()
}

// Cancel stops a running scan. The scan ends Canceled.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	cancel(errCanceledByCaller)
	return nil
}

// Job returns a copy of a job this orchestrator has run or is running.
// Findings are present only once the job is Completed.
func (o *Orchestrator) Job(id string) (Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// Running returns the IDs of scans in progress.
func (o *Orchestrator) Running() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.cancels))
	for id := range o.cancels {
		ids = append(ids, id)
	}
	return ids
}

func familyNames(fs []finding.Family) []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = string(f)
	}
	return names
}
