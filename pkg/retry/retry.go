// Package retry runs idempotent operations with backoff. The scan
// orchestrator uses it for job-store writes; HTTP probes are never retried.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/waftester/injectscan/pkg/duration"
)

// Strategy selects how the delay grows between attempts.
type Strategy int

const (
	// Exponential doubles the delay after every failed attempt.
	Exponential Strategy = iota
	// Constant waits InitDelay between every attempt.
	Constant
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // total attempts including the first; <= 0 disables fn entirely
	InitDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap on a single delay
	Strategy    Strategy
	Jitter      bool // spread each delay by up to ±25%

	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// PersistConfig is the policy for store writes: four attempts with
// exponential backoff starting at duration.RetryFast.
func PersistConfig() Config {
	return Config{
		MaxAttempts: 4,
		InitDelay:   duration.RetryFast,
		MaxDelay:    duration.RetryMax,
		Strategy:    Exponential,
		Jitter:      true,
	}
}

// StopError marks an error as permanent.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so that Do returns it without further attempts.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &StopError{Err: err}
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn until it succeeds, returns a StopError, the attempts are
// exhausted, or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return do(ctx, cfg, fn, sleepCtx)
}

func do(ctx context.Context, cfg Config, fn func() error, sleep sleepFunc) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var stop *StopError
		if errors.As(lastErr, &stop) {
			return stop.Err
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}
		if err := sleep(ctx, Delay(cfg, attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// Delay returns the wait before retry number attempt+1 (attempt is 0-indexed).
func Delay(cfg Config, attempt int) time.Duration {
	d := cfg.InitDelay
	if cfg.Strategy == Exponential {
		for i := 0; i < attempt && (cfg.MaxDelay <= 0 || d < cfg.MaxDelay); i++ {
			d *= 2
		}
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if cfg.Jitter {
		if quarter := int64(d) / 4; quarter > 0 {
			d += time.Duration(rand.Int64N(2*quarter) - quarter)
		}
	}
	return d
}
