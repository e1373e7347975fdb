// Package ratelimit paces outbound requests so crawling and probing stay
// below the rate that trips bot defenses. It wraps golang.org/x/time/rate
// with random jitter and adaptive slowdown on throttling responses.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config controls a Pacer.
type Config struct {
	// Interval is the minimum gap between requests across all workers
	// sharing the pacer. Zero disables pacing.
	Interval time.Duration

	// Jitter adds a random extra delay in [0, Jitter) after each token.
	Jitter time.Duration

	// Adaptive halves the rate (down to MinRate) each time the target
	// answers 429 or 503.
	Adaptive bool

	// MinRate is the floor for adaptive slowdown, in requests per second.
	MinRate float64
}

// Pacer gates requests. A nil *Pacer does not pace.
type Pacer struct {
	cfg     Config
	limiter *rate.Limiter

	mu       sync.Mutex
	slowdown int
}

// New returns a pacer for cfg.
func New(cfg Config) *Pacer {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	if cfg.MinRate <= 0 {
		cfg.MinRate = 0.5
	}
	return &Pacer{cfg: cfg, limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request may be sent or ctx ends.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if p.cfg.Jitter > 0 {
		return Sleep(ctx, time.Duration(rand.Int64N(int64(p.cfg.Jitter))))
	}
	return nil
}

// Observe feeds a response status back into adaptive slowdown.
func (p *Pacer) Observe(status int) {
	if p == nil || !p.cfg.Adaptive {
		return
	}
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.limiter.Limit()
	if current == rate.Inf {
		current = rate.Limit(10)
	}
	next := current / 2
	if float64(next) < p.cfg.MinRate {
		next = rate.Limit(p.cfg.MinRate)
	}
	p.limiter.SetLimit(next)
	p.slowdown++
}

// Limit returns the current rate in requests per second.
func (p *Pacer) Limit() rate.Limit {
	if p == nil {
		return rate.Inf
	}
	return p.limiter.Limit()
}

// Slowdowns returns how many times adaptive slowdown fired.
func (p *Pacer) Slowdowns() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slowdown
}

// Sleep waits for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
