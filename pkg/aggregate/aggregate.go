// Package aggregate merges findings from concurrent testers into one
// de-duplicated, ordered result set.
package aggregate

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/metrics"
)

// Aggregator collects findings. Add is an atomic insert-if-absent keyed by
// vulnerability family and finding.Key, so the first writer for a key wins.
// The zero value is not usable; call New.
type Aggregator struct {
	logger  *slog.Logger
	metrics *metrics.Recorder

	mu       sync.Mutex
	seen     map[string]struct{}
	items    []finding.Finding
	dupes    int
	rejected int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics counts accepted findings on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(a *Aggregator) { a.metrics = r }
}

// New returns an empty aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		logger: slog.Default(),
		seen:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add stores f unless it names no vulnerable parameter or a finding with
// the same identity is already stored. It reports whether f was stored.
func (a *Aggregator) Add(f finding.Finding) bool {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		a.mu.Lock()
		a.rejected++
		a.mu.Unlock()
		a.logger.Debug("dropping finding", slog.String("url", f.URL), slog.String("error", err.Error()))
		return false
	}
	key := string(f.VulnerabilityType) + "|" + f.Key()

	a.mu.Lock()
	if _, dup := a.seen[key]; dup {
		a.dupes++
		a.mu.Unlock()
		return false
	}
	a.seen[key] = struct{}{}
	a.items = append(a.items, f)
	a.mu.Unlock()

	a.metrics.Finding(string(f.VulnerabilityType), string(f.Severity))
	a.logger.Info("finding",
		slog.String("url", f.URL),
		slog.String("type", string(f.VulnerabilityType)),
		slog.String("severity", string(f.Severity)),
		slog.Any("params", f.VulnerableParameters))
	return true
}

// Findings returns a sorted copy of the stored findings: severity first,
// then URL.
func (a *Aggregator) Findings() []finding.Finding {
	a.mu.Lock()
	out := slices.Clone(a.items)
	a.mu.Unlock()
	finding.Sort(out)
	return out
}

// Len returns the number of stored findings.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Stats returns how many findings were dropped as duplicates and how many
// were rejected for naming no parameter.
func (a *Aggregator) Stats() (duplicates, rejected int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dupes, a.rejected
}
