package crawler

import (
	"context"

	"github.com/waftester/injectscan/pkg/inputpoint"
)

// Discoverer is the consumer-side interface for input-point discovery.
// Consumers should depend on it rather than on *Crawler so tests can
// supply a fixed set of points.
type Discoverer interface {
	Crawl(ctx context.Context, seed string, maxDepth int) ([]inputpoint.InputPoint, error)
}

var _ Discoverer = (*Crawler)(nil)
