package scan

import (
	"context"
	"log/slog"

	"github.com/waftester/injectscan/pkg/crawler"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/inputpoint"
	"github.com/waftester/injectscan/pkg/payloads"
)

// Engine discovers and confirms vulnerabilities for one target. The
// built-in crawl-and-inject engine and the delegated daemon engine both
// implement it.
type Engine interface {
	Scan(ctx context.Context, target string, mode Mode, families []finding.Family) ([]finding.Finding, error)
}

// Tester runs payloads against input points.
type Tester interface {
	Test(ctx context.Context, points []inputpoint.InputPoint, ps []payloads.Payload) ([]finding.Finding, error)
}

// CrawlTestEngine crawls the target, then tests every discovered input
// point with the library's payloads for each selected family.
type CrawlTestEngine struct {
	crawler crawler.Discoverer
	tester  Tester
	library *payloads.Library
	logger  *slog.Logger
}

// NewCrawlTestEngine wires a discoverer, a tester and a payload library.
// The discoverer should de-duplicate by URL, method and parameter names;
// the engine coarsens the set per family.
func NewCrawlTestEngine(d crawler.Discoverer, t Tester, lib *payloads.Library, logger *slog.Logger) *CrawlTestEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if lib == nil {
		lib = payloads.Default()
	}
	return &CrawlTestEngine{crawler: d, tester: t, library: lib, logger: logger}
}

// Scan implements Engine.
func (e *CrawlTestEngine) Scan(ctx context.Context, target string, mode Mode, families []finding.Family) ([]finding.Finding, error) {
	points, err := e.crawler.Crawl(ctx, target, mode.Depth())
	if err != nil {
		return nil, err
	}
	e.logger.Info("input points discovered", slog.String("target", target), slog.Int("count", len(points)))

	var all []finding.Finding
	for _, fam := range families {
		ps := e.library.Select(fam)
		if len(ps) == 0 {
			continue
		}
		found, err := e.tester.Test(ctx, PointsFor(fam, points), ps)
		all = append(all, found...)
		if err != nil {
			return all, err
		}
	}
	finding.Sort(all)
	return all, nil
}

// PointsFor de-duplicates points with the identity the family uses: URL
// and method for XSS, plus parameter names for SQL injection.
func PointsFor(fam finding.Family, points []inputpoint.InputPoint) []inputpoint.InputPoint {
	key := inputpoint.KeyURLMethod
	if fam == finding.FamilySQLi {
		key = inputpoint.KeyURLMethodParams
	}
	set := inputpoint.NewSet(key)
	for _, ip := range points {
		set.Add(ip)
	}
	return set.Items()
}
