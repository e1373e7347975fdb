// Package crawler discovers input points by walking a target site breadth
// first from a seed URL. Traversal stays on the seed's origin, is bounded by
// link depth and page count, and runs fetches through a small worker pool
// with paced requests so the target's bot defenses are not tripped.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/duration"
	"github.com/waftester/injectscan/pkg/extract"
	"github.com/waftester/injectscan/pkg/inputpoint"
	"github.com/waftester/injectscan/pkg/iohelper"
	"github.com/waftester/injectscan/pkg/metrics"
	"github.com/waftester/injectscan/pkg/ratelimit"
	"github.com/waftester/injectscan/pkg/workerpool"
)

// ErrInvalidSeed is returned when the seed is not an absolute http(s) URL.
var ErrInvalidSeed = errors.New("crawler: invalid seed URL")

// Config holds crawler configuration.
type Config struct {
	// Concurrency is the number of simultaneous fetches.
	Concurrency int

	// Delay and Jitter pace fetches across all workers.
	Delay  time.Duration
	Jitter time.Duration

	// Timeout bounds each individual fetch.
	Timeout time.Duration

	// MaxPages caps the number of URLs admitted to the fetch stage.
	MaxPages int

	// DisallowedExtensions are never enqueued.
	DisallowedExtensions []string

	// CommonParams substitute for missing parameters. Empty uses
	// defaults.CommonParams.
	CommonParams []string

	// Key is the input-point identity. Nil uses inputpoint.KeyURLMethod.
	Key inputpoint.KeyFunc
}

// DefaultConfig returns default crawler configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:          defaults.CrawlConcurrency,
		Delay:                duration.CrawlDelay,
		Jitter:               duration.CrawlJitter,
		Timeout:              duration.FetchTimeout,
		MaxPages:             defaults.MaxPages,
		DisallowedExtensions: defaults.DisallowedExtensions,
		CommonParams:         defaults.CommonParams,
	}
}

// Crawler walks a site and collects input points. It is safe for
// concurrent use; every Crawl call has its own visited set.
type Crawler struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records page outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Crawler) { c.metrics = r }
}

// New returns a crawler that fetches with client.
func New(cfg Config, client *http.Client, opts ...Option) *Crawler {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if len(cfg.CommonParams) == 0 {
		cfg.CommonParams = def.CommonParams
	}
	if cfg.Key == nil {
		cfg.Key = inputpoint.KeyURLMethod
	}
	if client == nil {
		client = http.DefaultClient
	}
	c := &Crawler{
		cfg:    cfg,
		client: client,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/waftester/injectscan/pkg/crawler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// crawlState is the per-call bookkeeping shared by fetch workers.
type crawlState struct {
	origin *url.URL
	points *inputpoint.Set

	mu       sync.Mutex
	visited  map[string]struct{}
	bodies   map[uint64]struct{}
	admitted int
}

// Crawl walks the site from seed, following links up to maxDepth hops, and
// returns the de-duplicated input points. If no POST input point was found
// a synthetic one is added against the seed. Per-page failures are logged
// and skipped. When ctx ends the points gathered so far are returned with
// ctx.Err().
func (c *Crawler) Crawl(ctx context.Context, seed string, maxDepth int) ([]inputpoint.InputPoint, error) {
	seedURL, err := ParseSeed(seed)
	if err != nil {
		return nil, err
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	ctx, span := c.tracer.Start(ctx, "crawler.Crawl",
		trace.WithAttributes(
			attribute.String("crawl.seed", seedURL.String()),
			attribute.Int("crawl.max_depth", maxDepth),
		))
	defer span.End()

	start := extract.Normalize(seedURL)
	st := &crawlState{
		origin:   seedURL,
		points:   inputpoint.NewSet(c.cfg.Key),
		visited:  map[string]struct{}{start: {}},
		bodies:   make(map[uint64]struct{}),
		admitted: 1,
	}

	pool := workerpool.New(c.cfg.Concurrency)
	defer pool.Close()
	pacer := ratelimit.New(ratelimit.Config{
		Interval: c.cfg.Delay,
		Jitter:   c.cfg.Jitter,
		Adaptive: true,
	})

	frontier := []string{start}
	for depth := 0; len(frontier) > 0; depth++ {
		var (
			mu   sync.Mutex
			next []string
		)
		err := workerpool.Each(ctx, pool, frontier, func(pageURL string) {
			links := c.visit(ctx, st, pacer, pageURL)
			if depth >= maxDepth {
				return
			}
			for _, link := range links {
				if st.admit(link, c.cfg) {
					mu.Lock()
					next = append(next, link)
					mu.Unlock()
				}
			}
		})
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			span.RecordError(err)
			return st.points.Items(), err
		}
		c.logger.Debug("crawl level done",
			slog.Int("depth", depth),
			slog.Int("pages", len(frontier)),
			slog.Int("queued", len(next)))
		frontier = next
	}

	if !st.points.HasMethod(inputpoint.POST) {
		st.points.Add(inputpoint.InputPoint{
			URL:    start,
			Method: inputpoint.POST,
			Params: inputpoint.ParamsFromNames(c.cfg.CommonParams...),
			Source: inputpoint.SourceSynthetic,
		})
	}

	items := st.points.Items()
	span.SetAttributes(attribute.Int("crawl.input_points", len(items)))
	c.logger.Info("crawl finished",
		slog.String("seed", start),
		slog.Int("pages", st.pageCount()),
		slog.Int("input_points", len(items)))
	return items, nil
}

// visit fetches one page, records its input points and returns its links.
func (c *Crawler) visit(ctx context.Context, st *crawlState, pacer *ratelimit.Pacer, pageURL string) []string {
	if err := pacer.Wait(ctx); err != nil {
		return nil
	}

	began := time.Now()
	final, body, err := c.fetch(ctx, pacer, pageURL)
	elapsed := time.Since(began)
	if err != nil {
		outcome := metrics.PageError
		if errors.Is(err, errStatus) {
			outcome = metrics.PageStatus
		} else if errors.Is(err, errNotHTML) {
			outcome = metrics.PageSkipped
		}
		c.metrics.Page(outcome, elapsed)
		c.logger.Debug("skipping page",
			slog.String("url", pageURL),
			slog.String("error", err.Error()))
		// Non-HTML responses only contribute the parameters they were reached with.
		if errors.Is(err, errNotHTML) && final != nil && final.RawQuery != "" {
			st.points.Add(extract.QueryPoint(final, c.cfg.CommonParams))
		}
		return nil
	}
	c.metrics.Page(metrics.PageOK, elapsed)

	if !st.firstBody(body) {
		st.points.Add(extract.QueryPoint(final, c.cfg.CommonParams))
		return nil
	}

	page, err := extract.Parse(final, body, extract.Options{CommonParams: c.cfg.CommonParams})
	if err != nil {
		c.logger.Debug("unparseable page",
			slog.String("url", pageURL),
			slog.String("error", err.Error()))
		st.points.Add(extract.QueryPoint(final, c.cfg.CommonParams))
		return nil
	}
	for _, ip := range page.InputPoints {
		st.points.Add(ip)
	}
	return page.Links
}

var (
	errStatus    = errors.New("crawler: non-2xx status")
	errNotHTML   = errors.New("crawler: not an HTML document")
	errOffOrigin = errors.New("crawler: redirected off origin")
)

// fetch issues a time-bounded GET and returns the final URL and body of an
// HTML page on the seed's origin.
func (c *Crawler) fetch(ctx context.Context, pacer *ratelimit.Pacer, pageURL string) (*url.URL, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	final := resp.Request.URL
	pacer.Observe(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		iohelper.DrainAndClose(resp.Body)
		return nil, nil, fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}
	origin, _ := url.Parse(pageURL)
	if !extract.SameOrigin(final, origin) {
		iohelper.DrainAndClose(resp.Body)
		return nil, nil, fmt.Errorf("%w: %s", errOffOrigin, final.Redacted())
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		iohelper.DrainAndClose(resp.Body)
		return final, nil, fmt.Errorf("%w: %s", errNotHTML, resp.Header.Get("Content-Type"))
	}

	body, err := iohelper.ReadAndClose(resp.Body, iohelper.PageMaxBodySize)
	if err != nil {
		return nil, nil, err
	}
	return final, body, nil
}

// isHTML accepts markup content types and a missing header.
func isHTML(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml", "text/plain":
		return true
	}
	return false
}

// admit marks link visited and reports whether it should be fetched.
func (st *crawlState) admit(link string, cfg Config) bool {
	u, err := url.Parse(link)
	if err != nil || !extract.SameOrigin(u, st.origin) {
		return false
	}
	if slices.Contains(cfg.DisallowedExtensions, strings.ToLower(path.Ext(u.Path))) {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, seen := st.visited[link]; seen {
		return false
	}
	st.visited[link] = struct{}{}
	if st.admitted >= cfg.MaxPages {
		return false
	}
	st.admitted++
	return true
}

// firstBody reports whether body has not been seen before in this crawl.
func (st *crawlState) firstBody(body []byte) bool {
	sum := murmur3.Sum64(body)
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, seen := st.bodies[sum]; seen {
		return false
	}
	st.bodies[sum] = struct{}{}
	return true
}

func (st *crawlState) pageCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.admitted
}

// ParseSeed validates a crawl seed: it must be an absolute http or https
// URL with a host.
func ParseSeed(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidSeed, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidSeed)
	}
	return u, nil
}
