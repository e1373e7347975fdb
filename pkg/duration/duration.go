// Package duration holds the time constants shared by the scanner.
//
//	ctx, cancel := context.WithTimeout(ctx, duration.ScanWatchdog)
//
// Configuration may override most of these; the constants are the defaults.
package duration

import "time"

// ============================================================================
// HTTP
// ============================================================================

const (
	// FetchTimeout bounds a single crawl fetch or probe request (15s).
	FetchTimeout = 15 * time.Second

	// DaemonAPITimeout bounds a single call to the delegated scan daemon (30s).
	DaemonAPITimeout = 30 * time.Second

	// DialTimeout bounds TCP connect (10s).
	DialTimeout = 10 * time.Second

	// TLSHandshake bounds the TLS handshake, including fingerprinted ones (10s).
	TLSHandshake = 10 * time.Second

	// IdleConn is how long pooled connections stay open (90s).
	IdleConn = 90 * time.Second
)

// ============================================================================
// PACING
// ============================================================================
//
// Small gaps between requests keep bot defenses from tripping.
// ============================================================================

const (
	// CrawlDelay is the minimum gap between crawl fetches (150ms).
	CrawlDelay = 150 * time.Millisecond

	// CrawlJitter is the random extra added to CrawlDelay (100ms).
	CrawlJitter = 100 * time.Millisecond

	// AttemptDelay separates payload attempts on one input point (100ms).
	AttemptDelay = 100 * time.Millisecond
)

// ============================================================================
// DETECTION
// ============================================================================

const (
	// TimeBasedThreshold is the latency above which a time-delay payload
	// counts as a hit (3s).
	TimeBasedThreshold = 3 * time.Second
)

// ============================================================================
// LIFECYCLE
// ============================================================================

const (
	// ScanWatchdog caps total scan wall time (5min).
	ScanWatchdog = 5 * time.Minute

	// DaemonPoll is the status poll interval for the delegated daemon (2s).
	DaemonPoll = 2 * time.Second

	// FinalizeTimeout bounds terminal store writes once the run context is done (30s).
	FinalizeTimeout = 30 * time.Second

	// RetryFast is the first backoff delay for store writes (200ms).
	RetryFast = 200 * time.Millisecond

	// RetryMax caps a single store-write backoff (5s).
	RetryMax = 5 * time.Second

	// ShutdownTimeout bounds metrics server and tracer shutdown (5s).
	ShutdownTimeout = 5 * time.Second
)
