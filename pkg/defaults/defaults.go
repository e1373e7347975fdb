// Package defaults holds the scanner's default values and shared literals.
//
//	cfg.Crawl.Concurrency = defaults.CrawlConcurrency
//	req.Header.Set("Content-Type", defaults.ContentTypeForm)
package defaults

import "fmt"

// Version is the current injectscan version.
const Version = "0.4.1"

// ToolName is the binary and service name.
const ToolName = "injectscan"

// UserAgent identifies the scanner unless the config overrides it.
var UserAgent = fmt.Sprintf("Mozilla/5.0 (compatible; %s/%s)", ToolName, Version)

// ============================================================================
// CONCURRENCY
// ============================================================================

const (
	// CrawlConcurrency is the crawl-phase fetch budget (3).
	CrawlConcurrency = 3

	// TestConcurrency is the test-phase attempt budget (10).
	TestConcurrency = 10

	// ConcurrencyMax is the upper bound accepted by config validation (50).
	ConcurrencyMax = 50
)

// ============================================================================
// CRAWL
// ============================================================================

const (
	// DepthShallow is the link-hop budget in shallow mode.
	DepthShallow = 1

	// DepthDeep is the link-hop budget in deep mode.
	DepthDeep = 3

	// MaxPages caps the number of pages fetched per crawl (200).
	MaxPages = 200
)

// CommonParams are probed when a page or form exposes no named inputs.
var CommonParams = []string{"query", "search", "q", "input", "text", "comment", "message"}

// SyntheticParams are appended to query-less URLs by the secondary probe.
var SyntheticParams = []string{"query", "q", "search"}

// DisallowedExtensions are never enqueued by the crawler.
var DisallowedExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".bmp",
	".css", ".js", ".mjs", ".map", ".woff", ".woff2", ".ttf", ".eot", ".otf",
	".mp3", ".mp4", ".avi", ".mov", ".webm", ".wav",
	".zip", ".tar", ".gz", ".rar", ".7z", ".pdf", ".exe", ".dmg",
}

// ============================================================================
// DETECTION
// ============================================================================

const (
	// EvidenceLimit is the maximum evidence snippet length in bytes.
	EvidenceLimit = 200
)

// HeuristicTokens are the loose SQLi heuristic's trigger words.
var HeuristicTokens = []string{"admin", "password", "you have an error in your sql syntax"}

// ============================================================================
// HTTP
// ============================================================================

const (
	ContentTypeForm = "application/x-www-form-urlencoded"
	ContentTypeJSON = "application/json"

	// MaxIdleConnsPerHost sizes the shared transport pool.
	MaxIdleConnsPerHost = 20
)

// ============================================================================
// STORAGE
// ============================================================================

const (
	// StoreDir is the default job-store directory, relative to the working directory.
	StoreDir = ".injectscan"

	// DirPermission and FilePermission are used for the job store.
	DirPermission  = 0o755
	FilePermission = 0o644
)
