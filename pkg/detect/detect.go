// Package detect decides from a response whether an injected payload
// landed. Detectors are pure: they see only the payload, the response body,
// its status and how long it took, so they can be exercised without a
// network.
package detect

import (
	"time"
	"unicode/utf8"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/duration"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/payloads"
)

// Verdict is the outcome of one detection.
type Verdict int

const (
	// NotVulnerable means no signal was found.
	NotVulnerable Verdict = iota
	// Vulnerable means the payload demonstrably landed.
	Vulnerable
	// Undetermined means the response was a bot-defense or challenge page
	// and says nothing either way.
	Undetermined
)

func (v Verdict) String() string {
	switch v {
	case Vulnerable:
		return "vulnerable"
	case Undetermined:
		return "undetermined"
	default:
		return "not-vulnerable"
	}
}

// Response is what a detector inspects.
type Response struct {
	Status  int
	Body    string
	Elapsed time.Duration
}

// Result is a detector's verdict with its supporting evidence.
type Result struct {
	Verdict  Verdict
	Reason   string
	Evidence string
}

// Vulnerable reports whether the verdict is a hit.
func (r Result) Vulnerable() bool { return r.Verdict == Vulnerable }

// Detector judges one response to one payload.
type Detector interface {
	Detect(p payloads.Payload, resp Response) Result
}

// Config tunes the detectors.
type Config struct {
	// TimeThreshold is the elapsed time above which a time-delay payload
	// counts as a hit.
	TimeThreshold time.Duration

	// Heuristic enables the loose sensitive-token check in the error/time
	// detector. It is a known source of false positives.
	Heuristic bool

	// HeuristicTokens are the words the heuristic looks for.
	HeuristicTokens []string
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		TimeThreshold:   duration.TimeBasedThreshold,
		HeuristicTokens: defaults.HeuristicTokens,
	}
}

// Suite dispatches to the detector matching a payload's family.
type Suite struct {
	XSS  Detector
	SQLi Detector
}

// New returns the reflection and error/time detectors for cfg.
func New(cfg Config) *Suite {
	return &Suite{
		XSS:  NewReflection(),
		SQLi: NewErrorTime(cfg),
	}
}

// Detect implements Detector.
func (s *Suite) Detect(p payloads.Payload, resp Response) Result {
	switch p.Family() {
	case finding.FamilyXSS:
		return s.XSS.Detect(p, resp)
	case finding.FamilySQLi:
		return s.SQLi.Detect(p, resp)
	}
	return Result{}
}

// snippet returns up to defaults.EvidenceLimit bytes of s starting at
// start, cut on a rune boundary.
func snippet(s string, start int) string {
	if start < 0 {
		start = 0
	}
	if start >= len(s) {
		return ""
	}
	end := min(start+defaults.EvidenceLimit, len(s))
	for end < len(s) && end > start && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[start:end]
}
