package scan

import (
	"fmt"
	"strings"

	"github.com/waftester/injectscan/pkg/defaults"
)

// Status is a scan job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// transitions lists the legal next states. Terminal states have none.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusFailed, StatusCanceled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusCanceled},
}

// IsTerminal reports whether s is absorbing.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Mode selects crawl depth.
type Mode string

const (
	ModeShallow Mode = "shallow"
	ModeDeep    Mode = "deep"
)

// ModeFor maps the deep-scan flag to a mode.
func ModeFor(deep bool) Mode {
	if deep {
		return ModeDeep
	}
	return ModeShallow
}

// Depth returns the crawl link-hop budget for m.
func (m Mode) Depth() int {
	if m == ModeDeep {
		return defaults.DepthDeep
	}
	return defaults.DepthShallow
}

// ParseMode maps a case-insensitive name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeShallow, ModeDeep:
		return m, nil
	case "":
		return ModeShallow, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
}
