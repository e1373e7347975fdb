package scan

import (
	"fmt"
	"slices"
	"time"

	"github.com/waftester/injectscan/pkg/finding"
)

// Job is the record of one scan. Findings is empty until the job reaches
// a terminal status, and is never filled for Failed or Canceled jobs.
type Job struct {
	ID          string            `json:"id"`
	TargetURL   string            `json:"targetUrl"`
	Mode        Mode              `json:"mode"`
	Scanners    []finding.Family  `json:"scanners,omitempty"`
	Status      Status            `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Findings    []finding.Finding `json:"findings"`
	Error       string            `json:"error,omitempty"`
}

// Transition moves j to next, stamping CompletedAt on terminal states.
func (j *Job) Transition(next Status, at time.Time) error {
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	switch {
	case next == StatusInProgress:
		j.StartedAt = at
	case next.IsTerminal():
		j.CompletedAt = &at
	}
	return nil
}

// Clone returns a deep copy.
func (j Job) Clone() Job {
	j.Scanners = slices.Clone(j.Scanners)
	j.Findings = slices.Clone(j.Findings)
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		j.CompletedAt = &at
	}
	return j
}

// Timestamps accompany a status update.
type Timestamps struct {
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Request starts a scan.
type Request struct {
	TargetURL string
	DeepScan  bool

	// Scanners selects vulnerability families. Empty means all.
	Scanners []finding.Family
}

// Outcome is what Run returns: the terminal status and, for Completed
// jobs, the frozen findings.
type Outcome struct {
	JobID       string
	Status      Status
	Findings    []finding.Finding
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
}

// ParseScanners maps scanner names to families. Empty input selects every
// family.
func ParseScanners(names []string) ([]finding.Family, error) {
	var out []finding.Family
	for _, n := range names {
		f, err := finding.ParseFamily(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return slices.Clone(finding.Families), nil
	}
	return out, nil
}
