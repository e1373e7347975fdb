// Package store persists scan jobs. Memory keeps them for the life of the
// process; File keeps a single JSON index on disk, rewritten atomically on
// every change. Both implement the orchestrator's write contract and add
// the read side the CLI and MCP server use.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/scan"
)

// ErrNotFound is returned for unknown job IDs.
var ErrNotFound = errors.New("store: job not found")

// index is the persisted form of a store.
type index struct {
	Jobs map[string]*scan.Job `json:"jobs"`
}

// Memory is an in-process job store. It is safe for concurrent use.
type Memory struct {
	mu  sync.RWMutex
	idx index
	now func() time.Time

	// persist runs after every successful mutation, under the write lock.
	persist func(*index) error
}

var _ scan.Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		idx: index{Jobs: make(map[string]*scan.Job)},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) save() error {
	if m.persist == nil {
		return nil
	}
	return m.persist(&m.idx)
}

// CreateJob records a pending job and returns its ID.
func (m *Memory) CreateJob(ctx context.Context, targetURL string, mode scan.Mode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.idx.Jobs[id] = &scan.Job{
		ID:        id,
		TargetURL: targetURL,
		Mode:      mode,
		Status:    scan.StatusPending,
		CreatedAt: m.now(),
		Findings:  []finding.Finding{},
	}
	if err := m.save(); err != nil {
		delete(m.idx.Jobs, id)
		return "", err
	}
	return id, nil
}

// AppendFindings adds findings to a job. Findings already stored under the
// same identity are skipped, so a retried append does not duplicate.
func (m *Memory) AppendFindings(ctx context.Context, jobID string, findings []finding.Finding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.idx.Jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", scan.ErrInvalidTransition, jobID, job.Status)
	}

	prev := job.Findings
	seen := make(map[string]struct{}, len(job.Findings))
	for _, f := range job.Findings {
		seen[identity(f)] = struct{}{}
	}
	for _, f := range findings {
		f = f.Normalize()
		k := identity(f)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		job.Findings = append(job.Findings, f)
	}
	if err := m.save(); err != nil {
		job.Findings = prev
		return err
	}
	return nil
}

func identity(f finding.Finding) string {
	return string(f.VulnerabilityType) + "|" + f.Key()
}

// UpdateStatus moves a job to status. Repeating the current status is a
// no-op apart from timestamps; leaving a terminal status is an error.
// Failed and Canceled jobs drop any findings they hold.
func (m *Memory) UpdateStatus(ctx context.Context, jobID string, status scan.Status, ts scan.Timestamps) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.idx.Jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if job.Status != status && !job.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", scan.ErrInvalidTransition, job.Status, status)
	}
	prev := *job
	job.Status = status
	if !ts.StartedAt.IsZero() {
		job.StartedAt = ts.StartedAt
	}
	if ts.CompletedAt != nil {
		at := *ts.CompletedAt
		job.CompletedAt = &at
	}
	if status == scan.StatusFailed || status == scan.StatusCanceled {
		job.Findings = []finding.Finding{}
	}
	if err := m.save(); err != nil {
		*job = prev
		return err
	}
	return nil
}

// Get returns a copy of one job.
func (m *Memory) Get(id string) (scan.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.idx.Jobs[id]
	if !ok {
		return scan.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.Clone(), nil
}

// List returns jobs for targetURL (all targets when empty), newest first,
// at most limit of them when limit > 0.
func (m *Memory) List(targetURL string, limit int) []scan.Job {
	m.mu.RLock()
	jobs := make([]scan.Job, 0, len(m.idx.Jobs))
	for _, job := range m.idx.Jobs {
		if targetURL != "" && job.TargetURL != targetURL {
			continue
		}
		jobs = append(jobs, job.Clone())
	}
	m.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b scan.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		return 1
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// Delete removes a job.
func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.idx.Jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.idx.Jobs, id)
	if err := m.save(); err != nil {
		m.idx.Jobs[id] = job
		return err
	}
	return nil
}

// Prune removes terminal jobs created before now minus olderThan and
// returns how many were removed.
func (m *Memory) Prune(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-olderThan)
	count := 0
	for id, job := range m.idx.Jobs {
		if job.Status.IsTerminal() && job.CreatedAt.Before(cutoff) {
			delete(m.idx.Jobs, id)
			count++
		}
	}
	if count > 0 {
		if err := m.save(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Stats summarizes the store.
type Stats struct {
	TotalJobs     int                 `json:"totalJobs"`
	UniqueTargets int                 `json:"uniqueTargets"`
	ByStatus      map[scan.Status]int `json:"byStatus"`
	Findings      int                 `json:"findings"`
}

// Stats returns storage statistics.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{TotalJobs: len(m.idx.Jobs), ByStatus: make(map[scan.Status]int)}
	targets := make(map[string]struct{})
	for _, job := range m.idx.Jobs {
		targets[job.TargetURL] = struct{}{}
		st.ByStatus[job.Status]++
		for _, f := range job.Findings {
			if !f.IsClean() {
				st.Findings++
			}
		}
	}
	st.UniqueTargets = len(targets)
	return st
}
