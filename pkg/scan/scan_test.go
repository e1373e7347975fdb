package scan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/injectscan/pkg/crawler"
	"github.com/waftester/injectscan/pkg/finding"
	"github.com/waftester/injectscan/pkg/injector"
	"github.com/waftester/injectscan/pkg/inputpoint"
	"github.com/waftester/injectscan/pkg/payloads"
	"github.com/waftester/injectscan/pkg/retry"
)

// fakeStore records writes and can be told to fail.
type fakeStore struct {
	mu         sync.Mutex
	created    int
	appended   map[string][]finding.Finding
	statuses   []Status
	createErr  error
	appendErrs []error
	statusErr  error
	failOn     map[Status]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{appended: make(map[string][]finding.Finding)}
}

func (s *fakeStore) CreateJob(_ context.Context, target string, _ Mode) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.created++
	return fmt.Sprintf("job-%d", s.created), nil
}

func (s *fakeStore) AppendFindings(_ context.Context, id string, fs []finding.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.appendErrs) > 0 {
		err := s.appendErrs[0]
		s.appendErrs = s.appendErrs[1:]
		if err != nil {
			return err
		}
	}
	s.appended[id] = append(s.appended[id], fs...)
	return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, _ string, status Status, _ Timestamps) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return s.statusErr
	}
	if err := s.failOn[status]; err != nil {
		return err
	}
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, fs := range s.appended {
		n += len(fs)
	}
	return n
}

// engineFunc adapts a function to Engine.
type engineFunc func(ctx context.Context, target string, mode Mode, families []finding.Family) ([]finding.Finding, error)

func (f engineFunc) Scan(ctx context.Context, target string, mode Mode, families []finding.Family) ([]finding.Finding, error) {
	return f(ctx, target, mode, families)
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func xssFinding(url string) finding.Finding {
	return finding.Finding{
		URL:                  url,
		VulnerabilityType:    finding.FamilyXSS,
		PayloadCategory:      finding.CategoryReflected,
		PayloadUsed:          "<script>alert(1)</script>",
		VulnerableParameters: []string{"q"},
		Severity:             finding.Medium,
	}
}

func TestRun_EndToEndReflectedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><h1>Search</h1><p>You searched for %s</p></body></html>", r.URL.Query().Get("q"))
	}))
	defer srv.Close()

	lib := payloads.MustNew(payloads.Payload{Category: finding.CategoryReflected, Value: "<script>alert(1)</script>"})
	crawlCfg := crawler.Config{Concurrency: 3, Timeout: 2 * time.Second, Key: inputpoint.KeyURLMethodParams}
	testCfg := injector.DefaultConfig()
	testCfg.Delay = 0
	testCfg.Timeout = 2 * time.Second

	engine := NewCrawlTestEngine(
		crawler.New(crawlCfg, srv.Client()),
		injector.New(testCfg, srv.Client(), nil),
		lib, nil)
	store := newFakeStore()
	o := NewOrchestrator(engine, store, WithRetry(fastRetry()))

	out, err := o.Run(context.Background(), Request{TargetURL: srv.URL + "/search?q=hello"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	require.Len(t, out.Findings, 1)

	f := out.Findings[0]
	assert.Equal(t, []string{"q"}, f.VulnerableParameters)
	assert.Equal(t, finding.Medium, f.Severity)
	assert.Equal(t, finding.CategoryReflected, f.PayloadCategory)

	assert.Equal(t, 1, store.appendCount())
	assert.Equal(t, []Status{StatusInProgress, StatusCompleted}, store.statuses)
	assert.False(t, out.CompletedAt.Before(out.StartedAt))
}

func TestRun_NoFindingsYieldsExplicitRecord(t *testing.T) {
	store := newFakeStore()
	engine := engineFunc(func(context.Context, string, Mode, []finding.Family) ([]finding.Finding, error) {
		return nil, nil
	})
	out, err := NewOrchestrator(engine, store).Run(context.Background(), Request{TargetURL: "http://example.test/"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	require.Len(t, out.Findings, 1)
	assert.True(t, out.Findings[0].IsClean())
	assert.Equal(t, "No vulnerabilities found", out.Findings[0].Details)
	assert.Equal(t, 1, store.appendCount())
}

func TestRun_ModeAndScannersReachEngine(t *testing.T) {
	var (
		gotMode     Mode
		gotFamilies []finding.Family
	)
	engine := engineFunc(func(_ context.Context, _ string, mode Mode, families []finding.Family) ([]finding.Finding, error) {
		gotMode, gotFamilies = mode, families
		return nil, nil
	})
	o := NewOrchestrator(engine, newFakeStore())

	_, err := o.Run(context.Background(), Request{TargetURL: "http://example.test/", DeepScan: true, Scanners: []finding.Family{"SQLI"}})
	require.NoError(t, err)
	assert.Equal(t, ModeDeep, gotMode)
	assert.Equal(t, []finding.Family{finding.FamilySQLi}, gotFamilies)

	_, err = o.Run(context.Background(), Request{TargetURL: "http://example.test/"})
	require.NoError(t, err)
	assert.Equal(t, ModeShallow, gotMode)
	assert.Equal(t, finding.Families, gotFamilies)
}

// blockingEngine confirms a hit, then waits for cancellation.
func blockingEngine(started chan<- struct{}) Engine {
	return engineFunc(func(ctx context.Context, target string, _ Mode, _ []finding.Family) ([]finding.Finding, error) {
		found := []finding.Finding{xssFinding(target)}
		close(started)
		<-ctx.Done()
		return found, ctx.Err()
	})
}

func TestRun_CancellationIsClean(t *testing.T) {
	tests := []struct {
		name   string
		opts   []Option
		cancel func(ctx context.CancelFunc, o *Orchestrator)
	}{
		{
			name:   "caller context",
			cancel: func(cancel context.CancelFunc, _ *Orchestrator) { cancel() },
		},
		{
			name: "explicit cancel",
			cancel: func(_ context.CancelFunc, o *Orchestrator) {
				for _, id := range o.Running() {
					assert.NoError(t, o.Cancel(id))
				}
			},
		},
		{
			name:   "watchdog",
			opts:   []Option{WithWatchdog(50 * time.Millisecond)},
			cancel: func(context.CancelFunc, *Orchestrator) {},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started := make(chan struct{})
			store := newFakeStore()
			o := NewOrchestrator(blockingEngine(started), store, tt.opts...)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				<-started
				tt.cancel(cancel, o)
			}()

			out, err := o.Run(ctx, Request{TargetURL: "http://example.test/"})
			require.NoError(t, err)
			assert.Equal(t, StatusCanceled, out.Status)
			assert.Empty(t, out.Findings)
			assert.Zero(t, store.appendCount())
			assert.Equal(t, []Status{StatusInProgress, StatusCanceled}, store.statuses)

			job, err := o.Job(out.JobID)
			require.NoError(t, err)
			assert.Equal(t, StatusCanceled, job.Status)
			assert.Empty(t, job.Findings)
			assert.Empty(t, o.Running())
		})
	}
}

func TestRun_FindingsHiddenUntilTerminal(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	engine := engineFunc(func(ctx context.Context, target string, _ Mode, _ []finding.Family) ([]finding.Finding, error) {
		close(started)
		<-release
		return []finding.Finding{xssFinding(target)}, nil
	})
	o := NewOrchestrator(engine, newFakeStore())

	done := make(chan *Outcome, 1)
	go func() {
		out, _ := o.Run(context.Background(), Request{TargetURL: "http://example.test/"})
		done <- out
	}()

	<-started
	running := o.Running()
	require.Len(t, running, 1)
	job, err := o.Job(running[0])
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, job.Status)
	assert.Empty(t, job.Findings)

	close(release)
	out := <-done
	job, err = o.Job(out.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Len(t, job.Findings, 1)
	require.NotNil(t, job.CompletedAt)
}

func TestRun_InvalidRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"garbage", Request{TargetURL: "::not a url"}, ErrInvalidTarget},
		{"relative", Request{TargetURL: "/search?q=1"}, ErrInvalidTarget},
		{"scheme", Request{TargetURL: "ftp://example.test/"}, ErrInvalidTarget},
		{"scanner", Request{TargetURL: "http://example.test/", Scanners: []finding.Family{"rce"}}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			called := false
			engine := engineFunc(func(context.Context, string, Mode, []finding.Family) ([]finding.Finding, error) {
				called = true
				return nil, nil
			})
			out, err := NewOrchestrator(engine, store).Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			require.NotNil(t, out)
			assert.Equal(t, StatusFailed, out.Status)
			assert.Zero(t, store.created)
			assert.False(t, called)
		})
	}
}

func TestRun_StoreUnavailable(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("connection refused")
	called := false
	engine := engineFunc(func(context.Context, string, Mode, []finding.Family) ([]finding.Finding, error) {
		called = true
		return nil, nil
	})

	out, err := NewOrchestrator(engine, store).Run(context.Background(), Request{TargetURL: "http://example.test/"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, StatusFailed, out.Status)
	assert.False(t, called)
}

func TestRun_PersistenceRetried(t *testing.T) {
	store := newFakeStore()
	store.appendErrs = []error{errors.New("busy"), errors.New("busy")}
	engine := engineFunc(func(_ context.Context, target string, _ Mode, _ []finding.Family) ([]finding.Finding, error) {
		return []finding.Finding{xssFinding(target)}, nil
	})

	out, err := NewOrchestrator(engine, store, WithRetry(fastRetry())).Run(context.Background(), Request{TargetURL: "http://example.test/"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 1, store.appendCount())
}

func TestRun_PersistenceExhausted(t *testing.T) {
	store := newFakeStore()
	store.appendErrs = []error{errors.New("down"), errors.New("down"), errors.New("down")}
	engine := engineFunc(func(_ context.Context, target string, _ Mode, _ []finding.Family) ([]finding.Finding, error) {
		return []finding.Finding{xssFinding(target)}, nil
	})

	out, err := NewOrchestrator(engine, store, WithRetry(fastRetry())).Run(context.Background(), Request{TargetURL: "http://example.test/"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Empty(t, out.Findings)
	assert.Equal(t, []Status{StatusInProgress, StatusFailed}, store.statuses)
}

func TestRun_TerminalStatusWriteFails(t *testing.T) {
	diskFull := errors.New("disk full")
	store := newFakeStore()
	store.failOn = map[Status]error{StatusCompleted: diskFull}
	engine := engineFunc(func(_ context.Context, target string, _ Mode, _ []finding.Family) ([]finding.Finding, error) {
		return []finding.Finding{xssFinding(target)}, nil
	})
	o := NewOrchestrator(engine, store, WithRetry(fastRetry()))

	out, err := o.Run(context.Background(), Request{TargetURL: "http://example.test/"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Empty(t, out.Findings)
	assert.Equal(t, "disk full", out.Error)
	assert.Equal(t, []Status{StatusInProgress, StatusFailed}, store.statuses)

	job, err := o.Job(out.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Empty(t, job.Findings)
}

func TestRun_EngineFailure(t *testing.T) {
	store := newFakeStore()
	engine := engineFunc(func(context.Context, string, Mode, []finding.Family) ([]finding.Finding, error) {
		return nil, errors.New("daemon unreachable")
	})

	out, err := NewOrchestrator(engine, store).Run(context.Background(), Request{TargetURL: "http://example.test/"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "daemon unreachable", out.Error)
	assert.Zero(t, store.appendCount())
}

func TestCancel_UnknownJob(t *testing.T) {
	o := NewOrchestrator(nil, newFakeStore())
	assert.ErrorIs(t, o.Cancel("nope"), ErrJobNotFound)
	_, err := o.Job("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
