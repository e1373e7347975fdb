// Package workerpool is a fixed-size worker pool with context-gated
// admission. The crawl and test phases each own one, sized independently.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("workerpool: pool closed")

// Pool runs tasks on a fixed set of workers. Submit blocks until a worker
// is free, so at most Size tasks run at once.
type Pool struct {
	size  int
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	active    atomic.Int32
	completed atomic.Int64
	panics    atomic.Int64

	onPanic func(any)
}

// Option configures a Pool.
type Option func(*Pool)

// WithPanicHandler is called with the recovered value when a task panics.
// The worker survives.
func WithPanicHandler(fn func(any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

// New starts a pool with size workers (minimum 1).
func New(size int, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:  size,
		tasks: make(chan func()),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(size)
	for range size {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
	}()
	task()
}

// Submit hands task to the next free worker. It returns ctx.Err() if ctx
// ends first and ErrClosed if the pool is closed; in both cases task does
// not run.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for running tasks to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Size returns the worker count.
func (p *Pool) Size() int { return p.size }

// Active returns the number of tasks running now.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Completed returns the number of tasks that have finished, including
// ones that panicked.
func (p *Pool) Completed() int64 { return p.completed.Load() }

// Panics returns the number of tasks that panicked.
func (p *Pool) Panics() int64 { return p.panics.Load() }

// Each runs fn for every item on the pool and waits for all admitted calls
// to return. Items not admitted before ctx ends are skipped; the returned
// error is ctx.Err() or ErrClosed in that case.
func Each[T any](ctx context.Context, p *Pool, items []T, fn func(T)) error {
	var wg sync.WaitGroup
	var err error
	for _, item := range items {
		wg.Add(1)
		if err = p.Submit(ctx, func() {
			defer wg.Done()
			fn(item)
		}); err != nil {
			wg.Done()
			break
		}
	}
	wg.Wait()
	return err
}
