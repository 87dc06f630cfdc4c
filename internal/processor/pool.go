package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// PoolMetrics is a point-in-time snapshot of worker pool counters.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("worker pool is shut down")

type task struct {
	ctx context.Context
	fn  func(ctx context.Context) error
}

// WorkerPool runs submissions on a fixed set of workers. Tasks are handed
// off over an unbuffered channel, so Submit blocks while every worker is
// busy; that backpressure is what bounds batch concurrency.
type WorkerPool struct {
	tasks chan task
	quit  chan struct{}

	mu       sync.Mutex
	draining bool
	workers  sync.WaitGroup
	inflight sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
}

// NewWorkerPool starts a pool with the given number of workers.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	p := &WorkerPool{
		tasks: make(chan task),
		quit:  make(chan struct{}),
	}
	p.workers.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.workers.Done()
	for {
		select {
		case t := <-p.tasks:
			p.run(t)
		case <-p.quit:
			return
		}
	}
}

func (p *WorkerPool) run(t task) {
	defer p.inflight.Done()
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.failed.Add(1)
		}
	}()

	if err := t.fn(t.ctx); err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
}

// Submit hands work to an idle worker, blocking while the pool is at
// capacity. The wait is interrupted by context cancellation or shutdown.
func (p *WorkerPool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	// Registering with inflight under the lock pairs with Shutdown: a
	// submission is either counted before draining starts or rejected.
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	select {
	case p.tasks <- task{ctx: ctx, fn: fn}:
		return nil
	case <-ctx.Done():
		p.inflight.Done()
		return ctx.Err()
	case <-p.quit:
		p.inflight.Done()
		return ErrPoolShutdown
	}
}

// Wait blocks until every accepted submission has finished.
func (p *WorkerPool) Wait() {
	p.inflight.Wait()
}

// Shutdown rejects new submissions, lets accepted work finish and stops
// the workers. Safe to call more than once.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	close(p.quit)
	p.mu.Unlock()

	p.inflight.Wait()
	p.workers.Wait()
}

// Metrics returns a snapshot of the pool counters.
func (p *WorkerPool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}
