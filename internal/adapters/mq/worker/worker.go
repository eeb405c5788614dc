// Package worker runs queued analysis jobs on a fixed set of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/physiopulse/internal/domain/model"
	"github.com/okian/physiopulse/pkg/logger"
	"github.com/okian/physiopulse/pkg/metrics"
)

const maxDefaultWorkers = 5

// Job is what workers read off the queue.
type Job = model.Job

// Runner executes one job. Each worker owns its Runner, so a Runner need
// not be safe for concurrent use.
type Runner interface {
	Process(ctx context.Context, job Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job Job) error

// Process calls f.
func (f RunnerFunc) Process(ctx context.Context, job Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	return f(ctx, job)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue() <-chan Job
}

// Worker processes jobs until its queue closes.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	runner     Runner
	name       string
	jobTimeout time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		runner:   runner,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "job failed", logger.String("analysis_id", job.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// process runs one job with the per-job timeout and turns panics into errors.
func (w *InMemoryWorker) process(ctx context.Context, job Job) (err error) { //nolint:gocritic // hugeParam: jobs travel by value
	metrics.WorkerBusy(1)
	defer metrics.WorkerBusy(-1)

	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			metrics.RecordError("worker", "panic")
			err = fmt.Errorf("job %s panicked: %v", job.ID, rec)
		}
	}()

	start := time.Now()
	err = w.runner.Process(ctx, job)
	w.logger.Debug(ctx, "job processed",
		logger.String("analysis_id", job.ID),
		logger.Duration("elapsed", time.Since(start)),
		logger.Duration("waited", start.Sub(job.EnqueuedAt)))
	return err
}

// DefaultCount is the worker count used when none is configured.
func DefaultCount() int {
	return min(runtime.NumCPU(), maxDefaultWorkers)
}

// Pool manages multiple workers reading one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	mu     sync.Mutex
	cancel context.CancelFunc

	logger logger.Logger
}

// NewPool creates workerCount workers. newRunner is called once per worker so
// each can own engine state; opts apply to every worker.
func NewPool(workerCount int, queue Queue, newRunner func(i int) Runner, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = DefaultCount()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Nop(),
	}
	base := &InMemoryWorker{logger: pool.logger}
	for _, opt := range opts {
		opt(base)
	}
	pool.logger = base.logger.Named("worker-pool")

	for i := range workerCount {
		wopts := append(append([]Option{}, opts...), WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(queue, newRunner(i), wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue and waits for the workers to drain it. When ctx
// expires first, running jobs are cancelled and an error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			cancel()
			return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
		}
	}
	p.logger.Info(ctx, "worker pool stopped")
	return nil
}

// Wait blocks until every started worker has returned or ctx expires. It
// does not cancel anything; use it after Shutdown gave up to let cancelled
// jobs finish their bookkeeping.
func (p *Pool) Wait(ctx context.Context) error {
	p.mu.Lock()
	started := p.cancel != nil
	p.mu.Unlock()
	if !started {
		return nil
	}

	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return fmt.Errorf("worker pool wait: %w", ctx.Err())
		}
	}
	return nil
}
