// Package service composes the pipeline, job queue, worker pool and record
// store into the analysis service used by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/physiopulse/internal/adapters/mq/queue"
	"github.com/okian/physiopulse/internal/adapters/mq/worker"
	"github.com/okian/physiopulse/internal/adapters/repository"
	"github.com/okian/physiopulse/internal/app/pipeline"
	"github.com/okian/physiopulse/internal/domain/dedupe"
	"github.com/okian/physiopulse/internal/domain/exercise"
	"github.com/okian/physiopulse/internal/domain/model"
	"github.com/okian/physiopulse/pkg/logger"
	"github.com/okian/physiopulse/pkg/metrics"
)

const (
	defaultQueueSize       = 64
	defaultAnalysisTimeout = 300 * time.Second
	defaultMaxListLimit    = 100
	defaultStopGrace       = 5 * time.Second
)

// Submission asks for one analysis.
type Submission struct {
	VideoPath    string
	OutputDir    string
	ExerciseType exercise.Type
	PatientID    string
	SessionID    string
	// IdempotencyKey makes resubmissions resolve to the first analysis.
	IdempotencyKey string
	// Upload hands VideoPath to the service. The file is removed when the
	// submission is refused or the analysis fails, and kept when it completes.
	Upload bool
}

// Page is one window of List results.
type Page struct {
	Items  []model.Analysis `json:"analyses"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// Stats reports the runtime state of the service.
type Stats struct {
	Started         bool  `json:"started"`
	Workers         int   `json:"workers"`
	QueueLength     int   `json:"queue_length"`
	QueueCapacity   int   `json:"queue_capacity"`
	IdempotencyKeys int64 `json:"idempotency_keys"`
}

// outcome is delivered to a synchronous caller when its job ends.
type outcome struct {
	analysis model.Analysis
	err      error
}

// Service runs analyses asynchronously and records their lifecycle.
type Service struct {
	mu sync.RWMutex

	newPipeline func(worker int) *pipeline.Pipeline
	store       repository.Store
	tracker     dedupe.Tracker
	queue       *queue.InMemoryQueue
	pool        *worker.Pool

	workerCount     int
	queueSize       int
	analysisTimeout time.Duration
	maxListLimit    int
	stopGrace       time.Duration
	newID           func() string
	now             func() time.Time

	waitMu  sync.Mutex
	waiters map[string]chan outcome

	started bool
	logger  logger.Logger
}

// New constructs a Service. newPipeline is called once per worker, so each
// worker owns its pose engine.
func New(newPipeline func(worker int) *pipeline.Pipeline, opts ...Option) *Service {
	s := &Service{
		newPipeline:     newPipeline,
		workerCount:     worker.DefaultCount(),
		queueSize:       defaultQueueSize,
		analysisTimeout: defaultAnalysisTimeout,
		maxListLimit:    defaultMaxListLimit,
		stopGrace:       defaultStopGrace,
		newID:           uuid.NewString,
		now:             time.Now,
		waiters:         make(map[string]chan outcome),
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.tracker == nil {
		s.tracker = dedupe.NewInMemoryTracker()
	}
	s.logger = s.logger.Named("service")
	return s
}

// Start creates the queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, func(i int) worker.Runner {
		p := s.newPipeline(i)
		return worker.RunnerFunc(func(ctx context.Context, job model.Job) error {
			return s.process(ctx, p, job)
		})
	}, worker.WithLogger(s.logger), worker.WithJobTimeout(s.analysisTimeout))
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Duration("analysis_timeout", s.analysisTimeout))
	return nil
}

// Stop drains queued jobs until ctx expires. Jobs still running then are
// cancelled and given a short grace period to record their failure before
// the store is closed.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false

	s.logger.Info(ctx, "stopping analysis service", logger.Int("queued", s.queue.Len()))
	err := s.pool.Shutdown(ctx)
	if err != nil {
		// Cancelled jobs still record their failure; the store must outlive them.
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.stopGrace)
		if werr := s.pool.Wait(gctx); werr != nil {
			s.logger.Error(ctx, "workers still running after cancellation", logger.Error(werr))
		}
		cancel()
	}
	if cerr := s.store.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close store: %w", cerr))
	}
	s.logger.Info(ctx, "analysis service stopped")
	return err
}

// Submit records a pending analysis and queues it. The bool is true when
// the idempotency key was seen before and the earlier analysis is returned.
func (s *Service) Submit(ctx context.Context, sub Submission) (model.Analysis, bool, error) {
	return s.submit(ctx, sub, nil)
}

// Analyze submits and waits for the run to finish. A failed run returns the
// failed record together with the *pipeline.Error. When ctx ends first the
// job keeps running and ctx's error is returned. A duplicate key returns the
// earlier record as it currently stands.
func (s *Service) Analyze(ctx context.Context, sub Submission) (model.Analysis, error) {
	done := make(chan outcome, 1)
	a, dup, err := s.submit(ctx, sub, done)
	if err != nil || dup {
		return a, err
	}

	select {
	case out := <-done:
		return out.analysis, out.err
	case <-ctx.Done():
		s.dropWaiter(a.ID)
		return a, fmt.Errorf("waiting for analysis %s: %w", a.ID, ctx.Err())
	}
}

func (s *Service) submit(ctx context.Context, sub Submission, done chan outcome) (a model.Analysis, dup bool, err error) {
	queued := false
	defer func() {
		if !queued && sub.Upload {
			s.discardVideo(ctx, a.ID, sub.VideoPath)
		}
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Analysis{}, false, ErrNotStarted
	}
	if _, err := exercise.Lookup(sub.ExerciseType); err != nil {
		return model.Analysis{}, false, err
	}

	id := s.newID()
	if sub.IdempotencyKey != "" {
		if bound, seen := s.tracker.Claim(ctx, sub.IdempotencyKey, id); seen {
			metrics.RecordJobDuplicate()
			s.logger.Debug(ctx, "duplicate submission", logger.String("analysis_id", bound))
			prev, err := s.store.Get(ctx, bound)
			return prev, true, err
		}
	}

	now := s.now().UTC()
	a = model.Analysis{
		ID:           id,
		Status:       model.StatusPending,
		ExerciseType: sub.ExerciseType,
		PatientID:    sub.PatientID,
		SessionID:    sub.SessionID,
		VideoPath:    sub.VideoPath,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Save(ctx, a); err != nil {
		s.releaseKey(ctx, sub.IdempotencyKey, id)
		return model.Analysis{}, false, fmt.Errorf("record analysis: %w", err)
	}

	if done != nil {
		s.waitMu.Lock()
		s.waiters[id] = done
		s.waitMu.Unlock()
	}

	job := model.Job{
		ID:           id,
		VideoPath:    sub.VideoPath,
		OutputDir:    sub.OutputDir,
		ExerciseType: sub.ExerciseType,
		PatientID:    sub.PatientID,
		SessionID:    sub.SessionID,
		EnqueuedAt:   now,
		Upload:       sub.Upload,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.dropWaiter(id)
		s.releaseKey(ctx, sub.IdempotencyKey, id)
		a.Status = model.StatusFailed
		a.Error = err.Error()
		a.UpdatedAt = s.now().UTC()
		if serr := s.store.Save(context.WithoutCancel(ctx), a); serr != nil {
			s.logger.Error(ctx, "failed to record rejected analysis", logger.String("analysis_id", id), logger.Error(serr))
		}
		if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
			err = fmt.Errorf("%w: %w", ErrBusy, err)
		}
		return a, false, err
	}
	queued = true

	s.logger.Info(ctx, "analysis queued",
		logger.String("analysis_id", id),
		logger.String("exercise", string(sub.ExerciseType)),
		logger.Int("queued", s.queue.Len()))
	return a, false, nil
}

// process is the worker side of a job: processing -> completed | failed.
func (s *Service) process(ctx context.Context, p *pipeline.Pipeline, job model.Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	// Records must be written even after the job deadline fired.
	storeCtx := context.WithoutCancel(ctx)

	a, err := s.store.Get(storeCtx, job.ID)
	if err != nil {
		s.deliver(job.ID, outcome{err: err})
		return fmt.Errorf("load analysis %s: %w", job.ID, err)
	}
	a.Status = model.StatusProcessing
	a.UpdatedAt = s.now().UTC()
	if err := s.store.Save(storeCtx, a); err != nil {
		s.logger.Warn(ctx, "failed to record processing state", logger.String("analysis_id", job.ID), logger.Error(err))
	}

	res, runErr := p.Run(ctx, pipeline.Request{
		AnalysisID:   job.ID,
		VideoPath:    job.VideoPath,
		OutputDir:    job.OutputDir,
		ExerciseType: job.ExerciseType,
		PatientID:    job.PatientID,
		SessionID:    job.SessionID,
	})

	a.Status = res.Status
	a.ProcessingTime = res.ProcessingTime
	a.Files = res.Files
	a.UpdatedAt = s.now().UTC()
	if runErr != nil {
		a.Status = model.StatusFailed
		a.Error = runErr.Error()
		a.Summary = nil
	} else {
		sum := res.Summary
		a.Summary = &sum
	}
	if runErr != nil && job.Upload {
		s.discardVideo(storeCtx, job.ID, job.VideoPath)
	}
	if err := s.store.Save(storeCtx, a); err != nil {
		s.deliver(job.ID, outcome{analysis: a, err: errors.Join(runErr, err)})
		return fmt.Errorf("record result of %s: %w", job.ID, err)
	}

	s.deliver(job.ID, outcome{analysis: a, err: runErr})
	return runErr
}

func (s *Service) deliver(id string, out outcome) {
	s.waitMu.Lock()
	ch, ok := s.waiters[id]
	delete(s.waiters, id)
	s.waitMu.Unlock()
	if ok {
		ch <- out
	}
}

// discardVideo removes an uploaded video that no analysis will read again.
func (s *Service) discardVideo(ctx context.Context, id, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn(ctx, "failed to remove uploaded video",
			logger.String("analysis_id", id),
			logger.String("path", path),
			logger.Error(err))
	}
}

func (s *Service) dropWaiter(id string) {
	s.waitMu.Lock()
	delete(s.waiters, id)
	s.waitMu.Unlock()
}

func (s *Service) releaseKey(ctx context.Context, key, id string) {
	if key != "" {
		s.tracker.Release(ctx, key, id)
	}
}

// Get returns the record for id or repository.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (model.Analysis, error) {
	return s.store.Get(ctx, id)
}

// List returns a newest-first page. limit <= 0 selects the maximum; larger
// values are clamped to it.
func (s *Service) List(ctx context.Context, filter model.Filter, limit, offset int) (Page, error) {
	if limit <= 0 || limit > s.maxListLimit {
		limit = s.maxListLimit
	}
	offset = max(offset, 0)

	items, err := s.store.List(ctx, filter, limit, offset)
	if err != nil {
		return Page{}, err
	}
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// ArtifactPath returns the file of the given kind for a completed analysis.
func (s *Service) ArtifactPath(ctx context.Context, id, kind string) (string, error) {
	k, err := model.ParseArtifactKind(kind)
	if err != nil {
		return "", err
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	path := a.Files.Path(k)
	if a.Status != model.StatusCompleted || path == "" {
		return "", fmt.Errorf("%w: analysis %s is %s", ErrArtifactUnavailable, id, a.Status)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %w", ErrArtifactUnavailable, err)
	}
	return path, nil
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Started: s.started, IdempotencyKeys: s.tracker.Size()}
	if s.queue != nil {
		st.QueueLength = s.queue.Len()
		st.QueueCapacity = s.queue.Capacity()
	}
	if s.pool != nil {
		st.Workers = s.pool.Size()
	}
	return st
}
