package service

import (
	"time"

	"github.com/okian/physiopulse/internal/adapters/repository"
	"github.com/okian/physiopulse/internal/domain/dedupe"
	"github.com/okian/physiopulse/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of waiting jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithStore sets the analysis record store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithTracker sets the idempotency key tracker.
func WithTracker(t dedupe.Tracker) Option {
	return func(s *Service) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithAnalysisTimeout bounds each pipeline run. Zero disables the bound.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.analysisTimeout = d
		}
	}
}

// WithStopGrace bounds how long Stop waits for cancelled jobs before it
// closes the store.
func WithStopGrace(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.stopGrace = d
		}
	}
}

// WithMaxListLimit caps the page size of List.
func WithMaxListLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxListLimit = n
		}
	}
}

// WithIDGenerator replaces the analysis id source.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) {
		if f != nil {
			s.newID = f
		}
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
