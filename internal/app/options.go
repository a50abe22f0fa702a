package service

import (
	"time"

	"github.com/okian/tictac/internal/adapters/repository"
	"github.com/okian/tictac/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of dispatch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the command queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the delivery deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithStore sets the record store. The service takes ownership and closes it
// on Stop. Without it Start uses a MemoryStore.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithCheckinPeriod sets the forfeit window for games.
func WithCheckinPeriod(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.checkinPeriod = d
		}
	}
}

// WithMatchingTimeout sets when a matching player is considered stranded.
func WithMatchingTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.matchingTimeout = d
		}
	}
}

// WithReconcileInterval sets how often the reconciler sweeps.
func WithReconcileInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.reconcileInterval = d
		}
	}
}

// WithClock replaces time.Now for the dispatcher and reconciler.
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
