package worker

import (
	"github.com/okian/tictac/internal/domain/dedupe"
	"github.com/okian/tictac/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDeduper drops deliveries whose key was already taken on.
func WithDeduper(d dedupe.Deduper) Option {
	return func(w *InMemoryWorker) {
		w.dedupe = d
	}
}

// WithAcker acknowledges duplicates whose handling already finished.
func WithAcker(a Acker) Option {
	return func(w *InMemoryWorker) {
		w.acker = a
	}
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithPoolDeduper shares one deduper across every worker of the pool.
func WithPoolDeduper(d dedupe.Deduper) PoolOption {
	return func(p *Pool) {
		p.dedupe = d
	}
}

// WithPoolLogger sets the logger the pool and its workers derive from.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPoolAcker gives every worker of the pool the same Acker.
func WithPoolAcker(a Acker) PoolOption {
	return func(p *Pool) {
		p.acker = a
	}
}
