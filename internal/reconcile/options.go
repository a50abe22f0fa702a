package reconcile

import (
	"time"

	"github.com/okian/tictac/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithInterval sets how often Sweep runs. Commands older than one interval
// are redelivered.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMatchingTimeout sets how long a player may sit in matching before being
// considered for repair.
func WithMatchingTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.matchingTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}
