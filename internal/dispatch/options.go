package dispatch

import (
	"time"

	"github.com/okian/tictac/pkg/logger"
)

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithCheckinPeriod sets the liveness period used by checkin.
func WithCheckinPeriod(period time.Duration) Option {
	return func(d *Dispatcher) {
		if period > 0 {
			d.checkinPeriod = period
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}
