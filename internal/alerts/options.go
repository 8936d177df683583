// Package alerts turns sprint and allocation conditions into alert batches.
package alerts

import (
	"time"

	"github.com/meridianhq/pulse/internal/domain/suppress"
	"github.com/meridianhq/pulse/pkg/logger"
)

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithStreak sets how many consecutive at-risk sprints raise an alert.
func WithStreak(streak int) Option {
	return func(d *Dispatcher) {
		if streak > 0 {
			d.streak = streak
		}
	}
}

// WithWindow sets the dedup window for repeated alerts.
func WithWindow(window time.Duration) Option {
	return func(d *Dispatcher) {
		if window > 0 {
			d.window = window
		}
	}
}

// WithGuard sets a custom suppression guard.
func WithGuard(guard suppress.Guard) Option {
	return func(d *Dispatcher) {
		if guard != nil {
			d.guard = guard
		}
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(logger logger.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}
