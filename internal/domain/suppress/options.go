// Package suppress tracks recently fired alert keys.
package suppress

import "time"

// Option applies a configuration option to the inMemoryGuard.
type Option func(*inMemoryGuard)

// WithTTL sets how long a recorded key stays suppressed.
func WithTTL(ttl time.Duration) Option {
	return func(g *inMemoryGuard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMaxSize sets the sweep threshold for the key map.
// If maxSize <= 0 the map grows without sweeping.
func WithMaxSize(maxSize int) Option {
	return func(g *inMemoryGuard) {
		g.maxSize = maxSize
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(g *inMemoryGuard) {
		if now != nil {
			g.now = now
		}
	}
}
