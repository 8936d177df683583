// Package suppress tracks recently fired alert keys so a condition that
// keeps re-triggering inside its dedup window skips the store lookup.
package suppress

import (
	"context"
	"sync"
	"time"
)

// Guard records fired alert keys and answers whether a key is still
// inside its suppression window.
type Guard interface {
	// SeenAndRecord atomically checks whether key is suppressed and
	// records it if not. Returns true if the key was already recorded
	// and has not expired, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord drops a key, allowing the condition to fire again. Used
	// when an alert was recorded here but failed to enqueue.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryGuard implements Guard with a map of key expiries. Expired
// entries are dropped lazily on access; when the map outgrows maxSize a
// full sweep removes everything expired.
type inMemoryGuard struct {
	mu      sync.Mutex
	expires map[string]time.Time
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewInMemoryGuard creates a guard with configuration options.
func NewInMemoryGuard(opts ...Option) Guard {
	g := &inMemoryGuard{
		ttl:     24 * time.Hour,
		maxSize: 50000,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	g.expires = make(map[string]time.Time)

	return g
}

// SeenAndRecord atomically checks whether key is suppressed and records
// it if not.
func (g *inMemoryGuard) SeenAndRecord(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, ok := g.expires[key]; ok {
		if now.Before(expiry) {
			return true
		}
		delete(g.expires, key)
	}

	if g.maxSize > 0 && len(g.expires) >= g.maxSize {
		g.sweep(now)
	}

	g.expires[key] = now.Add(g.ttl)
	return false
}

// Unrecord drops a key, allowing the condition to fire again.
func (g *inMemoryGuard) Unrecord(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.expires, key)
}

// sweep removes expired entries. Must be called with g.mu held.
func (g *inMemoryGuard) sweep(now time.Time) {
	for key, expiry := range g.expires {
		if !now.Before(expiry) {
			delete(g.expires, key)
		}
	}
}

// Size returns the current number of tracked keys, expired or not.
func (g *inMemoryGuard) Size() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int64(len(g.expires))
}
