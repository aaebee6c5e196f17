// Package throttle suppresses repeats of the same key within a window.
// The gateway uses it so a producer that keeps sending an unencodable
// payload field logs one warning per window, not one per event.
package throttle

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultWindow          = time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// Limiter admits a key at most once per window.
type Limiter struct {
	cache *gocache.Cache
}

// New returns a Limiter. A window <= 0 uses DefaultWindow.
func New(window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	cleanup := DefaultCleanupInterval
	if window > cleanup {
		cleanup = window
	}
	return &Limiter{cache: gocache.New(window, cleanup)}
}

// Allow reports whether key has not been seen in the current window and
// marks it seen. A nil Limiter allows everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	// Add fails while an unexpired item exists, which makes check-and-set atomic.
	return l.cache.Add(key, struct{}{}, gocache.DefaultExpiration) == nil
}

// Reset forgets key so the next Allow admits it.
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.cache.Delete(key)
}

// Len returns the number of keys currently suppressed.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	return l.cache.ItemCount()
}
