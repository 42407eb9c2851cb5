package server

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window counter per key, used on the public webhook
// endpoints.
type rateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
	items  map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

func newRateLimiter(limit int, window time.Duration, now func() time.Time) *rateLimiter {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &rateLimiter{
		limit:  limit,
		window: window,
		now:    now,
		items:  make(map[string]*rateLimitEntry),
	}
}

func (r *rateLimiter) Allow(key string) bool {
	if key == "" {
		return false
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.items[key]
	if entry == nil || now.Sub(entry.windowStart) >= r.window {
		entry = &rateLimitEntry{windowStart: now}
		r.items[key] = entry
		r.evict(now)
	}

	if entry.count >= r.limit {
		return false
	}

	entry.count++
	return true
}

// evict drops windows that ended so the map does not grow with every caller.
func (r *rateLimiter) evict(now time.Time) {
	for key, entry := range r.items {
		if now.Sub(entry.windowStart) >= r.window {
			delete(r.items, key)
		}
	}
}
