package realtime

import (
	"sync"
	"time"
)

// RateLimiter admits at most limit events in any sliding window.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   []time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{limit: limit, window: window, seen: make([]time.Time, 0, limit)}
}

func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)
	i := 0
	for i < len(r.seen) && !r.seen[i].After(cut) {
		i++
	}
	r.seen = append(r.seen[:0], r.seen[i:]...)

	if len(r.seen) >= r.limit {
		return false
	}
	r.seen = append(r.seen, now)
	return true
}
