package http

import (
	"sync"
	"time"
)

// pruneThreshold bounds the number of idle windows kept around.
const pruneThreshold = 1024

type rateWindow struct {
	start time.Time
	count int
}

// rateLimiter is a fixed-window counter per key.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*rateWindow
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  time.Minute,
		now:     time.Now,
		windows: make(map[string]*rateWindow),
	}
}

func (r *rateLimiter) allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= r.window {
		if !ok && len(r.windows) >= pruneThreshold {
			r.prune(now)
		}
		w = &rateWindow{start: now}
		r.windows[key] = w
	}
	w.count++
	return w.count <= r.limit
}

func (r *rateLimiter) prune(now time.Time) {
	for key, w := range r.windows {
		if now.Sub(w.start) >= r.window {
			delete(r.windows, key)
		}
	}
}
