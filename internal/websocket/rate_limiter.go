package websocket

import (
	"sync"
	"time"
)

// RateLimiter caps location updates per reporter. A healthy device pings
// every 5 seconds; the limit only trips on a runaway client, never on a
// reporter in genuine distress.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit messages per minute
// per reporter.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		clients: make(map[string]*clientWindow),
	}
}

// Allow checks and counts one message for the reporter.
func (rl *RateLimiter) Allow(reporterID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.clients[reporterID]
	if !ok || now.Sub(w.windowStart) >= time.Minute {
		rl.clients[reporterID] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Cleanup drops windows idle for five minutes. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for id, w := range rl.clients {
		if now.Sub(w.windowStart) > 5*time.Minute {
			delete(rl.clients, id)
		}
	}
}
