package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client
type RateLimiter struct {
	mu                sync.RWMutex
	limiters          map[string]*rate.Limiter
	requestsPerSecond int
	burstSize         int
}

func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 100
	}
	if burst <= 0 {
		burst = 2 * requestsPerSecond
	}
	return &RateLimiter{
		limiters:          make(map[string]*rate.Limiter),
		requestsPerSecond: requestsPerSecond,
		burstSize:         burst,
	}
}

func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// MEMORY PROTECTION: Prevent unlimited growth
	if len(rl.limiters) >= 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}

	limiter, exists := rl.limiters[client]
	if !exists {
		limiter = rate.NewLimiter(
			rate.Limit(rl.requestsPerSecond),
			rl.burstSize,
		)
		rl.limiters[client] = limiter
	}

	return limiter.Allow()
}
