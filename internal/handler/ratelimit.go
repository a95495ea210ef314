package handler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = 1024
)

type originLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per requester origin.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*originLimiter
	r        rate.Limit
	b        int
	now      func() time.Time
	calls    int
}

// NewRateLimiter allows requestsPerSecond per origin with bursts of burst.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*originLimiter),
		r:        rate.Limit(requestsPerSecond),
		b:        burst,
		now:      time.Now,
	}
}

// Allow reports whether origin may make a request now.
func (rl *RateLimiter) Allow(origin string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.calls++
	if rl.calls%limiterSweepEvery == 0 {
		rl.sweep(now)
	}

	ol, ok := rl.limiters[origin]
	if !ok {
		ol = &originLimiter{limiter: rate.NewLimiter(rl.r, rl.b)}
		rl.limiters[origin] = ol
	}
	ol.lastSeen = now
	return ol.limiter.AllowN(now, 1)
}

// sweep drops origins idle for longer than limiterIdleTTL. A dropped origin
// starts over with a full bucket.
func (rl *RateLimiter) sweep(now time.Time) {
	for origin, ol := range rl.limiters {
		if now.Sub(ol.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, origin)
		}
	}
}
