package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages per-key token buckets for hook callers, keyed by
// session name so a runaway cron job cannot monopolize the shared
// browser.
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a keyed limiter allowing requestsPerMinute
// sustained calls with the given burst.
func NewLimiter(requestsPerMinute int, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

// Allow reports whether a request under key may proceed.
func (l *Limiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

// Tokens returns the available tokens for key.
func (l *Limiter) Tokens(key string) float64 {
	return l.getLimiter(key).Tokens()
}

func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}
