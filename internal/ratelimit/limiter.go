// Package ratelimit enforces a per-tab token bucket on the action and state
// endpoints, protecting one stuck agent loop from starving the backend.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages rate limits keyed by tab id.
type Limiter struct {
	limiters  map[string]*rate.Limiter
	mu        sync.RWMutex
	rate      rate.Limit
	burst     int
	perMinute int
}

// NewLimiter creates a limiter allowing requestsPerMinute sustained requests
// per tab with the given burst.
func NewLimiter(requestsPerMinute int, burst int) *Limiter {
	return &Limiter{
		limiters:  make(map[string]*rate.Limiter),
		rate:      rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:     burst,
		perMinute: requestsPerMinute,
	}
}

// PerMinute returns the configured sustained per-tab request rate.
func (l *Limiter) PerMinute() int { return l.perMinute }

// GetLimiter returns the rate limiter for a specific tab.
func (l *Limiter) GetLimiter(tabID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[tabID]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[tabID] = limiter
	}
	return limiter
}

// Allow checks if a request is allowed for the given tab.
func (l *Limiter) Allow(tabID string) bool {
	return l.GetLimiter(tabID).Allow()
}

// Tokens returns the current number of available tokens for a tab.
func (l *Limiter) Tokens(tabID string) float64 {
	return l.GetLimiter(tabID).Tokens()
}
