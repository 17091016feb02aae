// Package middleware provides HTTP middleware for the Tandem API.
package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/observer/tandem/internal/auth"
)

// RateLimiter provides per-user rate limiting keyed by the authenticated
// email claim.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a new rate limiter with the given requests per minute
func NewRateLimiter(requestsPerMin int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerMin) / 60.0), // Convert to per-second
		burst:    max(requestsPerMin/10, 5),                  // Burst of 10% or at least 5
	}
}

// getLimiter returns the rate limiter for a user, creating one if needed
func (rl *RateLimiter) getLimiter(email string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[email]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = rl.limiters[email]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[email] = limiter
	return limiter
}

// Middleware returns an HTTP middleware that rate limits authenticated requests
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, ok := auth.GetEmail(r.Context())
		if !ok {
			// Not authenticated, skip rate limiting (auth will fail anyway)
			next.ServeHTTP(w, r)
			return
		}

		limiter := rl.getLimiter(email)
		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded, please try again later"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup removes stale rate limiters (call periodically)
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Remove limiters that haven't been used (tokens are at burst)
	for email, limiter := range rl.limiters {
		if limiter.Tokens() >= float64(rl.burst) {
			delete(rl.limiters, email)
		}
	}
}
