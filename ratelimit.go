package apikit

import (
	"golang.org/x/time/rate"
)

// RateLimiter caps the outbound request rate with a token bucket so a
// burst of cache refetches cannot flood the upstream. A nil RateLimiter
// admits everything.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows a sustained rps requests per second with the
// given burst capacity. Burst values below one are raised to one so the
// limiter can make progress.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Allow reports whether one more request may start now, consuming a
// token when it does.
func (rl *RateLimiter) Allow() bool {
	if rl == nil || rl.limiter == nil {
		return true
	}
	return rl.limiter.Allow()
}

// Tokens returns the current bucket level for metrics.
func (rl *RateLimiter) Tokens() float64 {
	if rl == nil || rl.limiter == nil {
		return 0
	}
	return rl.limiter.Tokens()
}
