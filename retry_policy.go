package apikit

import (
	"time"

	"github.com/enriquedlh97/apikit/internal/backoff"
)

// RetryPolicy decides whether a failed read or write attempt is retried
// and how long to wait first. Attempt counts completed failures, so the
// first failure consults ShouldRetry with attempt 0. Implementations
// must be safe for concurrent use.
type RetryPolicy interface {
	ShouldRetry(err *APIError, attempt int) (time.Duration, bool)
}

// BackoffStrategy selects the delay algorithm used by a BackoffPolicy.
type BackoffStrategy int

const (
	// ExponentialJitter grows delays geometrically with uniform jitter
	// on top.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter draws each delay uniformly from a widening
	// window, spreading concurrent retriers more evenly.
	DecorrelatedJitter
)

// BackoffPolicy retries every failure up to a fixed attempt budget with
// strategy-computed delays. A Retry-After hint carried by the error
// takes precedence over the computed delay.
//
// Retrying is count-based rather than kind-based: a policy with one
// retry re-issues the operation once no matter how the first attempt
// failed. Callers needing kind-aware behavior implement RetryPolicy
// directly, typically around IsTransient.
type BackoffPolicy struct {
	maxRetries int
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	strategy   backoff.Strategy
}

// NewBackoffPolicy creates a policy with the exponential jitter
// strategy. A non-positive initial delay disables waiting between
// attempts.
func NewBackoffPolicy(maxRetries int, initial, max time.Duration, multiplier, jitter float64) *BackoffPolicy {
	return NewBackoffPolicyWithStrategy(maxRetries, initial, max, multiplier, jitter, ExponentialJitter)
}

// NewBackoffPolicyWithStrategy creates a policy with an explicit delay
// strategy.
func NewBackoffPolicyWithStrategy(maxRetries int, initial, max time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *BackoffPolicy {
	p := &BackoffPolicy{
		maxRetries: maxRetries,
		initial:    initial,
		max:        max,
		multiplier: multiplier,
		jitter:     jitter,
	}
	switch strategy {
	case DecorrelatedJitter:
		p.strategy = backoff.Decorrelated{}
	default:
		p.strategy = backoff.Exponential{}
	}
	return p
}

// NewReadRetryPolicy returns the default policy for reads: three
// retries with exponentially increasing, jittered delays, so a read is
// attempted at most four times.
func NewReadRetryPolicy() *BackoffPolicy {
	return NewBackoffPolicy(3, 100*time.Millisecond, 2*time.Second, 2.0, 0.2)
}

// NewWriteRetryPolicy returns the default policy for writes: a single
// immediate retry with no added delay.
func NewWriteRetryPolicy() *BackoffPolicy {
	return NewBackoffPolicy(1, 0, 0, 0, 0)
}

// ShouldRetry implements the RetryPolicy interface.
func (p *BackoffPolicy) ShouldRetry(err *APIError, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}
	if err != nil && err.RetryAfter > 0 {
		return err.RetryAfter, true
	}
	if p.initial <= 0 {
		return 0, true
	}
	delay := p.strategy.Delay(attempt, backoff.Params{
		Initial:    p.initial,
		Max:        p.max,
		Multiplier: p.multiplier,
		Jitter:     p.jitter,
	})
	return delay, true
}

// MaxRetries exposes the attempt budget for logging and tests.
func (p *BackoffPolicy) MaxRetries() int {
	return p.maxRetries
}
