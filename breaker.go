package apikit

import (
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

// CircuitBreakerConfig tunes the failure detector guarding the shared
// transport. Zero values fall back to the documented defaults.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that
	// opens the circuit. Defaults to 5.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a
	// half-open probe is allowed. Defaults to 30s.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of half-open successes required
	// to close the circuit again. Defaults to 2.
	SuccessThreshold int
}

// CircuitBreaker fails fast once the upstream looks unhealthy so
// retrying readers do not pile onto a struggling server. A nil
// CircuitBreaker admits everything.
type CircuitBreaker struct {
	cb circuitbreaker.CircuitBreaker[any]
}

// NewCircuitBreaker creates a breaker that opens after
// FailureThreshold consecutive failures, probes again after
// RecoveryTimeout, and closes after SuccessThreshold half-open
// successes.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	cb := circuitbreaker.Builder[any]().
		WithFailureThreshold(uint(config.FailureThreshold)).
		WithDelay(config.RecoveryTimeout).
		WithSuccessThreshold(uint(config.SuccessThreshold)).
		Build()
	return &CircuitBreaker{cb: cb}
}

// Allow reports whether a request may proceed, acquiring a permit when
// it does. Every Allow that returns true must be paired with a
// RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil || cb.cb == nil {
		return true
	}
	return cb.cb.TryAcquirePermit()
}

// RecordSuccess feeds a successful exchange back into the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil || cb.cb == nil {
		return
	}
	cb.cb.RecordSuccess()
}

// RecordFailure feeds a failed exchange back into the breaker. A nil
// err still counts as a failure; it covers responses that arrived but
// carried a server error status.
func (cb *CircuitBreaker) RecordFailure(err error) {
	if cb == nil || cb.cb == nil {
		return
	}
	if err != nil {
		cb.cb.RecordError(err)
		return
	}
	cb.cb.RecordFailure()
}

// State exposes the underlying breaker state for metrics and tests.
func (cb *CircuitBreaker) State() circuitbreaker.State {
	if cb == nil || cb.cb == nil {
		return circuitbreaker.ClosedState
	}
	return cb.cb.State()
}
