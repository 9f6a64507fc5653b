// Package backoff computes retry delays for the read and write
// policies of the client.
package backoff

import (
	"math/rand"
	"time"
)

// Params bound a delay computation.
type Params struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps every computed delay.
	Max time.Duration
	// Multiplier is the per-attempt growth factor.
	Multiplier float64
	// Jitter is the random share added on top of the deterministic
	// delay, clamped to [0, 1].
	Jitter float64
}

// Strategy computes the delay before a retry. Attempt counts from zero
// for the first retry.
type Strategy interface {
	Delay(attempt int, p Params) time.Duration
}

// Exponential grows the delay geometrically and adds uniform jitter.
// With Jitter j the result lands in [d, d*(1+j)] for deterministic
// delay d, never exceeding Max.
type Exponential struct{}

func (Exponential) Delay(attempt int, p Params) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := float64(p.Initial) * powf(p.Multiplier, attempt)
	max := float64(p.Max)
	if d < 0 || d > max {
		d = max
	}
	if j := clamp01(p.Jitter); j > 0 {
		d += d * j * rand.Float64()
		if d > max {
			d = max
		}
	}
	return time.Duration(d)
}

// Decorrelated implements decorrelated jitter: each delay is drawn
// uniformly from [Initial, min(Max, Initial*3^attempt)]. It spreads
// concurrent retriers more evenly than exponential jitter.
type Decorrelated struct{}

func (Decorrelated) Delay(attempt int, p Params) time.Duration {
	if attempt <= 0 {
		return p.Initial
	}
	if attempt > 10 {
		attempt = 10
	}
	base := float64(p.Initial)
	upper := base * powf(3, attempt)
	max := float64(p.Max)
	if upper > max || upper < 0 {
		upper = max
	}
	if upper < base {
		upper = base
	}
	d := base + rand.Float64()*(upper-base)
	if d < 0 || d > max {
		d = max
	}
	return time.Duration(d)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// powf is integer exponentiation, sufficient for attempt counters and
// cheaper than math.Pow.
func powf(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
