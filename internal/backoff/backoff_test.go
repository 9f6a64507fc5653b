package backoff

import (
	"testing"
	"time"
)

func TestExponentialGrowth(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Multiplier: 2.0}
	var s Exponential

	wants := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for attempt, want := range wants {
		if got := s.Delay(attempt, p); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestExponentialCapsAtMax(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2.0}
	var s Exponential

	if got := s.Delay(10, p); got != time.Second {
		t.Errorf("Delay(10) = %v, want capped at %v", got, time.Second)
	}
}

func TestExponentialJitterStaysInBounds(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Multiplier: 2.0, Jitter: 0.5}
	var s Exponential

	for i := 0; i < 100; i++ {
		got := s.Delay(0, p)
		if got < 100*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("Delay(0) = %v, want within [100ms, 150ms]", got)
		}
	}
}

func TestExponentialClampsAttempt(t *testing.T) {
	p := Params{Initial: time.Millisecond, Max: time.Second, Multiplier: 2.0}
	var s Exponential

	// Huge attempts must not overflow into negative durations.
	if got := s.Delay(100000, p); got != time.Second {
		t.Errorf("Delay(100000) = %v, want %v", got, time.Second)
	}
	if got := s.Delay(-5, p); got != time.Millisecond {
		t.Errorf("Delay(-5) = %v, want %v", got, time.Millisecond)
	}
}

func TestExponentialJitterClamped(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Multiplier: 1.0, Jitter: 5.0}
	var s Exponential

	// Jitter above 1 behaves like 1.
	for i := 0; i < 100; i++ {
		got := s.Delay(0, p)
		if got < 100*time.Millisecond || got > 200*time.Millisecond {
			t.Fatalf("Delay(0) = %v, want within [100ms, 200ms]", got)
		}
	}
}

func TestDecorrelatedFirstRetryIsInitial(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: time.Second}
	var s Decorrelated

	if got := s.Delay(0, p); got != 100*time.Millisecond {
		t.Errorf("Delay(0) = %v, want %v", got, 100*time.Millisecond)
	}
}

func TestDecorrelatedStaysInBounds(t *testing.T) {
	p := Params{Initial: 100 * time.Millisecond, Max: time.Second}
	var s Decorrelated

	for attempt := 1; attempt <= 12; attempt++ {
		for i := 0; i < 50; i++ {
			got := s.Delay(attempt, p)
			if got < 100*time.Millisecond || got > time.Second {
				t.Fatalf("Delay(%d) = %v, want within [initial, max]", attempt, got)
			}
		}
	}
}

func TestDecorrelatedSpreads(t *testing.T) {
	p := Params{Initial: 10 * time.Millisecond, Max: time.Second}
	var s Decorrelated

	seen := map[time.Duration]bool{}
	for i := 0; i < 50; i++ {
		seen[s.Delay(5, p)] = true
	}
	if len(seen) < 2 {
		t.Error("expected decorrelated delays to vary across draws")
	}
}
