package apikit

import (
	"testing"
	"time"
)

func TestBackoffPolicyStopsAfterMaxRetries(t *testing.T) {
	policy := NewBackoffPolicy(3, 100*time.Millisecond, 2*time.Second, 2.0, 0)
	err := &APIError{Kind: KindServerError, StatusCode: 500}

	for attempt := 0; attempt < 3; attempt++ {
		if _, retry := policy.ShouldRetry(err, attempt); !retry {
			t.Errorf("ShouldRetry(attempt=%d) = false, want true", attempt)
		}
	}
	if _, retry := policy.ShouldRetry(err, 3); retry {
		t.Error("ShouldRetry(attempt=3) = true, want false after budget is spent")
	}
}

func TestBackoffPolicyRetriesEveryKind(t *testing.T) {
	// The default policies are count based: a Validation failure retries
	// just like a ServerError until the budget runs out. Kind-aware
	// behavior belongs in a custom RetryPolicy.
	policy := NewBackoffPolicy(1, 0, 0, 0, 0)

	kinds := []Kind{KindNetwork, KindUnauthorized, KindForbidden, KindValidation, KindNotFound, KindServerError, KindUnknown}
	for _, kind := range kinds {
		if _, retry := policy.ShouldRetry(&APIError{Kind: kind}, 0); !retry {
			t.Errorf("ShouldRetry(%v, 0) = false, want true", kind)
		}
	}
}

func TestBackoffPolicyExponentialDelays(t *testing.T) {
	policy := NewBackoffPolicy(5, 100*time.Millisecond, 2*time.Second, 2.0, 0)
	err := &APIError{Kind: KindServerError}

	wants := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
	}
	for attempt, want := range wants {
		delay, retry := policy.ShouldRetry(err, attempt)
		if !retry {
			t.Fatalf("ShouldRetry(attempt=%d) = false, want true", attempt)
		}
		if delay != want {
			t.Errorf("delay(attempt=%d) = %v, want %v", attempt, delay, want)
		}
	}
}

func TestBackoffPolicyJitterBounds(t *testing.T) {
	policy := NewBackoffPolicy(1, 100*time.Millisecond, 2*time.Second, 2.0, 0.2)
	err := &APIError{Kind: KindServerError}

	for i := 0; i < 50; i++ {
		delay, _ := policy.ShouldRetry(err, 0)
		if delay < 100*time.Millisecond || delay > 120*time.Millisecond {
			t.Fatalf("jittered delay = %v, want within [100ms, 120ms]", delay)
		}
	}
}

func TestBackoffPolicyCapsAtMax(t *testing.T) {
	policy := NewBackoffPolicy(20, 100*time.Millisecond, time.Second, 2.0, 0)
	err := &APIError{Kind: KindServerError}

	delay, _ := policy.ShouldRetry(err, 10)
	if delay > time.Second {
		t.Errorf("delay = %v, want capped at 1s", delay)
	}
}

func TestBackoffPolicyHonorsRetryAfter(t *testing.T) {
	policy := NewBackoffPolicy(3, 100*time.Millisecond, 2*time.Second, 2.0, 0)
	err := &APIError{Kind: KindUnknown, StatusCode: 429, RetryAfter: 5 * time.Second}

	delay, retry := policy.ShouldRetry(err, 0)
	if !retry {
		t.Fatal("ShouldRetry() = false, want true")
	}
	if delay != 5*time.Second {
		t.Errorf("delay = %v, want the server hint 5s", delay)
	}
}

func TestReadRetryPolicyDefaults(t *testing.T) {
	policy := NewReadRetryPolicy()

	if policy.MaxRetries() != 3 {
		t.Errorf("MaxRetries() = %d, want 3", policy.MaxRetries())
	}
	delay, retry := policy.ShouldRetry(&APIError{Kind: KindServerError}, 0)
	if !retry || delay <= 0 {
		t.Errorf("first retry = (%v, %v), want a positive delay", delay, retry)
	}
}

func TestWriteRetryPolicyDefaults(t *testing.T) {
	policy := NewWriteRetryPolicy()
	err := &APIError{Kind: KindValidation, StatusCode: 422}

	delay, retry := policy.ShouldRetry(err, 0)
	if !retry {
		t.Fatal("writes retry exactly once, got no retry")
	}
	if delay != 0 {
		t.Errorf("delay = %v, want immediate retry", delay)
	}
	if _, retry := policy.ShouldRetry(err, 1); retry {
		t.Error("second retry allowed, want writes capped at one")
	}
}

func TestBackoffPolicyDecorrelatedStrategy(t *testing.T) {
	policy := NewBackoffPolicyWithStrategy(3, 100*time.Millisecond, time.Second, 2.0, 0.2, DecorrelatedJitter)
	err := &APIError{Kind: KindServerError}

	for i := 0; i < 50; i++ {
		delay, retry := policy.ShouldRetry(err, 1)
		if !retry {
			t.Fatal("ShouldRetry() = false, want true")
		}
		if delay < 100*time.Millisecond || delay > time.Second {
			t.Fatalf("decorrelated delay = %v, want within [initial, max]", delay)
		}
	}
}
