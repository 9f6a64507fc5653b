package apikit

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

func TestNewDefaultsAreValid(t *testing.T) {
	client := New()
	defer client.Close()

	if !client.IsValid() {
		t.Fatalf("default client invalid: %v", client.ValidationError())
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", client.httpClient.Timeout)
	}
	if client.freshness != DefaultFreshness {
		t.Errorf("freshness = %v, want %v", client.freshness, DefaultFreshness)
	}
	if client.retention != DefaultRetention {
		t.Errorf("retention = %v, want %v", client.retention, DefaultRetention)
	}
	if client.readPolicy == nil || client.writePolicy == nil {
		t.Error("default retry policies not set")
	}
	if client.circuitBreaker == nil {
		t.Error("default circuit breaker not set")
	}
	if client.rateLimiter != nil {
		t.Error("rate limiter should be off unless configured")
	}
	if client.Queries() == nil {
		t.Error("query cache not constructed")
	}
}

func TestOptionsApply(t *testing.T) {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	clock := clockwork.NewFakeClock()
	readPolicy := NewBackoffPolicy(7, time.Millisecond, time.Second, 2.0, 0)
	writePolicy := NewBackoffPolicy(2, 0, 0, 0, 0)

	client := New(
		WithBaseURL("https://api.example.com"),
		WithHTTPClient(httpClient),
		WithSessionSource(StaticSession("t")),
		WithMetricsCollector(collector),
		WithFreshness(time.Minute),
		WithRetention(2*time.Minute),
		WithEvictionInterval(10*time.Second),
		WithReadRetryPolicy(readPolicy),
		WithWriteRetryPolicy(writePolicy),
		WithClock(clock),
	)
	defer client.Close()

	if client.BaseURL() != "https://api.example.com" {
		t.Errorf("BaseURL() = %q", client.BaseURL())
	}
	if client.httpClient != httpClient {
		t.Error("WithHTTPClient not applied")
	}
	if client.metrics != collector {
		t.Error("WithMetricsCollector not applied")
	}
	if client.freshness != time.Minute || client.retention != 2*time.Minute {
		t.Error("cache lifetimes not applied")
	}
	if client.evictionInterval != 10*time.Second {
		t.Error("WithEvictionInterval not applied")
	}
	if client.readPolicy != RetryPolicy(readPolicy) || client.writePolicy != RetryPolicy(writePolicy) {
		t.Error("retry policies not applied")
	}
	if client.clock != clockwork.Clock(clock) {
		t.Error("WithClock not applied")
	}
	if !client.IsValid() {
		t.Errorf("client invalid: %v", client.ValidationError())
	}
}

func TestWithTimeout(t *testing.T) {
	client := New(WithTimeout(3 * time.Second))
	defer client.Close()

	if client.httpClient.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", client.httpClient.Timeout)
	}
}

func TestSessionSourceAppendsAuthMiddleware(t *testing.T) {
	without := New()
	defer without.Close()
	with := New(WithSessionSource(StaticSession("t")))
	defer with.Close()

	if len(without.middleware) != 0 {
		t.Errorf("middleware without session source = %d, want 0", len(without.middleware))
	}
	if len(with.middleware) != 1 {
		t.Errorf("middleware with session source = %d, want 1", len(with.middleware))
	}
}

func TestValidateConfigurationBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		valid   bool
	}{
		{"empty is allowed", "", true},
		{"https", "https://api.example.com", true},
		{"http", "http://localhost:8080", true},
		{"bad scheme", "ftp://files.example.com", false},
		{"missing host", "https://", false},
		{"not a url", "://nope", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(WithBaseURL(tt.baseURL))
			defer client.Close()

			if client.IsValid() != tt.valid {
				t.Errorf("IsValid() = %v, want %v (err: %v)", client.IsValid(), tt.valid, client.ValidationError())
			}
		})
	}
}

func TestValidateConfigurationQuerySettings(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{"zero freshness", []Option{WithFreshness(0)}, "freshness must be positive"},
		{"zero retention", []Option{WithRetention(0)}, "retention must be positive"},
		{"retention below freshness", []Option{WithFreshness(time.Hour), WithRetention(time.Minute)}, "retention must be at least the freshness window"},
		{"zero eviction interval", []Option{WithEvictionInterval(0)}, "evictionInterval must be positive"},
		{"nil read policy", []Option{WithReadRetryPolicy(nil)}, "read retry policy cannot be nil"},
		{"nil write policy", []Option{WithWriteRetryPolicy(nil)}, "write retry policy cannot be nil"},
		{"nil clock", []Option{WithClock(nil)}, "clock cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.opts...)
			defer client.Close()

			err := client.ValidationError()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidateConfigurationDebugNeedsLogger(t *testing.T) {
	client := New(WithDebugConfig(&DebugConfig{Enabled: true}))
	defer client.Close()

	err := client.ValidationError()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if !strings.Contains(err.Error(), "logger must be set") {
		t.Errorf("error = %v, want logger requirement", err)
	}
	if !strings.Contains(err.Error(), "RequestIDGen") {
		t.Errorf("error = %v, want RequestIDGen requirement", err)
	}
}

func TestValidateConfigurationNilMiddleware(t *testing.T) {
	client := New(WithMiddleware(nil))
	defer client.Close()

	err := client.ValidationError()
	if err == nil || !strings.Contains(err.Error(), "middleware[0] cannot be nil") {
		t.Errorf("error = %v, want nil middleware flagged", err)
	}
}

func TestValidateConfigurationExtremeValues(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{"huge freshness", []Option{WithFreshness(48 * time.Hour), WithRetention(49 * time.Hour)}, "freshness > 24h"},
		{"huge retention", []Option{WithRetention(8 * 24 * time.Hour)}, "retention > 7d"},
		{"huge timeout", []Option{WithTimeout(time.Hour)}, "timeout > 10m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.opts...)
			defer client.Close()

			err := client.ValidationError()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidateConfigurationStrictPanics(t *testing.T) {
	client := New(WithFreshness(-1))
	defer client.Close()

	defer func() {
		if recover() == nil {
			t.Error("ValidateConfigurationStrict() did not panic on invalid configuration")
		}
	}()
	client.ValidateConfigurationStrict()
}

func TestWithDebugEnablesAllCategories(t *testing.T) {
	client := New(WithDebug(), WithLogger(NewSimpleLogger()))
	defer client.Close()

	if client.debug == nil || !client.debug.Enabled {
		t.Fatal("WithDebug did not enable debugging")
	}
	if !client.debug.LogRequests || !client.debug.LogCache {
		t.Error("WithDebug should default every category on")
	}
	if !client.IsValid() {
		t.Errorf("client invalid: %v", client.ValidationError())
	}
}
