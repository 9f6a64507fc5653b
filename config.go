package apikit

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Settings is the environment-driven configuration of a client, for
// applications that configure their API access layer from the process
// environment instead of code.
type Settings struct {
	BaseURL        string        `env:"APIKIT_BASE_URL"`
	RequestTimeout time.Duration `env:"APIKIT_REQUEST_TIMEOUT" default:"30s"`

	Freshness        time.Duration `env:"APIKIT_FRESHNESS" default:"5m"`
	Retention        time.Duration `env:"APIKIT_RETENTION" default:"10m"`
	EvictionInterval time.Duration `env:"APIKIT_EVICTION_INTERVAL" default:"1m"`

	ReadRetries    int           `env:"APIKIT_READ_RETRIES" default:"3"`
	ReadBackoff    time.Duration `env:"APIKIT_READ_BACKOFF" default:"100ms"`
	ReadBackoffMax time.Duration `env:"APIKIT_READ_BACKOFF_MAX" default:"2s"`
	WriteRetries   int           `env:"APIKIT_WRITE_RETRIES" default:"1"`

	RateLimitRPS   float64 `env:"APIKIT_RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int     `env:"APIKIT_RATE_LIMIT_BURST" default:"1"`

	BreakerFailureThreshold int           `env:"APIKIT_BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerRecoveryTimeout  time.Duration `env:"APIKIT_BREAKER_RECOVERY_TIMEOUT" default:"30s"`
	BreakerSuccessThreshold int           `env:"APIKIT_BREAKER_SUCCESS_THRESHOLD" default:"2"`

	Metrics bool `env:"APIKIT_METRICS" default:"false"`
	Debug   bool `env:"APIKIT_DEBUG" default:"false"`
}

// LoadSettings reads Settings from the environment, loading a .env file
// first when one exists.
func LoadSettings() (*Settings, error) {
	_ = godotenv.Load()

	var s Settings
	if err := env.Load(&s, nil); err != nil {
		return nil, fmt.Errorf("apikit: loading environment: %w", err)
	}

	if err := validateSettings(&s); err != nil {
		return nil, err
	}

	return &s, nil
}

func validateSettings(s *Settings) error {
	if s.BaseURL == "" {
		return fmt.Errorf("apikit: APIKIT_BASE_URL is required")
	}
	if s.ReadRetries < 0 {
		return fmt.Errorf("apikit: APIKIT_READ_RETRIES must be non-negative")
	}
	if s.WriteRetries < 0 {
		return fmt.Errorf("apikit: APIKIT_WRITE_RETRIES must be non-negative")
	}
	if s.RateLimitRPS < 0 {
		return fmt.Errorf("apikit: APIKIT_RATE_LIMIT_RPS must be non-negative")
	}
	return nil
}

// Options converts the settings into client options. The session source
// still comes from code; credentials never travel through the
// environment here.
func (s *Settings) Options() []Option {
	opts := []Option{
		WithBaseURL(s.BaseURL),
		WithTimeout(s.RequestTimeout),
		WithFreshness(s.Freshness),
		WithRetention(s.Retention),
		WithEvictionInterval(s.EvictionInterval),
		WithReadRetryPolicy(NewBackoffPolicy(s.ReadRetries, s.ReadBackoff, s.ReadBackoffMax, 2.0, 0.2)),
		WithWriteRetryPolicy(NewBackoffPolicy(s.WriteRetries, 0, 0, 0, 0)),
		WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: s.BreakerFailureThreshold,
			RecoveryTimeout:  s.BreakerRecoveryTimeout,
			SuccessThreshold: s.BreakerSuccessThreshold,
		}),
	}
	if s.RateLimitRPS > 0 {
		opts = append(opts, WithRateLimit(s.RateLimitRPS, s.RateLimitBurst))
	}
	if s.Metrics {
		opts = append(opts, WithMetrics())
	}
	if s.Debug {
		opts = append(opts, WithSimpleLogger())
	}
	return opts
}
