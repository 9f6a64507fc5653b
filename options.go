package apikit

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithBaseURL sets the base URL every relative path is resolved
// against.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithSessionSource sets the source consulted for the current session
// on every request.
func WithSessionSource(source SessionSource) Option {
	return func(c *Client) {
		c.sessions = source
	}
}

// WithTimeout sets the per-request timeout on the underlying HTTP
// client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient swaps the underlying *http.Client, keeping its
// timeout as configured by the caller.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMiddleware appends middleware to the chain in invocation order.
// The session middleware always stays last.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithCircuitBreaker replaces the default circuit breaker
// configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithoutCircuitBreaker disables circuit breaking entirely.
func WithoutCircuitBreaker() Option {
	return func(c *Client) {
		c.circuitBreaker = nil
	}
}

// WithRateLimit caps outbound requests at a sustained rps with the
// given burst. Off unless set.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(rps, burst)
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector, typically one
// created on a private registry.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging for every event category.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a stderr console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom request correlation ID
// generator.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithFreshness sets how long a cached read result is served without
// revalidation.
func WithFreshness(d time.Duration) Option {
	return func(c *Client) {
		c.freshness = d
	}
}

// WithRetention sets how long an unread cache entry is kept before
// eviction.
func WithRetention(d time.Duration) Option {
	return func(c *Client) {
		c.retention = d
	}
}

// WithEvictionInterval sets how often the query cache sweeps for
// entries past their retention.
func WithEvictionInterval(d time.Duration) Option {
	return func(c *Client) {
		c.evictionInterval = d
	}
}

// WithReadRetryPolicy replaces the retry policy applied to reads.
func WithReadRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.readPolicy = policy
	}
}

// WithWriteRetryPolicy replaces the retry policy applied to writes.
func WithWriteRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.writePolicy = policy
	}
}

// WithClock injects the clock used for freshness and retention
// decisions. Tests pass a fake clock to step through cache lifetimes.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// ValidateConfiguration checks the assembled configuration and returns
// an error describing every problem found.
func (c *Client) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, c.validateTransportConfig()...)
	errs = append(errs, c.validateQueryConfig()...)
	errs = append(errs, c.validateDebugConfig()...)
	errs = append(errs, c.validateMiddlewareConfig()...)
	errs = append(errs, c.validateExtremeValues()...)

	if len(errs) > 0 {
		return fmt.Errorf("apikit: configuration validation failed: %v", errs)
	}

	return nil
}

func (c *Client) validateTransportConfig() []string {
	var errs []string

	if c.httpClient == nil {
		errs = append(errs, "HTTP client cannot be nil")
	}

	if c.baseURL != "" {
		u, err := url.Parse(c.baseURL)
		if err != nil {
			errs = append(errs, fmt.Sprintf("baseURL is not a valid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, "baseURL must use the http or https scheme")
		} else if u.Host == "" {
			errs = append(errs, "baseURL must include a host")
		}
	}

	return errs
}

func (c *Client) validateQueryConfig() []string {
	var errs []string

	if c.freshness <= 0 {
		errs = append(errs, "freshness must be positive")
	}
	if c.retention <= 0 {
		errs = append(errs, "retention must be positive")
	}
	if c.retention < c.freshness {
		errs = append(errs, "retention must be at least the freshness window, otherwise entries are evicted while still fresh")
	}
	if c.evictionInterval <= 0 {
		errs = append(errs, "evictionInterval must be positive")
	}
	if c.readPolicy == nil {
		errs = append(errs, "read retry policy cannot be nil")
	}
	if c.writePolicy == nil {
		errs = append(errs, "write retry policy cannot be nil")
	}
	if c.clock == nil {
		errs = append(errs, "clock cannot be nil")
	}

	return errs
}

func (c *Client) validateDebugConfig() []string {
	var errs []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errs = append(errs, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errs = append(errs, "logger must be set when debug is enabled")
		}
	}

	return errs
}

func (c *Client) validateMiddlewareConfig() []string {
	var errs []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errs = append(errs, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errs
}

func (c *Client) validateExtremeValues() []string {
	var errs []string

	if c.freshness > 24*time.Hour {
		errs = append(errs, "freshness > 24h may serve very stale data")
	}
	if c.retention > 7*24*time.Hour {
		errs = append(errs, "retention > 7d may hold entries far beyond their usefulness")
	}
	if c.httpClient != nil && c.httpClient.Timeout > 10*time.Minute {
		errs = append(errs, "timeout > 10m may cause requests to hang for too long")
	}

	return errs
}
