package apikit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Middleware intercepts an outbound request and may decorate or
// short-circuit the exchange before handing it to next.
type Middleware func(req *http.Request, next http.RoundTripper) (*http.Response, error)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(req *http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Client is the single shared HTTP access point of an application. It
// resolves paths against one base URL, injects the current session's
// credentials, guards the upstream with a circuit breaker and an
// optional rate limiter, and classifies every failure into the closed
// error taxonomy. It is safe for concurrent use.
//
// Each call to Do performs exactly one exchange; retry schedules are
// applied by the query cache around whole read and write operations,
// not per HTTP attempt.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	sessions       SessionSource
	middleware     []Middleware
	circuitBreaker *CircuitBreaker
	rateLimiter    *RateLimiter
	metrics        *MetricsCollector
	debug          *DebugConfig
	logger         Logger

	freshness        time.Duration
	retention        time.Duration
	evictionInterval time.Duration
	readPolicy       RetryPolicy
	writePolicy      RetryPolicy
	clock            clockwork.Clock

	queries         *QueryCache
	validationError error
}

// New constructs a Client from the provided functional options. A best
// effort validation is performed; call IsValid or ValidationError for
// the result. The returned client owns a query cache reachable via
// Queries.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		circuitBreaker:   NewCircuitBreaker(CircuitBreakerConfig{}),
		middleware:       []Middleware{},
		freshness:        DefaultFreshness,
		retention:        DefaultRetention,
		evictionInterval: DefaultEvictionInterval,
		readPolicy:       NewReadRetryPolicy(),
		writePolicy:      NewWriteRetryPolicy(),
		clock:            clockwork.NewRealClock(),
	}

	for _, option := range options {
		option(client)
	}

	// The session middleware always runs last so nothing between it and
	// the transport can drop the Authorization header.
	if client.sessions != nil {
		client.middleware = append(client.middleware, authMiddleware(client.sessions))
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	client.queries = NewQueryCache(QueryConfig{
		Freshness:        client.freshness,
		Retention:        client.retention,
		EvictionInterval: client.evictionInterval,
		ReadPolicy:       client.readPolicy,
		WritePolicy:      client.writePolicy,
		Clock:            client.clock,
		Metrics:          client.metrics,
		Logger:           client.logger,
		Debug:            client.debug,
	})

	return client
}

// Queries returns the client's query cache.
func (c *Client) Queries() *QueryCache {
	return c.queries
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases background resources, currently the query cache's
// eviction loop.
func (c *Client) Close() {
	if c.queries != nil {
		c.queries.Close()
	}
}

// Get performs a GET against a path resolved on the base URL.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	target, err := c.resolveURL(path)
	if err != nil {
		return nil, asAPIError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, asAPIError(err)
	}
	return c.Do(req)
}

// Post performs a POST with the given content type.
func (c *Client) Post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	target, err := c.resolveURL(path)
	if err != nil {
		return nil, asAPIError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, asAPIError(err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Do executes one exchange for a prepared *http.Request. Responses with
// status 400 and above are consumed and returned as a classified
// *APIError; for every other outcome the caller owns the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	endpoint := endpointFromRequest(req)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", req.Method, "url", req.URL.String())
	}

	c.metrics.RecordRequestStart(req.Method, endpoint)
	defer c.metrics.RecordRequestEnd(req.Method, endpoint)

	if !c.rateLimiter.Allow() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
			c.logger.Warn("Rate limit exceeded", "requestID", requestID, "endpoint", endpoint)
		}
		return nil, c.fail(req, endpoint, Classify(nil, ErrRateLimited))
	}
	if c.rateLimiter != nil {
		c.metrics.RecordRateLimiterTokens("default", c.rateLimiter.Tokens())
	}

	if !c.circuitBreaker.Allow() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("Circuit breaker open", "requestID", requestID, "endpoint", endpoint)
		}
		return nil, c.fail(req, endpoint, Classify(nil, ErrCircuitOpen))
	}

	resp, err := c.executeMiddleware(req)

	if err != nil || (resp != nil && resp.StatusCode >= 500) {
		c.circuitBreaker.RecordFailure(err)
	} else {
		c.circuitBreaker.RecordSuccess()
	}
	c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())

	duration := time.Since(start)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(req.Method, endpoint, statusCode, duration)

	if err != nil {
		apiErr := Classify(nil, err)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
			c.logger.Warn("Request failed", "requestID", requestID, "endpoint", endpoint, "error", err.Error())
		}
		return nil, c.fail(req, endpoint, apiErr)
	}

	if resp.StatusCode >= 400 {
		apiErr := Classify(resp, nil)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
			c.logger.Debug("Request completed with error status", "requestID", requestID, "endpoint", endpoint, "status", resp.StatusCode, "kind", apiErr.Kind)
		}
		return nil, c.fail(req, endpoint, apiErr)
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Request completed", "requestID", requestID, "endpoint", endpoint, "status", resp.StatusCode, "duration", duration)
	}

	return resp, nil
}

func (c *Client) fail(req *http.Request, endpoint string, apiErr *APIError) *APIError {
	c.metrics.RecordError(apiErr.Kind, req.Method, endpoint)
	return apiErr
}

// DoJSON issues a request with an optional JSON body and decodes a JSON
// success response into out. Both body and out may be nil. The path is
// resolved against the base URL; failures come back as *APIError.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	target, err := c.resolveURL(path)
	if err != nil {
		return asAPIError(err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return asAPIError(fmt.Errorf("encoding request body: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return asAPIError(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return asAPIError(fmt.Errorf("decoding response body: %w", err))
	}
	return nil
}

// GetJSON fetches path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON posts body as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPost, path, body, out)
}

// PutJSON puts body as JSON and decodes the response into out.
func (c *Client) PutJSON(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPut, path, body, out)
}

// PatchJSON patches with body as JSON and decodes the response into
// out.
func (c *Client) PatchJSON(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPatch, path, body, out)
}

// DeleteJSON deletes path and decodes the JSON response into out.
func (c *Client) DeleteJSON(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// resolveURL joins path onto the base URL. Absolute URLs pass through
// untouched so callers can escape the base when they must.
func (c *Client) resolveURL(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if c.baseURL == "" {
		return path, nil
	}
	return url.JoinPath(c.baseURL, path)
}

// IsValid reports whether configuration validation passed at
// construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// ValidateConfigurationStrict panics if the configuration is invalid.
func (c *Client) ValidateConfigurationStrict() {
	if err := c.ValidateConfiguration(); err != nil {
		panic(fmt.Sprintf("invalid client configuration: %v", err))
	}
}

func endpointFromRequest(req *http.Request) string {
	if req.URL == nil {
		return "unknown"
	}

	host := req.URL.Host
	path := req.URL.Path

	var builder strings.Builder
	builder.WriteString(host)

	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
