package apikit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for failures that happen before any exchange starts.
var (
	// ErrCircuitOpen is the cause when the circuit breaker rejects a
	// request.
	ErrCircuitOpen = errors.New("apikit: circuit open")

	// ErrRateLimited is the cause when the local rate limiter denies a
	// request.
	ErrRateLimited = errors.New("apikit: rate limited")

	// ErrNotConfigured is returned by the package-level accessors
	// before Configure has been called.
	ErrNotConfigured = errors.New("apikit: client not configured")
)

// Kind is the closed set of failure categories every error produced by
// this package falls into. Consumers branch on Kind, never on raw
// status codes or error strings.
type Kind string

const (
	// KindNetwork covers exchanges that produced no response at all:
	// DNS and dial failures, timeouts, canceled contexts, and local
	// rejections by the rate limiter or circuit breaker.
	KindNetwork Kind = "Network"

	// KindUnauthorized maps 401 responses.
	KindUnauthorized Kind = "Unauthorized"

	// KindForbidden maps 403 responses.
	KindForbidden Kind = "Forbidden"

	// KindValidation maps 422 responses.
	KindValidation Kind = "Validation"

	// KindNotFound maps 404 responses.
	KindNotFound Kind = "NotFound"

	// KindServerError maps 500 responses.
	KindServerError Kind = "ServerError"

	// KindUnknown maps every other non-success status.
	KindUnknown Kind = "Unknown"
)

// kindMessages are the fixed, user-presentable messages per category.
// The response body never feeds the message; it is only surfaced as the
// parsed Payload.
var kindMessages = map[Kind]string{
	KindNetwork:      "network failure before a response was received",
	KindUnauthorized: "authentication required or session expired",
	KindForbidden:    "insufficient permissions for this resource",
	KindValidation:   "request was rejected as invalid",
	KindNotFound:     "resource not found",
	KindServerError:  "server failed to process the request",
	KindUnknown:      "request failed with an unexpected status",
}

// maxErrorBody caps how much of a failed response body is read while
// extracting the diagnostic payload.
const maxErrorBody = 1 << 20

// APIError is the single error type surfaced by the client and the
// query cache. StatusCode is zero when no response was received, and
// Payload holds the parsed JSON error body when the server sent one.
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Payload    any
	RetryAfter time.Duration
	Cause      error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("apikit: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("apikit: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("apikit: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches on Kind, and on StatusCode when the target sets one, so
// callers can write errors.Is(err, &APIError{Kind: KindNotFound}).
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	if t.StatusCode != 0 && t.StatusCode != e.StatusCode {
		return false
	}
	return t.Kind == e.Kind
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *APIError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.RetryAfter > 0 {
		info += fmt.Sprintf("Retry After: %v\n", e.RetryAfter)
	}
	if e.Payload != nil {
		info += fmt.Sprintf("Payload: %v\n", e.Payload)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// Classify maps the outcome of an HTTP exchange onto the error
// taxonomy. It is total: every (resp, err) pair a transport can produce
// yields a non-nil *APIError.
//
// A non-nil err means no usable response arrived and classifies as
// KindNetwork. Otherwise the status code decides:
//
//	401 -> Unauthorized
//	403 -> Forbidden
//	404 -> NotFound
//	422 -> Validation
//	500 -> ServerError
//	any other status -> Unknown
//
// When a response is classified its body is consumed and closed; a JSON
// body is kept as Payload for diagnostics.
func Classify(resp *http.Response, err error) *APIError {
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return &APIError{Kind: KindNetwork, Message: kindMessages[KindNetwork], Cause: err}
	}
	kind := kindForStatus(resp.StatusCode)
	return &APIError{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Message:    kindMessages[kind],
		Payload:    decodePayload(resp),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusInternalServerError:
		return KindServerError
	default:
		return KindUnknown
	}
}

// decodePayload reads and parses a JSON error body on a best-effort
// basis. Missing, oversized, or malformed bodies leave Payload nil.
func decodePayload(resp *http.Response) any {
	if resp.Body == nil {
		return nil
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return nil
	}
	var payload any
	if json.Unmarshal(data, &payload) != nil {
		return nil
	}
	return payload
}

// parseRetryAfter handles both forms of the Retry-After header: a delay
// in seconds or an HTTP date. Hints are capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if secs <= 0 {
			return 0
		}
		d := time.Duration(secs) * time.Second
		if d > time.Hour {
			d = time.Hour
		}
		return d
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 && d <= time.Hour {
			return d
		}
	}
	return 0
}

// IsTransient reports whether a failure is worth retrying. Network
// failures, 500s, 429s, and unclassified 5xx statuses are transient;
// the rest of the 4xx family is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindNetwork, KindServerError:
		return true
	case KindUnknown:
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	default:
		return false
	}
}

// asAPIError coerces an arbitrary error into the taxonomy. Errors
// produced by this package pass through unchanged; context expiry maps
// to KindNetwork; anything else (say, a failing decode inside a fetch
// function) is wrapped as KindUnknown.
func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: KindNetwork, Message: kindMessages[KindNetwork], Cause: err}
	}
	return &APIError{Kind: KindUnknown, Message: kindMessages[KindUnknown], Cause: err}
}
