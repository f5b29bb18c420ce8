package client

import (
	"fmt"
	"time"
)

// HTTPError is returned when the platform answered with a 4xx/5xx status
// other than 429.
type HTTPError struct {
	StatusCode int
	Message    string
	Platform   string
	Endpoint   string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Platform, e.Endpoint, e.StatusCode, e.Message)
}

// NotFound reports whether the platform no longer knows the resource.
func (e *HTTPError) NotFound() bool {
	return e.StatusCode == 404 || e.StatusCode == 410
}

// Unauthorized reports whether the credentials were rejected.
func (e *HTTPError) Unauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// APIError means the platform could not be reached at all: timeouts,
// refused connections, DNS failures, unreadable responses.
type APIError struct {
	Platform string
	Endpoint string
	Err      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: request failed: %v", e.Platform, e.Endpoint, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// RateLimitError is returned when the platform keeps answering 429 and the
// client's wait budget is exhausted.
type RateLimitError struct {
	Platform   string
	Endpoint   string
	RetryAfter time.Duration
	Waited     time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s %s: rate limited (retry after %s, already waited %s)", e.Platform, e.Endpoint, e.RetryAfter, e.Waited)
}
