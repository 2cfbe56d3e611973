package bluesky

import (
	"fmt"
	"time"
)

// RateLimitError represents a 429 from the PDS. The server-provided wait,
// when present, becomes the minimum backoff for the next attempt.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// Retryable reports that rate limits are worth waiting out.
func (e *RateLimitError) Retryable() bool { return true }

// RetryAfterDelay returns the server-provided minimum wait.
func (e *RateLimitError) RetryAfterDelay() time.Duration { return e.RetryAfter }

// ClientError represents a non-429 4xx from the PDS: bad credentials,
// malformed payload, suspended account. Never retried.
type ClientError struct {
	StatusCode int
	Code       string // XRPC error name, e.g. "AuthenticationRequired"
	Message    string
}

func (e *ClientError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bluesky client error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("bluesky client error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports that client errors are permanent for this payload.
func (e *ClientError) Retryable() bool { return false }

// ServerError represents a 5xx from the PDS, always retryable.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("bluesky server error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports that server errors are transient.
func (e *ServerError) Retryable() bool { return true }
