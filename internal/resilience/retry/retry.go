// Package retry provides retry logic with exponential backoff and jitter.
// It helps handle transient failures gracefully by automatically retrying failed operations.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first one
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// Multiplier is the multiplier for exponential backoff
	Multiplier float64

	// JitterFraction is the fraction of delay to add as random jitter (0.0 to 1.0)
	JitterFraction float64

	// Sleep waits for the given delay between attempts. Nil means a real
	// time.After wait. Tests inject a recording implementation so backoff
	// behavior is verifiable without wall-clock sleeps.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// FeedFetchConfig returns configuration optimized for RSS feed fetching.
// Aggressive retry for transient network issues.
func FeedFetchConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// PublishConfig returns configuration for post submission.
// Conservative attempt count so a rate-limited account backs off quickly.
func PublishConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   5 * time.Second,
		MaxDelay:       2 * time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// LoginConfig returns configuration for session creation against the PDS.
// Long delays: login rate limits are per-day budgets, not burst limits.
func LoginConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   30 * time.Second,
		MaxDelay:       10 * time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// PageFetchConfig returns configuration for article page fetches during
// image discovery. Rate limits and flaky hosts are worth a short retry;
// a hard 4xx fails immediately.
func PageFetchConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   2 * time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// ImageFetchConfig returns configuration for article image downloads.
// A missing image only degrades the post to text-only, so give up fast.
func ImageFetchConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   2 * time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// WithBackoff executes the given function with retry logic and exponential backoff.
// It returns nil if the function succeeds, or the last error if all attempts fail.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepReal
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()

		// Success - return immediately
		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return nil
		}

		// Check if error is retryable
		if !IsRetryable(lastErr) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr))
			return lastErr
		}

		// Don't wait after last attempt
		if attempt == cfg.MaxAttempts {
			break
		}

		// A rate-limited server dictates its own minimum wait
		wait := delay
		if after, ok := RetryAfter(lastErr); ok && after > wait {
			wait = after
		}

		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", wait),
			slog.Any("error", lastErr))

		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}

		// Calculate next delay with exponential backoff
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		// Add jitter to prevent thundering herd
		delay = addJitter(delay, cfg.JitterFraction)
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// sleepReal waits for d with context cancellation support.
func sleepReal(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryClassifier is implemented by errors that carry their own retry decision,
// such as the Bluesky client's typed errors.
type retryClassifier interface {
	Retryable() bool
}

// retryAfterCarrier is implemented by rate limit errors that carry a
// server-provided minimum wait.
type retryAfterCarrier interface {
	RetryAfterDelay() time.Duration
}

// IsRetryable determines if an error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Errors that classify themselves win over generic checks
	var rc retryClassifier
	if errors.As(err, &rc) {
		return rc.Retryable()
	}

	// Network errors (timeout)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// HTTP status codes
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		// 5xx server errors are retryable
		if httpErr.StatusCode >= 500 && httpErr.StatusCode < 600 {
			return true
		}
		// 429 Too Many Requests is retryable
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		// 408 Request Timeout is retryable
		if httpErr.StatusCode == http.StatusRequestTimeout {
			return true
		}
	}

	return false
}

// RetryAfter extracts a server-provided minimum wait from a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rac retryAfterCarrier
	if errors.As(err, &rac) && rac.RetryAfterDelay() > 0 {
		return rac.RetryAfterDelay(), true
	}
	return 0, false
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// addJitter adds random jitter to a duration to prevent thundering herd.
func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}
	// #nosec G404 -- Using math/rand is acceptable for jitter calculation.
	// Cryptographic randomness is not required for retry backoff jitter.
	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	return duration + jitter
}
