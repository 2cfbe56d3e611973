package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidateIntRange validates that an integer is within a specified range (inclusive).
func ValidateIntRange(v, min, max int) error {
	if min > max {
		return fmt.Errorf("invalid range: min (%d) cannot be greater than max (%d)", min, max)
	}
	if v < min || v > max {
		return fmt.Errorf("value %d out of range [%d, %d]", v, min, max)
	}
	return nil
}

// ValidatePositiveDuration validates that a duration is positive (greater than zero).
// This is commonly used for timeout and interval validation.
func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %v", d)
	}
	return nil
}

// ValidateDurationRange validates that a duration is within a specified range (inclusive).
func ValidateDurationRange(d, min, max time.Duration) error {
	if min > max {
		return fmt.Errorf("invalid range: min (%v) cannot be greater than max (%v)", min, max)
	}
	if d < min {
		return fmt.Errorf("duration %v is below minimum %v", d, min)
	}
	if d > max {
		return fmt.Errorf("duration %v exceeds maximum %v", d, max)
	}
	return nil
}

// ValidateHTTPURL validates that a string is an absolute http(s) URL.
// Used for feed URLs and PDS endpoint overrides.
func ValidateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
