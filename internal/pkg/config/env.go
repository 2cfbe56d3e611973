// Package config provides reusable environment loading helpers and validators
// shared by the bot's configuration layers.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// GetEnvString returns the value of an environment variable or the default value if not set.
//
// This function does not perform validation and does not log warnings.
// It is suitable for simple string configuration values.
func GetEnvString(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt returns the value of an environment variable as an integer.
//
// If the environment variable is not set, empty, or cannot be parsed as an integer,
// this function returns the default value and logs a warning.
func GetEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		slog.Warn("invalid integer value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", valueStr),
			slog.Int("default", defaultValue),
			slog.String("error", err.Error()))
		return defaultValue
	}

	return value
}

// GetEnvBool returns the value of an environment variable as a boolean.
//
// Accepted true values: "1", "t", "T", "true", "TRUE", "True"
// Accepted false values: "0", "f", "F", "false", "FALSE", "False"
//
// If the environment variable is not set, empty, or has an invalid value,
// this function returns the default value and logs a warning.
func GetEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	switch valueStr {
	case "1", "t", "T", "true", "TRUE", "True":
		return true
	case "0", "f", "F", "false", "FALSE", "False":
		return false
	default:
		slog.Warn("invalid boolean value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", valueStr),
			slog.Bool("default", defaultValue))
		return defaultValue
	}
}

// GetEnvDuration returns the value of an environment variable as a time.Duration.
//
// The value must be parseable by time.ParseDuration (e.g., "1m", "30s", "1h30m").
//
// If the environment variable is not set, empty, or cannot be parsed,
// this function returns the default value and logs a warning.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		slog.Warn("invalid duration value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", valueStr),
			slog.String("default", defaultValue.String()),
			slog.String("error", err.Error()))
		return defaultValue
	}

	return value
}
