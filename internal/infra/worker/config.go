package worker

import (
	"fmt"
	"time"

	"bsky-rss-bot/internal/pkg/config"
)

// WorkerConfig holds the operational settings of the bot process,
// loaded from environment variables with fail-open defaults.
type WorkerConfig struct {
	// HealthPort is where the liveness/readiness server listens.
	HealthPort int

	// MetricsPort is where the Prometheus endpoint listens.
	MetricsPort int

	// Timezone names the location the scheduler runs in.
	Timezone string

	// CycleTimeout bounds one full publishing cycle across all accounts
	// so a hung feed or endpoint cannot stall the scheduler forever.
	CycleTimeout time.Duration
}

// DefaultWorkerConfig returns the production defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		HealthPort:   9091,
		MetricsPort:  9090,
		Timezone:     "UTC",
		CycleTimeout: 20 * time.Minute,
	}
}

// LoadWorkerConfigFromEnv reads overrides from the environment:
// HEALTH_PORT, METRICS_PORT, BOT_TIMEZONE, CYCLE_TIMEOUT.
// Invalid values fall back to defaults with a logged warning.
func LoadWorkerConfigFromEnv() (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()
	cfg.HealthPort = config.GetEnvInt("HEALTH_PORT", cfg.HealthPort)
	cfg.MetricsPort = config.GetEnvInt("METRICS_PORT", cfg.MetricsPort)
	cfg.Timezone = config.GetEnvString("BOT_TIMEZONE", cfg.Timezone)
	cfg.CycleTimeout = config.GetEnvDuration("CYCLE_TIMEOUT", cfg.CycleTimeout)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot run with.
func (c *WorkerConfig) Validate() error {
	if err := config.ValidateIntRange(c.HealthPort, 1, 65535); err != nil {
		return fmt.Errorf("HEALTH_PORT: %w", err)
	}
	if err := config.ValidateIntRange(c.MetricsPort, 1, 65535); err != nil {
		return fmt.Errorf("METRICS_PORT: %w", err)
	}
	if c.HealthPort == c.MetricsPort {
		return fmt.Errorf("HEALTH_PORT and METRICS_PORT must differ, both are %d", c.HealthPort)
	}
	if err := config.ValidatePositiveDuration(c.CycleTimeout); err != nil {
		return fmt.Errorf("CYCLE_TIMEOUT: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid BOT_TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}
