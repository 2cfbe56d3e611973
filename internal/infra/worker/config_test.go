package worker

import (
	"testing"
	"time"
)

func TestLoadWorkerConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadWorkerConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadWorkerConfigFromEnv() error = %v", err)
	}
	if cfg.HealthPort != 9091 {
		t.Errorf("HealthPort = %d, want 9091", cfg.HealthPort)
	}
	if cfg.MetricsPort != 9090 {
		t.Errorf("MetricsPort = %d, want 9090", cfg.MetricsPort)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", cfg.Timezone)
	}
}

func TestLoadWorkerConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("HEALTH_PORT", "8081")
	t.Setenv("CYCLE_TIMEOUT", "45m")

	cfg, err := LoadWorkerConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadWorkerConfigFromEnv() error = %v", err)
	}
	if cfg.HealthPort != 8081 {
		t.Errorf("HealthPort = %d, want 8081", cfg.HealthPort)
	}
	if cfg.CycleTimeout != 45*time.Minute {
		t.Errorf("CycleTimeout = %v, want 45m", cfg.CycleTimeout)
	}
}

func TestWorkerConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*WorkerConfig)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(*WorkerConfig) {}},
		{name: "port collision", mutate: func(c *WorkerConfig) { c.MetricsPort = c.HealthPort }, wantErr: true},
		{name: "zero timeout", mutate: func(c *WorkerConfig) { c.CycleTimeout = 0 }, wantErr: true},
		{name: "bad timezone", mutate: func(c *WorkerConfig) { c.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "port out of range", mutate: func(c *WorkerConfig) { c.HealthPort = 70000 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWorkerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
