package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Probes.DefaultIntervalS != 30 {
		t.Fatalf("expected default probe interval 30, got %d", cfg.Probes.DefaultIntervalS)
	}
	if cfg.Alarms.StormThreshold != 10 {
		t.Fatalf("expected default storm threshold 10, got %d", cfg.Alarms.StormThreshold)
	}
	if cfg.Flows.MaxMemoryFlows != 10000 {
		t.Fatalf("expected default max memory flows 10000, got %d", cfg.Flows.MaxMemoryFlows)
	}
	if cfg.SLA.DefaultAvailabilityThreshold != 99.9 {
		t.Fatalf("expected default availability threshold 99.9, got %f", cfg.SLA.DefaultAvailabilityThreshold)
	}
	if cfg.Analytics.ConfidenceLevel != 0.95 {
		t.Fatalf("expected default confidence level 0.95, got %f", cfg.Analytics.ConfidenceLevel)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults when config file is absent")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"probes":{"defaultIntervalS":60},"alarms":{"stormThreshold":25}}`), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Probes.DefaultIntervalS != 60 {
		t.Fatalf("expected file override of 60, got %d", cfg.Probes.DefaultIntervalS)
	}
	if cfg.Alarms.StormThreshold != 25 {
		t.Fatalf("expected file override of 25, got %d", cfg.Alarms.StormThreshold)
	}
	if cfg.Flows.MaxMemoryFlows != 10000 {
		t.Fatalf("expected untouched field to keep its default, got %d", cfg.Flows.MaxMemoryFlows)
	}
}

func TestLoadAppliesEnvOverrideOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"probes":{"defaultIntervalS":60}}`), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("SA_PROBES_DEFAULT_INTERVAL_S", "120")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Probes.DefaultIntervalS != 120 {
		t.Fatalf("expected env override of 120, got %d", cfg.Probes.DefaultIntervalS)
	}
}

func TestLoadEnvOverrideFloatAndBool(t *testing.T) {
	t.Setenv("SA_SLA_DEFAULT_AVAILABILITY_THRESHOLD", "99.99")
	t.Setenv("SA_PROBES_SIMULATION_MODE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SLA.DefaultAvailabilityThreshold != 99.99 {
		t.Fatalf("expected 99.99, got %f", cfg.SLA.DefaultAvailabilityThreshold)
	}
	if !cfg.Probes.SimulationMode {
		t.Fatalf("expected simulation mode enabled by env override")
	}
}

func TestLoadInvalidJSONReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{not-json`), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestWatcherReloadsOnFileWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"probes":{"defaultIntervalS":30}}`), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	reloaded := make(chan Config, 1)
	w, err := NewWatcher(path, func(c Config) { reloaded <- c }, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Close()

	if w.Current().Probes.DefaultIntervalS != 30 {
		t.Fatalf("expected initial interval 30, got %d", w.Current().Probes.DefaultIntervalS)
	}

	if err := os.WriteFile(path, []byte(`{"probes":{"defaultIntervalS":90}}`), 0o644); err != nil {
		t.Fatalf("failed to rewrite config file: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Probes.DefaultIntervalS != 90 {
			t.Fatalf("expected reloaded interval 90, got %d", cfg.Probes.DefaultIntervalS)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for config reload")
	}

	if w.Current().Probes.DefaultIntervalS != 90 {
		t.Fatalf("expected Current() to reflect reload, got %d", w.Current().Probes.DefaultIntervalS)
	}
}
