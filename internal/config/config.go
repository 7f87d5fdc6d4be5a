// Package config loads the core's configuration from a JSON file with
// environment variable overrides (spec §6 "Configuration"), and
// watches the file for changes with fsnotify the way the teacher's
// config layer hot-reloads its own settings files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Probes holds probe-scheduling defaults.
type Probes struct {
	DefaultIntervalS   int  `json:"defaultIntervalS"`
	DefaultTimeoutS    int  `json:"defaultTimeoutS"`
	MaxResultsPerProbe int  `json:"maxResultsPerProbe"`
	SimulationMode     bool `json:"simulationMode"`
}

// Alarms holds alarm-engine defaults.
type Alarms struct {
	StormThreshold      int    `json:"stormThreshold"`
	StormWindowMinutes  int    `json:"stormWindowMinutes"`
	DefaultSeverity     string `json:"defaultSeverity"`
	MaxMemoryAlarms     int    `json:"maxMemoryAlarms"`
}

// Flows holds flow-aggregator defaults.
type Flows struct {
	MaxMemoryFlows           int `json:"maxMemoryFlows"`
	DefaultSamplingRate      int `json:"defaultSamplingRate"`
	AggregationWindowMinutes int `json:"aggregationWindowMinutes"`
}

// SLA holds SLA-evaluator defaults.
type SLA struct {
	DefaultAvailabilityThreshold   float64 `json:"defaultAvailabilityThreshold"`
	DefaultLatencyThresholdMs      float64 `json:"defaultLatencyThresholdMs"`
	DefaultMeasurementWindowHours  int     `json:"defaultMeasurementWindowHours"`
	MinimumSampleCount             int     `json:"minimumSampleCount"`
}

// Analytics holds anomaly-detection defaults.
type Analytics struct {
	AnomalyDetectionThreshold float64 `json:"anomalyDetectionThreshold"`
	BaselineWindowHours       int     `json:"baselineWindowHours"`
	ConfidenceLevel           float64 `json:"confidenceLevel"`
}

// Config is the complete core configuration (spec §6).
type Config struct {
	Probes    Probes    `json:"probes"`
	Alarms    Alarms    `json:"alarms"`
	Flows     Flows     `json:"flows"`
	SLA       SLA       `json:"sla"`
	Analytics Analytics `json:"analytics"`
}

// Default returns the configuration with every default named in
// spec §6.
func Default() Config {
	return Config{
		Probes: Probes{
			DefaultIntervalS:   30,
			DefaultTimeoutS:    10,
			MaxResultsPerProbe: 1000,
			SimulationMode:     false,
		},
		Alarms: Alarms{
			StormThreshold:     10,
			StormWindowMinutes: 5,
			DefaultSeverity:    "WARNING",
			MaxMemoryAlarms:    5000,
		},
		Flows: Flows{
			MaxMemoryFlows:           10000,
			DefaultSamplingRate:      1,
			AggregationWindowMinutes: 15,
		},
		SLA: SLA{
			DefaultAvailabilityThreshold:  99.9,
			DefaultLatencyThresholdMs:     100,
			DefaultMeasurementWindowHours: 24,
			MinimumSampleCount:            10,
		},
		Analytics: Analytics{
			AnomalyDetectionThreshold: 2.0,
			BaselineWindowHours:       24,
			ConfidenceLevel:           0.95,
		},
	}
}

// Load reads a JSON config file (if present), applies SA_<SECTION>_<KEY>
// environment variable overrides on top, and returns the result merged
// onto Default().
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides scans the process environment for SA_<SECTION>_<KEY>
// variables and applies them over whatever the file/defaults set.
func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"SA_PROBES_DEFAULT_INTERVAL_S":    intSetter(&cfg.Probes.DefaultIntervalS),
		"SA_PROBES_DEFAULT_TIMEOUT_S":     intSetter(&cfg.Probes.DefaultTimeoutS),
		"SA_PROBES_MAX_RESULTS_PER_PROBE": intSetter(&cfg.Probes.MaxResultsPerProbe),
		"SA_PROBES_SIMULATION_MODE":       boolSetter(&cfg.Probes.SimulationMode),

		"SA_ALARMS_STORM_THRESHOLD":       intSetter(&cfg.Alarms.StormThreshold),
		"SA_ALARMS_STORM_WINDOW_MINUTES":  intSetter(&cfg.Alarms.StormWindowMinutes),
		"SA_ALARMS_DEFAULT_SEVERITY":      stringSetter(&cfg.Alarms.DefaultSeverity),
		"SA_ALARMS_MAX_MEMORY_ALARMS":     intSetter(&cfg.Alarms.MaxMemoryAlarms),

		"SA_FLOWS_MAX_MEMORY_FLOWS":             intSetter(&cfg.Flows.MaxMemoryFlows),
		"SA_FLOWS_DEFAULT_SAMPLING_RATE":        intSetter(&cfg.Flows.DefaultSamplingRate),
		"SA_FLOWS_AGGREGATION_WINDOW_MINUTES":   intSetter(&cfg.Flows.AggregationWindowMinutes),

		"SA_SLA_DEFAULT_AVAILABILITY_THRESHOLD":  floatSetter(&cfg.SLA.DefaultAvailabilityThreshold),
		"SA_SLA_DEFAULT_LATENCY_THRESHOLD_MS":    floatSetter(&cfg.SLA.DefaultLatencyThresholdMs),
		"SA_SLA_DEFAULT_MEASUREMENT_WINDOW_HOURS": intSetter(&cfg.SLA.DefaultMeasurementWindowHours),
		"SA_SLA_MINIMUM_SAMPLE_COUNT":             intSetter(&cfg.SLA.MinimumSampleCount),

		"SA_ANALYTICS_ANOMALY_DETECTION_THRESHOLD": floatSetter(&cfg.Analytics.AnomalyDetectionThreshold),
		"SA_ANALYTICS_BASELINE_WINDOW_HOURS":       intSetter(&cfg.Analytics.BaselineWindowHours),
		"SA_ANALYTICS_CONFIDENCE_LEVEL":            floatSetter(&cfg.Analytics.ConfidenceLevel),
	}

	for key, set := range overrides {
		if v, ok := os.LookupEnv(key); ok {
			set(v)
		}
	}
}

func intSetter(dst *int) func(string) {
	return func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func floatSetter(dst *float64) func(string) {
	return func(v string) {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func boolSetter(dst *bool) func(string) {
	return func(v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func stringSetter(dst *string) func(string) {
	return func(v string) { *dst = strings.TrimSpace(v) }
}

// Watcher reloads Config from disk whenever the underlying file
// changes, notifying subscribers via OnChange. Grounded on the
// teacher's config hot-reload convention (fsnotify-driven reload on
// its own settings files).
type Watcher struct {
	mu       sync.RWMutex
	path     string
	current  Config
	watcher  *fsnotify.Watcher
	onChange func(Config)
	log      zerolog.Logger
}

// NewWatcher loads the initial config and starts watching path for
// writes. onChange, if non-nil, is invoked with the newly loaded
// config after every successful reload.
func NewWatcher(path string, onChange func(Config), log zerolog.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if path != "" {
		if err := fw.Add(path); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching config file: %w", err)
		}
	}

	w := &Watcher{
		path:     path,
		current:  cfg,
		watcher:  fw,
		onChange: onChange,
		log:      log.With().Str("component", "config").Logger(),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Error().Err(err).Msg("failed to reload config")
				continue
			}
			w.mu.Lock()
			w.current = cfg
			w.mu.Unlock()
			if w.onChange != nil {
				w.onChange(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("config watcher error")
		}
	}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
