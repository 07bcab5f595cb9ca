// Package config implements the gateway's YAML configuration layer (component O),
// grounded on the teacher's cmd/streamerbrainz/config.go: defaults + file + env-var
// overlay + validation, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
	Settings   SettingsConfig   `yaml:"settings"`
	Timeseries TimeseriesConfig `yaml:"timeseries"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
}

// HTTPConfig controls the listener all traffic — OCPP, dashboard, REST, metrics — is
// served on.
type HTTPConfig struct {
	Addr  string `yaml:"addr"`
	Mount string `yaml:"mount"` // path prefix, e.g. "" or "/csms"
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// SettingsConfig controls the settings repository backing (component L).
type SettingsConfig struct {
	DataDir string `yaml:"data_dir"`
}

// TimeseriesConfig controls the time-series sink's backing writer (component G).
// A real backend is supplied via CSMS_TIMESERIES_URL / CSMS_TIMESERIES_TOKEN
// environment variables (SPEC_FULL.md §6 "Environment"); URL/Token are deliberately
// excluded from the YAML file so secrets never land in a config file on disk.
type TimeseriesConfig struct {
	URL   string `yaml:"-"`
	Token string `yaml:"-"`
}

// DashboardConfig tunes the dashboard fan-out hub (component F).
type DashboardConfig struct {
	SendBuffer      int `yaml:"send_buffer"`
	BroadcastBuffer int `yaml:"broadcast_buffer"`
}

// DefaultConfig returns a fully-populated Config with conservative defaults.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:  ":8887",
			Mount: "",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Settings: SettingsConfig{
			DataDir: "./data",
		},
		Dashboard: DashboardConfig{
			SendBuffer:      32,
			BroadcastBuffer: 128,
		},
	}
}

// Load reads and parses a YAML config file (defaults first, then a strict decode of the
// file contents over them), then applies the environment-variable secret overlay, then
// validates. path may be empty, in which case defaults + env overlay are used as-is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	applyEnvOverlay(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverlay reads secrets from the environment rather than the config file
// (SPEC_FULL.md §6 "Environment": "Addresses and credentials for the time-series and
// settings backends come from environment variables").
func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("CSMS_TIMESERIES_URL"); v != "" {
		cfg.Timeseries.URL = v
	}
	if v := os.Getenv("CSMS_TIMESERIES_TOKEN"); v != "" {
		cfg.Timeseries.Token = v
	}
	if v := os.Getenv("CSMS_SETTINGS_DSN"); v != "" {
		cfg.Settings.DataDir = v
	}
}

// Validate checks config invariants, returning a user-friendly error.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr must not be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	if c.Settings.DataDir == "" {
		return errors.New("settings.data_dir must not be empty")
	}
	if c.Dashboard.SendBuffer <= 0 {
		return errors.New("dashboard.send_buffer must be > 0")
	}
	if c.Dashboard.BroadcastBuffer <= 0 {
		return errors.New("dashboard.broadcast_buffer must be > 0")
	}
	return nil
}
