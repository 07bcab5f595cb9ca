package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_PassesValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate, got: %v", err)
	}
}

func TestLoad_NoPathReturnsDefaultsPlusEnvOverlay(t *testing.T) {
	t.Setenv("CSMS_SETTINGS_DSN", "/var/lib/csms")
	t.Setenv("CSMS_TIMESERIES_URL", "http://ts.example:8086")
	t.Setenv("CSMS_TIMESERIES_TOKEN", "secret-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Settings.DataDir != "/var/lib/csms" {
		t.Fatalf("expected env overlay to override data_dir, got %q", cfg.Settings.DataDir)
	}
	if cfg.Timeseries.URL != "http://ts.example:8086" || cfg.Timeseries.Token != "secret-token" {
		t.Fatalf("expected timeseries secrets from env, got %+v", cfg.Timeseries)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "http:\n  addr: \":9999\"\nlogging:\n  level: debug\nsettings:\n  data_dir: /tmp/csms\ndashboard:\n  send_buffer: 64\n  broadcast_buffer: 256\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTP.Addr != ":9999" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Dashboard.SendBuffer != 64 || cfg.Dashboard.BroadcastBuffer != 256 {
		t.Fatalf("unexpected dashboard config: %+v", cfg.Dashboard)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "http:\n  addr: \":9999\"\n  bogus_field: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown config field")
	}
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for an invalid log level")
	}
}

func TestValidate_RejectsEmptyAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTP.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for an empty http.addr")
	}
}

func TestValidate_RejectsNonPositiveBuffers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dashboard.SendBuffer = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for a non-positive send buffer")
	}

	cfg = DefaultConfig()
	cfg.Dashboard.BroadcastBuffer = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for a non-positive broadcast buffer")
	}
}
