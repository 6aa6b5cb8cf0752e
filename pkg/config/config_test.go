package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, DefaultLogLevel)
	}
	if cfg.API.Port != DefaultAPIPort {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, DefaultAPIPort)
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, DefaultShutdownTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: DEBUG
  format: json
api:
  port: 9001
mount:
  timeout: 45s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Logging.Level = %q, want DEBUG", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if cfg.API.Port != 9001 {
		t.Errorf("API.Port = %d, want 9001", cfg.API.Port)
	}
	if cfg.Mount.Timeout != 45*time.Second {
		t.Errorf("Mount.Timeout = %v, want 45s", cfg.Mount.Timeout)
	}
	// Unset sections keep their defaults.
	if cfg.WebDAV.BindHost != DefaultWebDAVBindHost {
		t.Errorf("WebDAV.BindHost = %q, want %q", cfg.WebDAV.BindHost, DefaultWebDAVBindHost)
	}
}

func TestLoadInvalidLevelFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: LOUD
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for bad logging level")
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "WARN"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9100

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Logging.Level != "WARN" {
		t.Errorf("Logging.Level = %q, want WARN", got.Logging.Level)
	}
	if !got.Metrics.Enabled || got.Metrics.Port != 9100 {
		t.Errorf("Metrics = %+v, want enabled on port 9100", got.Metrics)
	}
}

func TestMustLoadMissingExplicitFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestApplyDefaultsDoesNotOverride(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "ERROR"
	cfg.API.Port = 1234
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Logging.Level = %q, want ERROR", cfg.Logging.Level)
	}
	if cfg.API.Port != 1234 {
		t.Errorf("API.Port = %d, want 1234", cfg.API.Port)
	}
	if cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, DefaultLogFormat)
	}
}
