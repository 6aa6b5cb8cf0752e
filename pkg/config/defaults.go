package config

import (
	"os"
	"path/filepath"
	"time"
)

// Defaults used when a setting is unset.
const (
	DefaultLogLevel  = "INFO"
	DefaultLogFormat = "text"
	DefaultLogOutput = "stderr"

	DefaultAPIPort      = 8757
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 15 * time.Second

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"

	DefaultWebDAVBindHost = "127.0.0.1"

	DefaultMountTimeout = 30 * time.Second

	DefaultShutdownTimeout = 30 * time.Second

	DefaultTelemetrySampleRate = 1.0
)

// GetDefaultConfig returns a configuration populated with defaults.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields with their default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = DefaultLogOutput
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = DefaultAPIPort
	}
	if cfg.API.ReadTimeout == 0 {
		cfg.API.ReadTimeout = DefaultReadTimeout
	}
	if cfg.API.WriteTimeout == 0 {
		cfg.API.WriteTimeout = DefaultWriteTimeout
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.WebDAV.BindHost == "" {
		cfg.WebDAV.BindHost = DefaultWebDAVBindHost
	}

	if cfg.Mount.BaseDir == "" {
		cfg.Mount.BaseDir = filepath.Join(os.TempDir(), "caskfs")
	}
	if cfg.Mount.Timeout == 0 {
		cfg.Mount.Timeout = DefaultMountTimeout
	}

	if cfg.Settings.DatabasePath == "" {
		cfg.Settings.DatabasePath = filepath.Join(GetDefaultDataDir(), "settings.db")
	}

	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = DefaultTelemetrySampleRate
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// GetDefaultConfigDir returns the directory the default config file lives in.
func GetDefaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "caskfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "caskfs")
	}
	return filepath.Join(home, ".config", "caskfs")
}

// GetDefaultConfigPath returns the default config file location.
func GetDefaultConfigPath() string {
	return filepath.Join(GetDefaultConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether the default config file exists.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetDefaultDataDir returns the directory for mutable state such as the
// vault registry database.
func GetDefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "caskfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "caskfs")
	}
	return filepath.Join(home, ".local", "share", "caskfs")
}
