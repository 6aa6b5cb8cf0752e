// Package config loads and validates the CaskFS daemon configuration.
//
// Configuration sources, highest precedence first: environment variables
// (CASKFS_*), the configuration file, defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the CaskFS daemon configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// API configures the loopback control API the CLI talks to.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// WebDAV configures vault serving endpoints.
	WebDAV WebDAVConfig `mapstructure:"webdav" yaml:"webdav"`

	// Mount configures how serving endpoints are attached to the OS.
	Mount MountConfig `mapstructure:"mount" yaml:"mount"`

	// Settings configures the known-vault database.
	Settings SettingsConfig `mapstructure:"settings" yaml:"settings"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format is the output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// APIConfig configures the control API server.
type APIConfig struct {
	// Port is the loopback TCP port the API listens on.
	Port int `mapstructure:"port" validate:"required,gt=0,lte=65535" yaml:"port"`

	// ReadTimeout/WriteTimeout bound request handling.
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns the metrics endpoint on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the metrics listen port.
	Port int `mapstructure:"port" validate:"omitempty,gt=0,lte=65535" yaml:"port"`

	// Path is the HTTP path metrics are exposed at.
	Path string `mapstructure:"path" yaml:"path"`
}

// WebDAVConfig configures vault serving endpoints.
type WebDAVConfig struct {
	// BindHost is the loopback address endpoints bind to.
	BindHost string `mapstructure:"bind_host" yaml:"bind_host"`

	// Port pins the endpoint port; 0 assigns an ephemeral port per vault.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535" yaml:"port"`
}

// MountConfig configures OS mounting.
type MountConfig struct {
	// BaseDir is where mountpoint directories are created.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`

	// Timeout bounds each external mount/unmount command.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SettingsConfig configures the known-vault database.
type SettingsConfig struct {
	// DatabasePath is the bbolt file holding the vault registry.
	DatabasePath string `mapstructure:"database_path" validate:"required" yaml:"database_path"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing. When enabled,
// trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`
}

// Load loads configuration from file, environment, and defaults.
// A missing config file yields the default configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file is
// missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  caskfs init\n\n"+
				"Or specify a custom config file:\n"+
				"  caskfs <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  caskfs init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// SaveConfig writes the configuration to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// 0600: the file may later carry mount credentials or similar.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// CASKFS_LOGGING_LEVEL=DEBUG overrides logging.level, and so on.
	v.SetEnvPrefix("CASKFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(GetDefaultConfigDir())
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
