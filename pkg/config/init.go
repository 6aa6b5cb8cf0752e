package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the annotated configuration written by "caskfs init".
// It must stay in sync with the Config struct and parse as valid YAML.
const sampleConfig = `# CaskFS Configuration File
#
# All values shown are the defaults. Every option can be overridden with
# an environment variable: CASKFS_<SECTION>_<KEY>, for example
# CASKFS_LOGGING_LEVEL=DEBUG or CASKFS_WEBDAV_PORT=42427.

logging:
  # Log level: DEBUG, INFO, WARN, ERROR
  level: INFO
  # Log format: text or json
  format: text
  # Log output: stdout, stderr, or a file path
  output: stdout

api:
  # Port for the loopback management API
  port: 8757
  read_timeout: 15s
  write_timeout: 15s

webdav:
  # Host the per-vault WebDAV servers bind to. Keep this on loopback
  # unless you understand the implications of exposing decrypted data.
  bind_host: 127.0.0.1
  # Base port for vault servers; 0 picks a free port per vault
  port: 0

mount:
  # Directory mountpoints are created under (empty uses the OS default)
  base_dir: ""
  # How long to wait for the OS mount command
  timeout: 30s

settings:
  # Vault registry database (empty uses $XDG_DATA_HOME/caskfs/settings.db)
  database_path: ""

metrics:
  # Prometheus metrics endpoint
  enabled: false
  port: 9090
  path: /metrics

telemetry:
  # OpenTelemetry tracing (OTLP)
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0

# Grace period for locking vaults on shutdown
shutdown_timeout: 30s
`

// InitConfig writes the sample configuration to the default location and
// returns the path it was written to. It refuses to overwrite an existing
// file unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the sample configuration to an explicit path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
