package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/caskfs/caskfs/internal/logger"
	"github.com/caskfs/caskfs/internal/shutdown"
	"github.com/caskfs/caskfs/internal/telemetry"
	"github.com/caskfs/caskfs/pkg/adapter/webdav"
	"github.com/caskfs/caskfs/pkg/api"
	"github.com/caskfs/caskfs/pkg/config"
	"github.com/caskfs/caskfs/pkg/metrics"
	"github.com/caskfs/caskfs/pkg/metrics/prometheus"
	"github.com/caskfs/caskfs/pkg/mount"
	"github.com/caskfs/caskfs/pkg/registry"
	"github.com/caskfs/caskfs/pkg/settings"
	"github.com/spf13/cobra"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the CaskFS daemon",
	Long: `Start the CaskFS daemon with the specified configuration.

By default, the daemon runs in the background. Use --foreground to run in
the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/caskfs/config.yaml.

Examples:
  # Start in background (default)
  caskfs start

  # Start in foreground
  caskfs start --foreground

  # Start with custom config file
  caskfs start --config /etc/caskfs/config.yaml

  # Start with environment variable overrides
  CASKFS_LOGGING_LEVEL=DEBUG caskfs start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/caskfs/caskfs.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/caskfs/caskfs.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "caskfs",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	fmt.Println("CaskFS - Encrypted vaults served over WebDAV")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	// Initialize metrics before anything that records them
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path)
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Open the vault registry database
	dbPath := cfg.Settings.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.GetDefaultDataDir(), "settings.db")
	}
	store, err := settings.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open settings database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("settings database close error", "error", err)
		}
	}()
	logger.Info("Settings database opened", "path", dbPath)

	// Wire up the vault registry
	shutdownReg := shutdown.NewRegistry()
	reg := registry.New(store, registry.Deps{
		Endpoints: webdav.NewFactory(webdav.Config{
			BindHost: cfg.WebDAV.BindHost,
			Port:     cfg.WebDAV.Port,
		}),
		Mounter: mount.New(mount.Config{
			BaseDir: cfg.Mount.BaseDir,
			Timeout: cfg.Mount.Timeout,
		}),
		Shutdown: shutdownReg,
		Metrics:  prometheus.NewVaultMetrics(),
	})

	vaults, err := reg.List()
	if err != nil {
		return fmt.Errorf("failed to list vaults: %w", err)
	}
	logger.Info("Vault registry initialized", "vaults", len(vaults))

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Start metrics server in background (if enabled)
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Start API server in background
	apiServer := api.NewServer(api.Config{
		Port:         cfg.API.Port,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}, reg)
	logger.Info("API server configured", "port", cfg.API.Port)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Daemon is running. Press Ctrl+C to stop.")

	var serverErr error
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		serverErr = <-serverDone

	case serverErr = <-serverDone:
		signal.Stop(sigChan)
	}

	// Lock everything still unlocked, then run remaining cleanup tasks.
	// The drain covers key erasure for vaults whose Lock never ran.
	reg.LockAll()
	shutdownReg.Drain()

	if serverErr != nil {
		logger.Error("Server error", "error", serverErr)
		return serverErr
	}
	logger.Info("Daemon stopped gracefully")
	return nil
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Set default PID file if not specified
	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("caskfs is already running (PID %d)\nUse 'caskfs stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	// Set default log file if not specified
	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	daemon := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	daemon.Stdout = logFileHandle
	daemon.Stderr = logFileHandle

	// Detach from parent process
	daemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := daemon.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logFileHandle.Close()

	fmt.Printf("caskfs started in background (PID %d)\n", daemon.Process.Pid)
	fmt.Printf("  Logs: %s\n", logPath)
	fmt.Printf("  Stop: caskfs stop\n")

	return nil
}
