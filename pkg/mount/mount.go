// Package mount attaches vault serving endpoints to the OS filesystem by
// invoking the platform's WebDAV mount command.
//
// Mount commands are external processes: every failure is wrapped in a
// *CommandError carrying the command line and its combined output, so
// callers can log something actionable.
package mount

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caskfs/caskfs/internal/logger"
	"github.com/caskfs/caskfs/pkg/vault"
)

// DefaultTimeout bounds a single mount or unmount command.
const DefaultTimeout = 30 * time.Second

// CommandError reports a failed external mount/unmount command.
type CommandError struct {
	Cmd    string
	Output []byte
	Err    error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(string(e.Output))
	if out != "" {
		return fmt.Sprintf("mount command %q failed: %v: %s", e.Cmd, e.Err, out)
	}
	return fmt.Sprintf("mount command %q failed: %v", e.Cmd, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Runner executes an external command and returns its combined output.
// Injectable for tests; the default runs the real command.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Config holds mounter settings.
type Config struct {
	// BaseDir is where per-vault mountpoint directories are created.
	// Defaults to <os temp dir>/caskfs.
	BaseDir string

	// Timeout bounds each external command. Zero means DefaultTimeout.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseDir == "" {
		c.BaseDir = filepath.Join(os.TempDir(), "caskfs")
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Mounter mounts WebDAV addresses. It implements vault.Mounter.
type Mounter struct {
	cfg Config
	run Runner
}

// New returns a Mounter using the platform's mount commands.
func New(cfg Config) *Mounter {
	cfg.applyDefaults()
	return &Mounter{cfg: cfg, run: execRunner}
}

// NewWithRunner returns a Mounter with a custom command runner, for tests.
func NewWithRunner(cfg Config, run Runner) *Mounter {
	cfg.applyDefaults()
	return &Mounter{cfg: cfg, run: run}
}

// Mount attaches address to the OS under a mountpoint named after label.
// The mountpoint directory is created beneath BaseDir; on command failure it
// is removed again and no handle is returned.
func (m *Mounter) Mount(address *url.URL, label string) (vault.MountHandle, error) {
	if address == nil {
		return nil, fmt.Errorf("mount: nil address")
	}

	point := filepath.Join(m.cfg.BaseDir, label)
	if err := os.MkdirAll(point, 0o755); err != nil {
		return nil, fmt.Errorf("mount: creating mountpoint %s: %w", point, err)
	}

	name, args, err := mountCommand(runtime.GOOS, address, point, label)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()

	logger.Debug("running mount command", "command", name, "args", strings.Join(args, " "))
	if out, err := m.run(ctx, name, args...); err != nil {
		_ = os.Remove(point)
		return nil, &CommandError{Cmd: name + " " + strings.Join(args, " "), Output: out, Err: err}
	}

	logger.Info("mounted", "address", address.String(), "mountpoint", point)
	return &Handle{mounter: m, point: point, label: label}, nil
}

// mountCommand builds the platform mount invocation.
func mountCommand(goos string, address *url.URL, point, label string) (string, []string, error) {
	switch goos {
	case "darwin":
		// -v sets the volume name shown in Finder.
		return "mount_webdav", []string{"-v", label, address.String(), point}, nil
	case "linux":
		return "mount", []string{"-t", "davfs", "-o", "noexec", address.String(), point}, nil
	default:
		return "", nil, fmt.Errorf("mount: unsupported platform %s", goos)
	}
}

// unmountCommand builds the platform unmount invocation.
func unmountCommand(goos, point string) (string, []string, error) {
	switch goos {
	case "darwin", "linux":
		return "umount", []string{point}, nil
	default:
		return "", nil, fmt.Errorf("mount: unsupported platform %s", goos)
	}
}

// Handle is an established OS mount. It implements vault.MountHandle.
type Handle struct {
	mounter *Mounter
	point   string
	label   string
}

// Mountpoint returns the directory the mount is attached to.
func (h *Handle) Mountpoint() string {
	return h.point
}

// Unmount releases the mount and removes the mountpoint directory. On
// command failure the mount is assumed to still be attached and the caller
// may retry.
func (h *Handle) Unmount() error {
	name, args, err := unmountCommand(runtime.GOOS, h.point)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.mounter.cfg.Timeout)
	defer cancel()

	if out, err := h.mounter.run(ctx, name, args...); err != nil {
		return &CommandError{Cmd: name + " " + strings.Join(args, " "), Output: out, Err: err}
	}
	_ = os.Remove(h.point)
	logger.Info("unmounted", "mountpoint", h.point)
	return nil
}
