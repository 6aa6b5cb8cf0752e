package mount

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type call struct {
	name string
	args []string
}

// fakeRunner records invocations and returns canned results.
type fakeRunner struct {
	calls  []call
	output []byte
	err    error
}

func (r *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	return r.output, r.err
}

func testAddress(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("http://127.0.0.1:42427/personal/")
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestMountCreatesMountpointAndRunsCommand(t *testing.T) {
	base := t.TempDir()
	runner := &fakeRunner{}
	m := NewWithRunner(Config{BaseDir: base}, runner.run)

	handle, err := m.Mount(testAddress(t), "personal")
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	point := filepath.Join(base, "personal")
	if got := handle.(*Handle).Mountpoint(); got != point {
		t.Fatalf("mountpoint = %q, want %q", got, point)
	}
	if _, err := os.Stat(point); err != nil {
		t.Fatalf("mountpoint directory missing: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("%d commands run, want 1", len(runner.calls))
	}

	joined := runner.calls[0].name + " " + strings.Join(runner.calls[0].args, " ")
	if !strings.Contains(joined, "http://127.0.0.1:42427/personal/") {
		t.Fatalf("command %q does not mention the endpoint address", joined)
	}
	if !strings.Contains(joined, point) {
		t.Fatalf("command %q does not mention the mountpoint", joined)
	}
}

func TestMountFailureCleansUpMountpoint(t *testing.T) {
	base := t.TempDir()
	runner := &fakeRunner{output: []byte("mount_webdav: server not responding"), err: errors.New("exit status 1")}
	m := NewWithRunner(Config{BaseDir: base}, runner.run)

	_, err := m.Mount(testAddress(t), "broken")
	if err == nil {
		t.Fatal("expected error")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %T: %v", err, err)
	}
	if !strings.Contains(cmdErr.Error(), "server not responding") {
		t.Fatalf("error %q does not carry command output", cmdErr.Error())
	}

	if _, err := os.Stat(filepath.Join(base, "broken")); !os.IsNotExist(err) {
		t.Fatal("failed mount must remove its mountpoint directory")
	}
}

func TestMountRejectsNilAddress(t *testing.T) {
	m := NewWithRunner(Config{BaseDir: t.TempDir()}, (&fakeRunner{}).run)
	if _, err := m.Mount(nil, "x"); err == nil {
		t.Fatal("expected error for nil address")
	}
}

func TestUnmountRunsCommandAndRemovesMountpoint(t *testing.T) {
	base := t.TempDir()
	runner := &fakeRunner{}
	m := NewWithRunner(Config{BaseDir: base}, runner.run)

	handle, err := m.Mount(testAddress(t), "personal")
	if err != nil {
		t.Fatal(err)
	}
	if err := handle.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("%d commands run, want 2", len(runner.calls))
	}
	if _, err := os.Stat(filepath.Join(base, "personal")); !os.IsNotExist(err) {
		t.Fatal("unmount must remove the mountpoint directory")
	}
}

func TestUnmountFailureKeepsMountpoint(t *testing.T) {
	base := t.TempDir()
	runner := &fakeRunner{}
	m := NewWithRunner(Config{BaseDir: base}, runner.run)

	handle, err := m.Mount(testAddress(t), "busy")
	if err != nil {
		t.Fatal(err)
	}

	runner.output = []byte("umount: target is busy")
	runner.err = errors.New("exit status 32")
	err = handle.Unmount()

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(base, "busy")); statErr != nil {
		t.Fatal("failed unmount must keep the mountpoint directory for retry")
	}

	// Retry after the device frees up
	runner.output = nil
	runner.err = nil
	if err := handle.Unmount(); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestCommandErrorFormatting(t *testing.T) {
	withOutput := &CommandError{Cmd: "umount /mnt/x", Output: []byte("target is busy\n"), Err: errors.New("exit status 32")}
	if got := withOutput.Error(); !strings.Contains(got, "target is busy") || !strings.Contains(got, "umount /mnt/x") {
		t.Fatalf("unexpected error string %q", got)
	}

	bare := &CommandError{Cmd: "umount /mnt/x", Err: errors.New("exit status 32")}
	if got := bare.Error(); strings.Contains(got, ": $") || !strings.Contains(got, "exit status 32") {
		t.Fatalf("unexpected error string %q", got)
	}

	var target *CommandError
	wrapped := errors.New("exit status 1")
	if err := (&CommandError{Cmd: "x", Err: wrapped}); !errors.As(error(err), &target) || !errors.Is(err, wrapped) {
		t.Fatal("CommandError must unwrap to the underlying error")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	if cfg.Timeout != DefaultTimeout {
		t.Fatalf("timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	if cfg.BaseDir == "" {
		t.Fatal("base dir default must not be empty")
	}

	keep := Config{BaseDir: "/custom", Timeout: time.Second}
	keep.applyDefaults()
	if keep.BaseDir != "/custom" || keep.Timeout != time.Second {
		t.Fatal("explicit settings must be preserved")
	}
}
