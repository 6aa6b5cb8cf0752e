package vault

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/caskfs/caskfs/internal/shutdown"
)

// eventLog records the order of teardown steps across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

type fakeCrypto struct {
	mu     sync.Mutex
	erased int
	log    *eventLog
}

func (c *fakeCrypto) EraseSensitiveMaterial() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.erased++
	if c.log != nil {
		c.log.add("erase")
	}
}

func (c *fakeCrypto) erasedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.erased
}

type fakeEndpoint struct {
	mu        sync.Mutex
	running   bool
	startErr  error
	log       *eventLog
	mountName string
}

func (e *fakeEndpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.running = true
	return nil
}

func (e *fakeEndpoint) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	if e.log != nil {
		e.log.add("endpoint-stop")
	}
}

func (e *fakeEndpoint) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *fakeEndpoint) Address() *url.URL {
	return &url.URL{Scheme: "http", Host: "127.0.0.1:42427", Path: "/" + e.mountName + "/"}
}

type fakeFactory struct {
	created   int
	createErr error
	startErr  error
	log       *eventLog
}

func (f *fakeFactory) Create(path string, verify bool, cc CryptoContext, mountName string) (Endpoint, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &fakeEndpoint{startErr: f.startErr, log: f.log, mountName: mountName}, nil
}

type fakeHandle struct {
	m   *fakeMounter
	err error
}

func (h *fakeHandle) Unmount() error {
	if h.err != nil {
		return h.err
	}
	h.m.mu.Lock()
	h.m.active--
	h.m.mu.Unlock()
	if h.m.log != nil {
		h.m.log.add("unmount")
	}
	return nil
}

func (h *fakeHandle) Mountpoint() string { return "/mnt/fake" }

type fakeMounter struct {
	mu         sync.Mutex
	active     int
	mountErr   error
	unmountErr error
	log        *eventLog
}

func (m *fakeMounter) Mount(addr *url.URL, label string) (MountHandle, error) {
	if m.mountErr != nil {
		return nil, m.mountErr
	}
	m.mu.Lock()
	m.active++
	m.mu.Unlock()
	return &fakeHandle{m: m, err: m.unmountErr}, nil
}

func (m *fakeMounter) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// recordingShutdown tracks registrations and deregistrations but never runs
// tasks; drain-path tests use the real registry instead.
type recordingShutdown struct {
	registered   int
	deregistered int
	log          *eventLog
}

func (r *recordingShutdown) Register(name string, task func()) func() {
	r.registered++
	return func() {
		r.deregistered++
		if r.log != nil {
			r.log.add("deregister")
		}
	}
}

func alwaysHasKey(dir string) (bool, error) { return true, nil }

func newVaultDir(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return dir
}

func newTestVault(t *testing.T, name string) (*Vault, *fakeCrypto, *fakeFactory, *fakeMounter, *recordingShutdown) {
	t.Helper()
	log := &eventLog{}
	crypto := &fakeCrypto{log: log}
	factory := &fakeFactory{log: log}
	mounter := &fakeMounter{log: log}
	reg := &recordingShutdown{log: log}

	v, err := New(newVaultDir(t, name), Deps{
		Crypto:    crypto,
		Endpoints: factory,
		Mounter:   mounter,
		Shutdown:  reg,
		Probe:     alwaysHasKey,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v, crypto, factory, mounter, reg
}

func TestNewRejectsInvalidPaths(t *testing.T) {
	deps := Deps{
		Crypto:    &fakeCrypto{},
		Endpoints: &fakeFactory{},
		Mounter:   &fakeMounter{},
		Shutdown:  &recordingShutdown{},
		Probe:     alwaysHasKey,
	}

	t.Run("missing directory", func(t *testing.T) {
		if _, err := New(filepath.Join(t.TempDir(), "nope.cask"), deps); !errors.Is(err, ErrInvalidVaultPath) {
			t.Fatalf("expected ErrInvalidVaultPath, got %v", err)
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "plain")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			t.Fatal(err)
		}
		if _, err := New(dir, deps); !errors.Is(err, ErrInvalidVaultPath) {
			t.Fatalf("expected ErrInvalidVaultPath, got %v", err)
		}
	})

	t.Run("regular file", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "file.cask")
		if err := os.WriteFile(f, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := New(f, deps); !errors.Is(err, ErrInvalidVaultPath) {
			t.Fatalf("expected ErrInvalidVaultPath, got %v", err)
		}
	})
}

func TestNewRequiresAllCapabilities(t *testing.T) {
	dir := newVaultDir(t, "caps.cask")
	if _, err := New(dir, Deps{}); err == nil {
		t.Fatal("expected error for empty deps")
	}
}

func TestDefaultMountNameFromDirectory(t *testing.T) {
	v, _, _, _, _ := newTestVault(t, "My Tax Vault.cask")
	if got := v.MountName(); got != "My_Tax_Vault" {
		t.Fatalf("mount name = %q, want My_Tax_Vault", got)
	}
	if got := v.DisplayName(); got != "My Tax Vault" {
		t.Fatalf("display name = %q, want My Tax Vault", got)
	}
}

func TestEqualityIsByPathOnly(t *testing.T) {
	dir := newVaultDir(t, "same.cask")
	deps := Deps{
		Crypto:    &fakeCrypto{},
		Endpoints: &fakeFactory{},
		Mounter:   &fakeMounter{},
		Shutdown:  &recordingShutdown{},
		Probe:     alwaysHasKey,
	}

	a, err := New(dir, deps)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(dir, deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SetMountName("renamed"); err != nil {
		t.Fatal(err)
	}
	if err := a.StartServer(); err != nil {
		t.Fatal(err)
	}

	if !a.Equal(b) {
		t.Fatal("vaults with the same path must be equal regardless of name and state")
	}
	if a.Equal(nil) {
		t.Fatal("vault must not equal nil")
	}

	other, _, _, _, _ := newTestVault(t, "other.cask")
	if a.Equal(other) {
		t.Fatal("vaults with different paths must not be equal")
	}
	if a.Key() != dir {
		t.Fatalf("Key() = %q, want %q", a.Key(), dir)
	}
}

func TestStartServerIsIdempotent(t *testing.T) {
	v, _, factory, _, reg := newTestVault(t, "idem.cask")

	if err := v.StartServer(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := v.StartServer(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	if factory.created != 1 {
		t.Fatalf("endpoints created = %d, want 1", factory.created)
	}
	if reg.registered != 1 {
		t.Fatalf("shutdown registrations = %d, want 1", reg.registered)
	}
	if v.State() != StateServing {
		t.Fatalf("state = %v, want serving", v.State())
	}
}

func TestStopOnLockedVaultIsNoOp(t *testing.T) {
	v, crypto, _, _, _ := newTestVault(t, "noop.cask")

	v.StopServer()
	if got := crypto.erasedCount(); got != 0 {
		t.Fatalf("erase count = %d, want 0", got)
	}
	if v.State() != StateLocked {
		t.Fatalf("state = %v, want locked", v.State())
	}
}

func TestMountRequiresServing(t *testing.T) {
	v, _, _, mounter, _ := newTestVault(t, "early.cask")

	if err := v.Mount(); !errors.Is(err, ErrNotServing) {
		t.Fatalf("expected ErrNotServing, got %v", err)
	}
	if mounter.activeCount() != 0 {
		t.Fatal("no mount must be attempted on a locked vault")
	}
}

func TestFullLifecycle(t *testing.T) {
	v, crypto, _, mounter, _ := newTestVault(t, "life.cask")

	var transitions []State
	v.OnStateChange(func(_ *Vault, s State) {
		transitions = append(transitions, s)
	})

	if v.State() != StateLocked {
		t.Fatalf("initial state = %v, want locked", v.State())
	}

	if err := v.StartServer(); err != nil {
		t.Fatal(err)
	}
	if v.State() != StateServing {
		t.Fatalf("state after start = %v", v.State())
	}
	if v.ServerURL() == nil {
		t.Fatal("serving vault must report a server URL")
	}

	if err := v.Mount(); err != nil {
		t.Fatal(err)
	}
	if v.State() != StateMounted {
		t.Fatalf("state after mount = %v", v.State())
	}
	if err := v.Mount(); err != nil {
		t.Fatalf("mount must be idempotent: %v", err)
	}
	if got := v.Mountpoint(); got != "/mnt/fake" {
		t.Fatalf("mountpoint = %q", got)
	}

	if err := v.Unmount(); err != nil {
		t.Fatal(err)
	}
	if v.State() != StateServing {
		t.Fatalf("state after unmount = %v", v.State())
	}
	if err := v.Unmount(); err != nil {
		t.Fatalf("unmount of unmounted vault must be a no-op: %v", err)
	}

	v.StopServer()
	if v.State() != StateLocked {
		t.Fatalf("state after stop = %v", v.State())
	}
	if crypto.erasedCount() != 1 {
		t.Fatalf("erase count = %d, want 1", crypto.erasedCount())
	}
	if mounter.activeCount() != 0 {
		t.Fatalf("active mounts = %d, want 0", mounter.activeCount())
	}

	want := []State{StateServing, StateMounted, StateServing, StateLocked}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestStopWhileMountedTearsDownInOrder(t *testing.T) {
	v, crypto, factory, mounter, reg := newTestVault(t, "order.cask")
	log := crypto.log
	_ = factory
	_ = mounter

	if err := v.StartServer(); err != nil {
		t.Fatal(err)
	}
	if err := v.Mount(); err != nil {
		t.Fatal(err)
	}

	v.StopServer()

	want := []string{"deregister", "unmount", "endpoint-stop", "erase"}
	got := log.all()
	if len(got) != len(want) {
		t.Fatalf("teardown events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("teardown step %d = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
	if reg.deregistered != 1 {
		t.Fatalf("deregistrations = %d, want 1", reg.deregistered)
	}
}

func TestStopErasesKeysEvenWhenUnmountFails(t *testing.T) {
	v, crypto, _, mounter, _ := newTestVault(t, "stuck.cask")
	mounter.unmountErr = errors.New("device busy")

	if err := v.StartServer(); err != nil {
		t.Fatal(err)
	}
	if err := v.Mount(); err != nil {
		t.Fatal(err)
	}

	v.StopServer()
	if crypto.erasedCount() != 1 {
		t.Fatalf("erase count = %d, want 1 despite unmount failure", crypto.erasedCount())
	}
	if v.State() != StateLocked {
		t.Fatalf("state = %v, want locked", v.State())
	}
	if v.Unlocked() {
		t.Fatal("vault must read as locked after stop")
	}
	if got := v.Mountpoint(); got != "" {
		t.Fatalf("mountpoint = %q, want empty after stop", got)
	}

	// The stale handle must be gone: a fresh unlock and mount runs a new
	// mount command instead of no-opping on leftover state.
	mounter.unmountErr = nil
	if err := v.StartServer(); err != nil {
		t.Fatal(err)
	}
	if err := v.Mount(); err != nil {
		t.Fatal(err)
	}
	if mounter.activeCount() != 2 {
		t.Fatalf("active mounts = %d, want 2 (one dangling, one fresh)", mounter.activeCount())
	}
	if v.State() != StateMounted {
		t.Fatalf("state = %v, want mounted after remount", v.State())
	}
}

func TestListenersMayReadVaultState(t *testing.T) {
	v, _, _, _, _ := newTestVault(t, "observe.cask")

	var seen []string
	v.OnStateChange(func(lv *Vault, s State) {
		// Accessors take the vault mutex; listeners run after it is
		// released, so these reads must not deadlock.
		if lv.State() != s {
			t.Errorf("accessor state = %v, notified state = %v", lv.State(), s)
		}
		seen = append(seen, s.String()+"/"+lv.MountName())
	})

	if err := v.StartServer(); err != nil {
		t.Fatal(err)
	}
	if err := v.Mount(); err != nil {
		t.Fatal(err)
	}
	v.StopServer()

	want := []string{"serving/observe", "mounted/observe", "locked/observe"}
	if len(seen) != len(want) {
		t.Fatalf("notifications = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("notification %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestUnmountFailureKeepsHandleForRetry(t *testing.T) {
	v, _, _, mounter, _ := newTestVault(t, "retry.cask")
	mounter.unmountErr = errors.New("device busy")

	if err := v.StartServer(); err != nil {
		t.Fatal(err)
	}
	if err := v.Mount(); err != nil {
		t.Fatal(err)
	}

	if err := v.Unmount(); err == nil {
		t.Fatal("expected unmount error")
	}
	if v.State() != StateMounted {
		t.Fatalf("state = %v, want mounted after failed unmount", v.State())
	}

	// Clearing the fault lets the retry succeed with a fresh attempt
	mounter.unmountErr = nil
	if err := v.Mount(); err != nil {
		t.Fatalf("mount while mounted should still no-op: %v", err)
	}
}

func TestStartFailureLeavesVaultLocked(t *testing.T) {
	t.Run("create fails", func(t *testing.T) {
		v, _, factory, _, reg := newTestVault(t, "nocreate.cask")
		factory.createErr = errors.New("no port")

		if err := v.StartServer(); err == nil {
			t.Fatal("expected error")
		}
		if v.State() != StateLocked {
			t.Fatalf("state = %v, want locked", v.State())
		}
		if reg.registered != 0 {
			t.Fatal("failed start must not register a shutdown task")
		}
	})

	t.Run("start fails then retry succeeds", func(t *testing.T) {
		v, _, factory, _, _ := newTestVault(t, "nostart.cask")
		factory.startErr = errors.New("bind: address in use")

		if err := v.StartServer(); err == nil {
			t.Fatal("expected error")
		}
		if v.State() != StateLocked {
			t.Fatalf("state = %v, want locked", v.State())
		}

		factory.startErr = nil
		if err := v.StartServer(); err != nil {
			t.Fatalf("retry: %v", err)
		}
		if v.State() != StateServing {
			t.Fatalf("state = %v, want serving", v.State())
		}
	})
}

func TestSetMountNameRejectedWhileServing(t *testing.T) {
	v, _, _, _, _ := newTestVault(t, "busy.cask")

	if err := v.StartServer(); err != nil {
		t.Fatal(err)
	}
	if err := v.SetMountName("newname"); !errors.Is(err, ErrVaultServing) {
		t.Fatalf("expected ErrVaultServing, got %v", err)
	}

	v.StopServer()
	if err := v.SetMountName("newname"); err != nil {
		t.Fatalf("rename on locked vault: %v", err)
	}
	if v.MountName() != "newname" {
		t.Fatalf("mount name = %q", v.MountName())
	}
}

func TestSetMountNameRejectsEmptyResults(t *testing.T) {
	v, _, _, _, _ := newTestVault(t, "empty.cask")

	for _, name := range []string{"", "日本語", "★★★"} {
		if err := v.SetMountName(name); !errors.Is(err, ErrEmptyMountName) {
			t.Fatalf("SetMountName(%q): expected ErrEmptyMountName, got %v", name, err)
		}
	}
}

func TestShutdownDrainErasesExactlyOnce(t *testing.T) {
	reg := shutdown.NewRegistry()
	crypto := &fakeCrypto{}
	v, err := New(newVaultDir(t, "drain.cask"), Deps{
		Crypto:    crypto,
		Endpoints: &fakeFactory{},
		Mounter:   &fakeMounter{},
		Shutdown:  reg,
		Probe:     alwaysHasKey,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := v.StartServer(); err != nil {
		t.Fatal(err)
	}

	reg.Drain()
	if crypto.erasedCount() != 1 {
		t.Fatalf("erase count after drain = %d, want 1", crypto.erasedCount())
	}
	if v.State() != StateLocked {
		t.Fatalf("state after drain = %v, want locked", v.State())
	}

	// A manual stop after the drain must not erase again
	v.StopServer()
	if crypto.erasedCount() != 1 {
		t.Fatalf("erase count after stop = %d, want 1", crypto.erasedCount())
	}
}

func TestManualStopThenDrainErasesExactlyOnce(t *testing.T) {
	reg := shutdown.NewRegistry()
	crypto := &fakeCrypto{}
	v, err := New(newVaultDir(t, "stopfirst.cask"), Deps{
		Crypto:    crypto,
		Endpoints: &fakeFactory{},
		Mounter:   &fakeMounter{},
		Shutdown:  reg,
		Probe:     alwaysHasKey,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := v.StartServer(); err != nil {
		t.Fatal(err)
	}
	v.StopServer()
	reg.Drain()

	if crypto.erasedCount() != 1 {
		t.Fatalf("erase count = %d, want 1", crypto.erasedCount())
	}
}

func TestContainsMasterKeyUsesProbe(t *testing.T) {
	probeErr := errors.New("io failure")
	calls := 0
	dir := newVaultDir(t, "probe.cask")
	v, err := New(dir, Deps{
		Crypto:    &fakeCrypto{},
		Endpoints: &fakeFactory{},
		Mounter:   &fakeMounter{},
		Shutdown:  &recordingShutdown{},
		Probe: func(d string) (bool, error) {
			calls++
			if d != dir {
				t.Fatalf("probe dir = %q, want %q", d, dir)
			}
			if calls > 1 {
				return false, probeErr
			}
			return true, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ok, err := v.ContainsMasterKey()
	if err != nil || !ok {
		t.Fatalf("first probe = (%t, %v), want (true, nil)", ok, err)
	}
	if _, err := v.ContainsMasterKey(); !errors.Is(err, probeErr) {
		t.Fatalf("expected probe error, got %v", err)
	}
}
