// Package vault implements the lifecycle orchestration of an encrypted
// storage container: a directory whose contents are served decrypted over a
// loopback endpoint and attached to the OS as a mount.
//
// The package owns no cryptography, no wire protocol and no mount commands.
// Those arrive as capabilities (CryptoContext, EndpointFactory, Mounter,
// ShutdownRegistry) injected at construction; the vault's job is to sequence
// them so they are started, stopped and torn down in a safe, idempotent,
// race-free order, with key material erased on every exit path.
package vault

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caskfs/caskfs/internal/logger"
)

// Extension is the reserved suffix a vault directory name must carry.
const Extension = ".cask"

// Deps are the external capabilities a Vault coordinates. All fields except
// Metrics are required.
type Deps struct {
	Crypto    CryptoContext
	Endpoints EndpointFactory
	Mounter   Mounter
	Shutdown  ShutdownRegistry
	Probe     MasterKeyProbe

	// Metrics is optional; nil disables instrumentation.
	Metrics Metrics
}

func (d *Deps) validate() error {
	switch {
	case d.Crypto == nil:
		return fmt.Errorf("vault: missing crypto context")
	case d.Endpoints == nil:
		return fmt.Errorf("vault: missing endpoint factory")
	case d.Mounter == nil:
		return fmt.Errorf("vault: missing mounter")
	case d.Shutdown == nil:
		return fmt.Errorf("vault: missing shutdown registry")
	case d.Probe == nil:
		return fmt.Errorf("vault: missing master key probe")
	}
	return nil
}

// Vault orchestrates one encrypted directory through the
// Locked -> Serving -> Mounted lifecycle.
//
// A Vault is safe for concurrent use from multiple goroutines: lifecycle
// operations serialize on a per-vault mutex, so two callers can never race to
// create duplicate endpoints or tear down state another caller is still
// initializing. Lifecycle operations block on process and network I/O;
// latency-sensitive callers should dispatch them to a worker goroutine.
type Vault struct {
	path string
	deps Deps

	// mu guards every field below and serializes all lifecycle transitions.
	mu              sync.Mutex
	mountName       string
	verifyIntegrity bool
	endpoint        Endpoint
	mountHandle     MountHandle
	deregister      func()

	listenerMu sync.Mutex
	listeners  []StateListener
}

// New constructs a Vault for the directory at path.
//
// The path must name an existing directory whose base name ends in Extension;
// anything else fails fast with ErrInvalidVaultPath and no Vault is created.
// The mount name defaults to the normalized directory name (without the
// extension) when that normalizes to something non-empty; otherwise it stays
// unset until SetMountName is called.
func New(path string, deps Deps) (*Vault, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || !strings.HasSuffix(filepath.Base(path), Extension) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidVaultPath, path)
	}

	v := &Vault{path: path, deps: deps}
	v.mountName = NormalizeMountName(v.DisplayName())
	return v, nil
}

// Path returns the vault's ciphertext directory. It never changes after
// construction and is the vault's sole identity.
func (v *Vault) Path() string {
	return v.path
}

// DisplayName is the directory name without preceding path components and
// without the vault extension.
func (v *Vault) DisplayName() string {
	return strings.TrimSuffix(filepath.Base(v.path), Extension)
}

// Equal reports whether two vaults refer to the same directory. Mount name
// and lock state never participate in identity.
func (v *Vault) Equal(other *Vault) bool {
	return other != nil && v.path == other.path
}

// Key returns the value vault collections should key on.
func (v *Vault) Key() string {
	return v.path
}

// MountName returns the current normalized mount label, or "" if unset.
func (v *Vault) MountName() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mountName
}

// SetMountName normalizes name and replaces the vault's mount label.
//
// It fails with ErrEmptyMountName when nothing survives normalization and
// with ErrVaultServing while a serving endpoint is active: a new label has no
// effect on an already-bound endpoint, so the change is rejected rather than
// silently deferred.
func (v *Vault) SetMountName(name string) error {
	normalized := NormalizeMountName(name)
	if normalized == "" {
		return fmt.Errorf("%w: %q", ErrEmptyMountName, name)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.endpoint != nil {
		return fmt.Errorf("%w: cannot rename mount %q", ErrVaultServing, v.mountName)
	}
	v.mountName = normalized
	return nil
}

// VerifyIntegrity reports whether served files are integrity-checked.
func (v *Vault) VerifyIntegrity() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.verifyIntegrity
}

// SetVerifyIntegrity toggles integrity verification. The flag is read once,
// at serving-endpoint creation, so changes take effect on the next unlock.
func (v *Vault) SetVerifyIntegrity(verify bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verifyIntegrity = verify
}

// Crypto returns the vault's crypto context.
func (v *Vault) Crypto() CryptoContext {
	return v.deps.Crypto
}

// Unlocked reports whether a serving endpoint is currently active. This is
// the single source of truth for the vault's lock state.
func (v *Vault) Unlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unlockedLocked()
}

func (v *Vault) unlockedLocked() bool {
	return v.endpoint != nil && v.endpoint.IsRunning()
}

// ServerURL returns the address of the serving endpoint, or nil when the
// vault is locked.
func (v *Vault) ServerURL() *url.URL {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlockedLocked() {
		return nil
	}
	return v.endpoint.Address()
}

// Mountpoint returns the directory the vault is attached to, or empty when
// the vault is not mounted or the mount backend does not report one.
func (v *Vault) Mountpoint() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if h, ok := v.mountHandle.(interface{ Mountpoint() string }); ok {
		return h.Mountpoint()
	}
	return ""
}

// State derives the lifecycle state from held resources.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *Vault) stateLocked() State {
	switch {
	case v.mountHandle != nil:
		return StateMounted
	case v.unlockedLocked():
		return StateServing
	default:
		return StateLocked
	}
}

// OnStateChange registers a listener invoked after every completed state
// transition. See StateListener for the reentrancy contract.
func (v *Vault) OnStateChange(l StateListener) {
	v.listenerMu.Lock()
	defer v.listenerMu.Unlock()
	v.listeners = append(v.listeners, l)
}

// notify fires listeners with the state captured at the end of a transition.
// It runs after v.mu has been released so listeners may read the vault's
// accessors without deadlocking.
func (v *Vault) notify(s State) {
	v.listenerMu.Lock()
	ls := make([]StateListener, len(v.listeners))
	copy(ls, v.listeners)
	v.listenerMu.Unlock()
	for _, l := range ls {
		l(v, s)
	}
}

// StartServer creates and starts a serving endpoint for the vault.
//
// Calling it while an endpoint is already running is a success no-op: the
// operation is idempotent and exactly one endpoint ever exists per vault.
// On success the vault registers a stop task with the shutdown registry so
// key material is erased even on abrupt process termination. On failure the
// vault stays Locked with no registration and the caller may retry.
func (v *Vault) StartServer() error {
	v.mu.Lock()

	if v.unlockedLocked() {
		v.mu.Unlock()
		logger.Debug("serving endpoint already running", "vault", v.path)
		return nil
	}

	start := time.Now()
	endpoint, err := v.deps.Endpoints.Create(v.path, v.verifyIntegrity, v.deps.Crypto, v.mountName)
	if err != nil {
		observeStart(v.deps.Metrics, start, false)
		v.mu.Unlock()
		return fmt.Errorf("creating serving endpoint for %s: %w", v.path, err)
	}
	if err := endpoint.Start(); err != nil {
		observeStart(v.deps.Metrics, start, false)
		v.mu.Unlock()
		logger.Warn("serving endpoint failed to start", "vault", v.path, "error", err)
		return fmt.Errorf("starting serving endpoint for %s: %w", v.path, err)
	}

	v.endpoint = endpoint
	v.deregister = v.deps.Shutdown.Register("vault "+v.path, v.shutdownStop)

	observeStart(v.deps.Metrics, start, true)
	setUnlocked(v.deps.Metrics, v.mountName, true)
	logger.Info("vault unlocked", "vault", v.path, "address", endpoint.Address().String())
	st := v.stateLocked()
	v.mu.Unlock()
	v.notify(st)
	return nil
}

// StopServer tears an active vault down. On a locked vault it is a no-op.
//
// The teardown order is mandatory: deregister the shutdown task first (so
// process-exit cleanup cannot re-enter a stop already in progress), unmount
// (failures logged and swallowed; a dangling mount pointing at a dead
// endpoint would be worse than a failed unmount attempt), stop the endpoint,
// then erase the crypto context. Key material is erased on every path,
// whatever the unmount outcome, and the vault always ends up Locked with no
// mount handle held.
func (v *Vault) StopServer() {
	v.mu.Lock()
	stopped := v.stopLocked()
	st := v.stateLocked()
	v.mu.Unlock()
	if stopped {
		v.notify(st)
	}
}

// shutdownStop is the task handed to the shutdown registry. It shares the
// vault mutex with StopServer, so a drain racing a manual stop settles on
// whichever runs second seeing an already-locked vault.
func (v *Vault) shutdownStop() {
	v.mu.Lock()
	stopped := v.stopLocked()
	st := v.stateLocked()
	v.mu.Unlock()
	if stopped {
		v.notify(st)
	}
}

func (v *Vault) stopLocked() bool {
	if !v.unlockedLocked() {
		return false
	}

	start := time.Now()
	if v.deregister != nil {
		v.deregister()
		v.deregister = nil
	}
	if err := v.unmountLocked(); err != nil {
		logger.Warn("unmount during stop failed", "vault", v.path, "error", err)
		// The OS mount may linger, but a locked vault never holds mount
		// state; the handle would point at a stopped endpoint anyway.
		v.mountHandle = nil
	}
	v.endpoint.Stop()
	v.deps.Crypto.EraseSensitiveMaterial()
	v.endpoint = nil

	observeStop(v.deps.Metrics, start)
	setUnlocked(v.deps.Metrics, v.mountName, false)
	logger.Info("vault locked", "vault", v.path)
	return true
}

// Mount attaches the running serving endpoint to the OS filesystem under the
// vault's mount label.
//
// It fails with ErrNotServing when no endpoint is running, without side
// effects. A mount-command failure is logged and returned; no partial state
// is retained and the caller may retry.
func (v *Vault) Mount() error {
	v.mu.Lock()

	if !v.unlockedLocked() {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotServing, v.path)
	}
	if v.mountHandle != nil {
		v.mu.Unlock()
		logger.Debug("vault already mounted", "vault", v.path)
		return nil
	}

	start := time.Now()
	handle, err := v.deps.Mounter.Mount(v.endpoint.Address(), v.mountName)
	if err != nil {
		observeMount(v.deps.Metrics, start, false)
		v.mu.Unlock()
		logger.Warn("mount failed", "vault", v.path, "mount_name", v.mountName, "error", err)
		return fmt.Errorf("mounting %s: %w", v.path, err)
	}

	v.mountHandle = handle
	observeMount(v.deps.Metrics, start, true)
	logger.Info("vault mounted", "vault", v.path, "mount_name", v.mountName)
	st := v.stateLocked()
	v.mu.Unlock()
	v.notify(st)
	return nil
}

// Unmount releases the OS mount. With no mount held it is a success no-op.
// On failure the handle stays in place so the caller can retry.
func (v *Vault) Unmount() error {
	v.mu.Lock()

	if v.mountHandle == nil {
		v.mu.Unlock()
		return nil
	}
	if err := v.unmountLocked(); err != nil {
		v.mu.Unlock()
		return fmt.Errorf("unmounting %s: %w", v.path, err)
	}
	st := v.stateLocked()
	v.mu.Unlock()
	v.notify(st)
	return nil
}

func (v *Vault) unmountLocked() error {
	if v.mountHandle == nil {
		return nil
	}

	start := time.Now()
	if err := v.mountHandle.Unmount(); err != nil {
		observeUnmount(v.deps.Metrics, start, false)
		logger.Warn("unmount failed", "vault", v.path, "mount_name", v.mountName, "error", err)
		return err
	}
	v.mountHandle = nil
	observeUnmount(v.deps.Metrics, start, true)
	logger.Info("vault unmounted", "vault", v.path, "mount_name", v.mountName)
	return nil
}

// ContainsMasterKey probes the vault directory for recognizable key-material
// files. It changes no state; I/O failures propagate to the caller.
func (v *Vault) ContainsMasterKey() (bool, error) {
	return v.deps.Probe(v.path)
}
