// Package registry coordinates known vaults with their live runtime state.
// It joins the persistent vault registry (pkg/settings) with unlocked vault
// instances (pkg/vault) and provides the operations the control API and CLI
// are built on.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caskfs/caskfs/internal/logger"
	"github.com/caskfs/caskfs/pkg/crypto"
	"github.com/caskfs/caskfs/pkg/settings"
	"github.com/caskfs/caskfs/pkg/vault"
)

// Errors returned by the registry.
var (
	ErrVaultLocked   = errors.New("vault is locked")
	ErrVaultUnlocked = errors.New("vault is unlocked")
	ErrNoMasterKey   = errors.New("directory contains no master key file")
)

// Deps are the capabilities handed to each vault the registry unlocks.
type Deps struct {
	Endpoints vault.EndpointFactory
	Mounter   vault.Mounter
	Shutdown  vault.ShutdownRegistry
	Metrics   vault.Metrics
}

// VaultStatus is a point-in-time snapshot of a known vault.
type VaultStatus struct {
	Record     *settings.VaultRecord
	State      vault.State
	Unlocked   bool
	ServerURL  string
	Mountpoint string
}

// Registry manages all known vaults. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	store *settings.Store
	deps  Deps
	live  map[string]*vault.Vault // record ID -> unlocked vault
}

// New creates a registry over the given settings store.
func New(store *settings.Store, deps Deps) *Registry {
	return &Registry{
		store: store,
		deps:  deps,
		live:  make(map[string]*vault.Vault),
	}
}

// CreateVault creates a fresh vault directory with a new master key and
// registers it. The directory must not already exist.
func (r *Registry) CreateVault(path, passphrase string) (*settings.VaultRecord, error) {
	if !strings.HasSuffix(path, vault.Extension) {
		return nil, fmt.Errorf("%w: %s must end in %s", vault.ErrInvalidVaultPath, path, vault.Extension)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s already exists", vault.ErrInvalidVaultPath, path)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), vault.Extension)
	cryptor, err := crypto.CreateMasterKey(crypto.MasterKeyPath(path, name), passphrase)
	if err != nil {
		os.RemoveAll(path)
		return nil, err
	}
	// The cryptor is only needed at unlock time.
	cryptor.EraseSensitiveMaterial()

	rec, err := r.store.Add(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Vault created", "path", path, "id", rec.ID)
	return rec, nil
}

// AddVault registers an existing vault directory. The directory must contain
// a master key file.
func (r *Registry) AddVault(path string) (*settings.VaultRecord, error) {
	has, err := crypto.ContainsMasterKey(path)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrNoMasterKey, path)
	}
	rec, err := r.store.Add(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Vault registered", "path", path, "id", rec.ID)
	return rec, nil
}

// RemoveVault forgets a vault. The vault must be locked; its directory is
// left untouched.
func (r *Registry) RemoveVault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; ok {
		return ErrVaultUnlocked
	}
	return r.store.Remove(id)
}

// Unlock loads the master key with the given passphrase and starts serving
// the vault. Unlocking an already unlocked vault is a no-op.
func (r *Registry) Unlock(id, passphrase string) (*vault.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.live[id]; ok {
		return v, nil
	}

	rec, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}

	mkPath, err := crypto.FindMasterKey(rec.Path)
	if err != nil {
		return nil, err
	}
	cryptor, err := crypto.LoadMasterKey(mkPath, passphrase)
	if err != nil {
		return nil, err
	}

	v, err := vault.New(rec.Path, vault.Deps{
		Crypto:    cryptor,
		Endpoints: r.deps.Endpoints,
		Mounter:   r.deps.Mounter,
		Shutdown:  r.deps.Shutdown,
		Probe:     crypto.ContainsMasterKey,
		Metrics:   r.deps.Metrics,
	})
	if err != nil {
		cryptor.EraseSensitiveMaterial()
		return nil, err
	}

	if rec.MountName != "" {
		if err := v.SetMountName(rec.MountName); err != nil {
			cryptor.EraseSensitiveMaterial()
			return nil, err
		}
	}
	v.SetVerifyIntegrity(rec.VerifyIntegrity)

	if err := v.StartServer(); err != nil {
		cryptor.EraseSensitiveMaterial()
		return nil, err
	}

	r.live[id] = v
	return v, nil
}

// Lock stops serving a vault and erases its key material. Locking an already
// locked vault is a no-op.
func (r *Registry) Lock(id string) error {
	r.mu.Lock()
	v, ok := r.live[id]
	if ok {
		delete(r.live, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	v.StopServer()
	return nil
}

// Mount attaches an unlocked vault to the OS.
func (r *Registry) Mount(id string) error {
	v, err := r.liveVault(id)
	if err != nil {
		return err
	}
	return v.Mount()
}

// Unmount detaches a mounted vault. The vault keeps serving.
func (r *Registry) Unmount(id string) error {
	v, err := r.liveVault(id)
	if err != nil {
		return err
	}
	return v.Unmount()
}

// SetMountName updates a vault's mount name preference. The change is
// persisted; it is also applied to the live vault, which rejects renames
// while serving.
func (r *Registry) SetMountName(id, name string) error {
	normalized := vault.NormalizeMountName(name)
	if normalized == "" {
		return fmt.Errorf("%w: %q", vault.ErrEmptyMountName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.store.Get(id)
	if err != nil {
		return err
	}

	if v, ok := r.live[id]; ok {
		if err := v.SetMountName(normalized); err != nil {
			return err
		}
	}

	rec.MountName = normalized
	return r.store.Update(rec)
}

// SetVerifyIntegrity updates a vault's integrity verification preference.
func (r *Registry) SetVerifyIntegrity(id string, verify bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.store.Get(id)
	if err != nil {
		return err
	}

	if v, ok := r.live[id]; ok {
		v.SetVerifyIntegrity(verify)
	}

	rec.VerifyIntegrity = verify
	return r.store.Update(rec)
}

// Status returns a snapshot of a single vault.
func (r *Registry) Status(id string) (*VaultStatus, error) {
	rec, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	v := r.live[id]
	r.mu.RUnlock()
	return snapshot(rec, v), nil
}

// StatusByPath returns a snapshot of the vault registered at path.
func (r *Registry) StatusByPath(path string) (*VaultStatus, error) {
	rec, err := r.store.GetByPath(path)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	v := r.live[rec.ID]
	r.mu.RUnlock()
	return snapshot(rec, v), nil
}

// List returns snapshots of all known vaults.
func (r *Registry) List() ([]*VaultStatus, error) {
	records, err := r.store.List()
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]*VaultStatus, 0, len(records))
	for _, rec := range records {
		statuses = append(statuses, snapshot(rec, r.live[rec.ID]))
	}
	return statuses, nil
}

// LockAll locks every unlocked vault. Used on daemon shutdown paths that do
// not go through the shutdown registry.
func (r *Registry) LockAll() {
	r.mu.Lock()
	vaults := make([]*vault.Vault, 0, len(r.live))
	for id, v := range r.live {
		vaults = append(vaults, v)
		delete(r.live, id)
	}
	r.mu.Unlock()

	for _, v := range vaults {
		v.StopServer()
	}
}

func (r *Registry) liveVault(id string) (*vault.Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.live[id]
	if !ok {
		return nil, ErrVaultLocked
	}
	return v, nil
}

func snapshot(rec *settings.VaultRecord, v *vault.Vault) *VaultStatus {
	st := &VaultStatus{
		Record: rec,
		State:  vault.StateLocked,
	}
	if v == nil {
		return st
	}
	st.State = v.State()
	st.Unlocked = v.Unlocked()
	if u := v.ServerURL(); u != nil {
		st.ServerURL = u.String()
	}
	st.Mountpoint = v.Mountpoint()
	return st
}
