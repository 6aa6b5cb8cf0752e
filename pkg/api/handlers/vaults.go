package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/caskfs/caskfs/internal/telemetry"
	"github.com/caskfs/caskfs/pkg/crypto"
	"github.com/caskfs/caskfs/pkg/registry"
	"github.com/caskfs/caskfs/pkg/settings"
	"github.com/caskfs/caskfs/pkg/vault"
)

// VaultsHandler handles vault management endpoints.
type VaultsHandler struct {
	registry *registry.Registry
}

// NewVaultsHandler creates a new vaults handler.
func NewVaultsHandler(registry *registry.Registry) *VaultsHandler {
	return &VaultsHandler{registry: registry}
}

// VaultResponse is the wire representation of a vault snapshot.
type VaultResponse struct {
	ID              string `json:"id"`
	Path            string `json:"path"`
	MountName       string `json:"mount_name,omitempty"`
	VerifyIntegrity bool   `json:"verify_integrity"`
	State           string `json:"state"`
	Unlocked        bool   `json:"unlocked"`
	ServerURL       string `json:"server_url,omitempty"`
	Mountpoint      string `json:"mountpoint,omitempty"`
}

// AddVaultRequest is the request to register or create a vault.
type AddVaultRequest struct {
	Path       string `json:"path"`
	Passphrase string `json:"passphrase,omitempty"` // only for create
}

// UnlockRequest carries the passphrase for an unlock.
type UnlockRequest struct {
	Passphrase string `json:"passphrase"`
}

// MountNameRequest updates a vault's mount name.
type MountNameRequest struct {
	MountName string `json:"mount_name"`
}

// VerifyIntegrityRequest updates a vault's integrity verification flag.
type VerifyIntegrityRequest struct {
	VerifyIntegrity bool `json:"verify_integrity"`
}

func vaultResponse(st *registry.VaultStatus) VaultResponse {
	return VaultResponse{
		ID:              st.Record.ID,
		Path:            st.Record.Path,
		MountName:       st.Record.MountName,
		VerifyIntegrity: st.Record.VerifyIntegrity,
		State:           st.State.String(),
		Unlocked:        st.Unlocked,
		ServerURL:       st.ServerURL,
		Mountpoint:      st.Mountpoint,
	}
}

// writeVaultError maps domain errors to HTTP responses.
func writeVaultError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settings.ErrVaultNotFound):
		NotFound(w, "Vault not found")
	case errors.Is(err, settings.ErrVaultAlreadyExists):
		Conflict(w, "Vault already registered")
	case errors.Is(err, crypto.ErrWrongPassphrase):
		Unauthorized(w, "Wrong passphrase")
	case errors.Is(err, registry.ErrVaultLocked):
		Conflict(w, "Vault is locked")
	case errors.Is(err, registry.ErrVaultUnlocked):
		Conflict(w, "Vault is unlocked; lock it first")
	case errors.Is(err, vault.ErrVaultServing),
		errors.Is(err, vault.ErrNotServing):
		Conflict(w, err.Error())
	case errors.Is(err, vault.ErrInvalidVaultPath),
		errors.Is(err, vault.ErrEmptyMountName),
		errors.Is(err, registry.ErrNoMasterKey):
		BadRequest(w, err.Error())
	default:
		InternalServerError(w, err.Error())
	}
}

// List handles GET /api/v1/vaults.
func (h *VaultsHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.registry.List()
	if err != nil {
		writeVaultError(w, err)
		return
	}
	out := make([]VaultResponse, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, vaultResponse(st))
	}
	OK(w, out)
}

// Add handles POST /api/v1/vaults - register an existing vault directory.
func (h *VaultsHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddVaultRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		BadRequest(w, "path is required")
		return
	}

	rec, err := h.registry.AddVault(req.Path)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	st, err := h.registry.Status(rec.ID)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	Created(w, vaultResponse(st))
}

// Create handles POST /api/v1/vaults/create - create a fresh vault.
func (h *VaultsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req AddVaultRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Path == "" || req.Passphrase == "" {
		BadRequest(w, "path and passphrase are required")
		return
	}

	var rec *settings.VaultRecord
	err := telemetry.TraceVaultOp(r.Context(), telemetry.SpanVaultCreate, req.Path, func(context.Context) error {
		var err error
		rec, err = h.registry.CreateVault(req.Path, req.Passphrase)
		return err
	})
	if err != nil {
		writeVaultError(w, err)
		return
	}
	st, err := h.registry.Status(rec.ID)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	Created(w, vaultResponse(st))
}

// Get handles GET /api/v1/vaults/{id}.
func (h *VaultsHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.registry.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeVaultError(w, err)
		return
	}
	OK(w, vaultResponse(st))
}

// Remove handles DELETE /api/v1/vaults/{id}.
func (h *VaultsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.RemoveVault(chi.URLParam(r, "id")); err != nil {
		writeVaultError(w, err)
		return
	}
	OK(w, nil)
}

// Unlock handles POST /api/v1/vaults/{id}/unlock.
func (h *VaultsHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UnlockRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Passphrase == "" {
		BadRequest(w, "passphrase is required")
		return
	}

	st, err := h.registry.Status(id)
	if err != nil {
		writeVaultError(w, err)
		return
	}

	err = telemetry.TraceVaultOp(r.Context(), telemetry.SpanVaultUnlock, id, func(context.Context) error {
		_, err := h.registry.Unlock(id, req.Passphrase)
		return err
	}, telemetry.WithVault(st.Record.ID, st.Record.Path, st.Record.MountName))
	if err != nil {
		writeVaultError(w, err)
		return
	}
	h.respondStatus(w, id)
}

// Lock handles POST /api/v1/vaults/{id}/lock.
func (h *VaultsHandler) Lock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := telemetry.TraceVaultOp(r.Context(), telemetry.SpanVaultLock, id, func(context.Context) error {
		return h.registry.Lock(id)
	})
	if err != nil {
		writeVaultError(w, err)
		return
	}
	h.respondStatus(w, id)
}

// Mount handles POST /api/v1/vaults/{id}/mount.
func (h *VaultsHandler) Mount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := telemetry.TraceVaultOp(r.Context(), telemetry.SpanVaultMount, id, func(context.Context) error {
		return h.registry.Mount(id)
	})
	if err != nil {
		writeVaultError(w, err)
		return
	}
	h.respondStatus(w, id)
}

// Unmount handles POST /api/v1/vaults/{id}/unmount.
func (h *VaultsHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := telemetry.TraceVaultOp(r.Context(), telemetry.SpanVaultUnmount, id, func(context.Context) error {
		return h.registry.Unmount(id)
	})
	if err != nil {
		writeVaultError(w, err)
		return
	}
	h.respondStatus(w, id)
}

// SetMountName handles PUT /api/v1/vaults/{id}/mountname.
func (h *VaultsHandler) SetMountName(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req MountNameRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.registry.SetMountName(id, req.MountName); err != nil {
		writeVaultError(w, err)
		return
	}
	h.respondStatus(w, id)
}

// SetVerifyIntegrity handles PUT /api/v1/vaults/{id}/verify.
func (h *VaultsHandler) SetVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req VerifyIntegrityRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.registry.SetVerifyIntegrity(id, req.VerifyIntegrity); err != nil {
		writeVaultError(w, err)
		return
	}
	h.respondStatus(w, id)
}

func (h *VaultsHandler) respondStatus(w http.ResponseWriter, id string) {
	st, err := h.registry.Status(id)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	OK(w, vaultResponse(st))
}
