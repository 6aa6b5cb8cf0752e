package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/caskfs/caskfs/pkg/api"
	"github.com/caskfs/caskfs/pkg/api/handlers"
	"github.com/caskfs/caskfs/pkg/registry"
	"github.com/caskfs/caskfs/pkg/settings"
	"github.com/caskfs/caskfs/pkg/vault"
)

type fakeEndpoint struct{ running bool }

func (e *fakeEndpoint) Start() error    { e.running = true; return nil }
func (e *fakeEndpoint) Stop()           { e.running = false }
func (e *fakeEndpoint) IsRunning() bool { return e.running }
func (e *fakeEndpoint) Address() *url.URL {
	return &url.URL{Scheme: "http", Host: "127.0.0.1:42424", Path: "/v/"}
}

type fakeFactory struct{}

func (fakeFactory) Create(path string, verify bool, cc vault.CryptoContext, mountName string) (vault.Endpoint, error) {
	return &fakeEndpoint{}, nil
}

type fakeHandle struct{}

func (fakeHandle) Unmount() error     { return nil }
func (fakeHandle) Mountpoint() string { return "/mnt/test" }

type fakeMounter struct{}

func (fakeMounter) Mount(addr *url.URL, label string) (vault.MountHandle, error) {
	return fakeHandle{}, nil
}

type fakeShutdown struct{}

func (fakeShutdown) Register(name string, task func()) func() { return func() {} }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	reg := registry.New(store, registry.Deps{
		Endpoints: fakeFactory{},
		Mounter:   fakeMounter{},
		Shutdown:  fakeShutdown{},
	})

	srv := httptest.NewServer(api.NewRouter(reg))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, handlers.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var wrapper handlers.Response
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, wrapper
}

func decodeVault(t *testing.T, data any) handlers.VaultResponse {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	var v handlers.VaultResponse
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK || body.Status != "healthy" {
		t.Fatalf("health = %d %+v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/health/ready", nil)
	if resp.StatusCode != http.StatusOK || body.Status != "healthy" {
		t.Fatalf("ready = %d %+v", resp.StatusCode, body)
	}
}

func TestVaultLifecycleOverAPI(t *testing.T) {
	srv := newTestServer(t)
	path := filepath.Join(t.TempDir(), "work.cask")

	// Create
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/vaults/create",
		handlers.AddVaultRequest{Path: path, Passphrase: "pw"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d %+v", resp.StatusCode, body)
	}
	created := decodeVault(t, body.Data)
	if created.ID == "" || created.State != "locked" {
		t.Fatalf("created vault = %+v", created)
	}
	base := srv.URL + "/api/v1/vaults/" + created.ID

	// Duplicate registration conflicts.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/vaults",
		handlers.AddVaultRequest{Path: path})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate add = %d", resp.StatusCode)
	}

	// Wrong passphrase.
	resp, _ = doJSON(t, http.MethodPost, base+"/unlock", handlers.UnlockRequest{Passphrase: "nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong passphrase = %d", resp.StatusCode)
	}

	// Mount before unlock conflicts.
	resp, _ = doJSON(t, http.MethodPost, base+"/mount", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("mount while locked = %d", resp.StatusCode)
	}

	// Unlock.
	resp, body = doJSON(t, http.MethodPost, base+"/unlock", handlers.UnlockRequest{Passphrase: "pw"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unlock = %d %+v", resp.StatusCode, body)
	}
	v := decodeVault(t, body.Data)
	if v.State != "serving" || !v.Unlocked || v.ServerURL == "" {
		t.Fatalf("unlocked vault = %+v", v)
	}

	// Mount.
	resp, body = doJSON(t, http.MethodPost, base+"/mount", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mount = %d %+v", resp.StatusCode, body)
	}
	v = decodeVault(t, body.Data)
	if v.State != "mounted" || v.Mountpoint != "/mnt/test" {
		t.Fatalf("mounted vault = %+v", v)
	}

	// Removing while unlocked conflicts.
	req, _ := http.NewRequest(http.MethodDelete, base, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusConflict {
		t.Fatalf("remove while unlocked = %d", delResp.StatusCode)
	}

	// Unmount, lock, remove.
	resp, _ = doJSON(t, http.MethodPost, base+"/unmount", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unmount = %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodPost, base+"/lock", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lock = %d", resp.StatusCode)
	}
	v = decodeVault(t, body.Data)
	if v.State != "locked" || v.Unlocked {
		t.Fatalf("locked vault = %+v", v)
	}

	req, _ = http.NewRequest(http.MethodDelete, base, nil)
	delResp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("remove = %d", delResp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, base, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after remove = %d", resp.StatusCode)
	}
}

func TestSetMountNameOverAPI(t *testing.T) {
	srv := newTestServer(t)
	path := filepath.Join(t.TempDir(), "Tax Declaration.cask")

	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/vaults/create",
		handlers.AddVaultRequest{Path: path, Passphrase: "pw"})
	created := decodeVault(t, body.Data)
	base := srv.URL + "/api/v1/vaults/" + created.ID

	resp, body := doJSON(t, http.MethodPut, base+"/mountname",
		handlers.MountNameRequest{MountName: "Tax Declaration"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mountname = %d %+v", resp.StatusCode, body)
	}
	v := decodeVault(t, body.Data)
	if v.MountName != "Tax_Declaration" {
		t.Fatalf("MountName = %q, want normalized Tax_Declaration", v.MountName)
	}

	// A name with nothing to keep is rejected.
	resp, _ = doJSON(t, http.MethodPut, base+"/mountname",
		handlers.MountNameRequest{MountName: "日本語"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unusable mountname = %d", resp.StatusCode)
	}
}
