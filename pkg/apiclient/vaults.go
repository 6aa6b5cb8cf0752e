package apiclient

// Vault is the client-side representation of a vault snapshot.
type Vault struct {
	ID              string `json:"id"`
	Path            string `json:"path"`
	MountName       string `json:"mount_name,omitempty"`
	VerifyIntegrity bool   `json:"verify_integrity"`
	State           string `json:"state"`
	Unlocked        bool   `json:"unlocked"`
	ServerURL       string `json:"server_url,omitempty"`
	Mountpoint      string `json:"mountpoint,omitempty"`
}

type vaultPathRequest struct {
	Path       string `json:"path"`
	Passphrase string `json:"passphrase,omitempty"`
}

type passphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

type mountNameRequest struct {
	MountName string `json:"mount_name"`
}

type verifyIntegrityRequest struct {
	VerifyIntegrity bool `json:"verify_integrity"`
}

// ListVaults returns all vaults known to the daemon.
func (c *Client) ListVaults() ([]Vault, error) {
	var vaults []Vault
	if err := c.get("/api/v1/vaults", &vaults); err != nil {
		return nil, err
	}
	return vaults, nil
}

// AddVault registers an existing vault directory with the daemon.
func (c *Client) AddVault(path string) (*Vault, error) {
	var v Vault
	if err := c.post("/api/v1/vaults", vaultPathRequest{Path: path}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVault creates a fresh vault at path protected by passphrase.
func (c *Client) CreateVault(path, passphrase string) (*Vault, error) {
	var v Vault
	if err := c.post("/api/v1/vaults/create", vaultPathRequest{Path: path, Passphrase: passphrase}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVault returns a single vault snapshot.
func (c *Client) GetVault(id string) (*Vault, error) {
	var v Vault
	if err := c.get("/api/v1/vaults/"+id, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// RemoveVault makes the daemon forget a vault. The directory is untouched.
func (c *Client) RemoveVault(id string) error {
	return c.delete("/api/v1/vaults/" + id)
}

// UnlockVault unlocks a vault and starts serving it.
func (c *Client) UnlockVault(id, passphrase string) (*Vault, error) {
	var v Vault
	if err := c.post("/api/v1/vaults/"+id+"/unlock", passphraseRequest{Passphrase: passphrase}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// LockVault stops serving a vault and erases its key material.
func (c *Client) LockVault(id string) (*Vault, error) {
	var v Vault
	if err := c.post("/api/v1/vaults/"+id+"/lock", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// MountVault attaches an unlocked vault to the OS.
func (c *Client) MountVault(id string) (*Vault, error) {
	var v Vault
	if err := c.post("/api/v1/vaults/"+id+"/mount", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// UnmountVault detaches a mounted vault; it keeps serving.
func (c *Client) UnmountVault(id string) (*Vault, error) {
	var v Vault
	if err := c.post("/api/v1/vaults/"+id+"/unmount", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetMountName updates a vault's mount name preference.
func (c *Client) SetMountName(id, name string) (*Vault, error) {
	var v Vault
	if err := c.put("/api/v1/vaults/"+id+"/mountname", mountNameRequest{MountName: name}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetVerifyIntegrity updates a vault's integrity verification preference.
func (c *Client) SetVerifyIntegrity(id string, verify bool) (*Vault, error) {
	var v Vault
	if err := c.put("/api/v1/vaults/"+id+"/verify", verifyIntegrityRequest{VerifyIntegrity: verify}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
