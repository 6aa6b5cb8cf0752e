package crypto

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/scrypt"
)

// MasterKeySuffix is the file name suffix of masterkey files inside a vault
// directory.
const MasterKeySuffix = ".masterkey.json"

// MasterKeyGlob matches masterkey files for directory probing.
const MasterKeyGlob = "*" + MasterKeySuffix

// Default scrypt parameters. CostParam is the CPU/memory cost (N), must be a
// power of two.
const (
	DefaultScryptCostParam = 1 << 15
	DefaultScryptBlockSize = 8
	scryptParallelism      = 1
	scryptSaltSize         = 32
)

// ErrWrongPassphrase indicates the supplied passphrase does not unwrap the
// masterkey file's keys.
var ErrWrongPassphrase = errors.New("crypto: wrong passphrase")

// MasterKeyFile is the JSON representation of a vault's wrapped key
// material. The raw keys never appear in it: the encryption and MAC keys
// are sealed with a key-encryption key derived from the passphrase.
type MasterKeyFile struct {
	Version         int    `json:"version"`
	ScryptSalt      []byte `json:"scryptSalt"`
	ScryptCostParam int    `json:"scryptCostParam"`
	ScryptBlockSize int    `json:"scryptBlockSize"`
	WrapNonce       []byte `json:"wrapNonce"`
	WrappedKeys     []byte `json:"wrappedKeys"`
}

const masterKeyVersion = 1

// MasterKeyPath returns the masterkey file path for a vault directory and
// display name.
func MasterKeyPath(dir, name string) string {
	return filepath.Join(dir, name+MasterKeySuffix)
}

// ContainsMasterKey reports whether dir holds at least one recognizable
// masterkey file. A directory with none returns (false, nil); read errors
// propagate. It satisfies the vault package's MasterKeyProbe contract.
func ContainsMasterKey(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("crypto: probing %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			if ok, _ := filepath.Match(MasterKeyGlob, e.Name()); ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// FindMasterKey returns the path of the first masterkey file inside dir.
func FindMasterKey(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("crypto: probing %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			if ok, _ := filepath.Match(MasterKeyGlob, e.Name()); ok {
				return filepath.Join(dir, e.Name()), nil
			}
		}
	}
	return "", fmt.Errorf("crypto: no masterkey file in %s: %w", dir, os.ErrNotExist)
}

func deriveKEK(passphrase string, salt []byte, costParam, blockSize int) ([]byte, error) {
	kek, err := scrypt.Key([]byte(passphrase), salt, costParam, blockSize, scryptParallelism, KeySize)
	if err != nil {
		return nil, fmt.Errorf("crypto: deriving key encryption key: %w", err)
	}
	return kek, nil
}

// CreateMasterKey generates fresh key material, writes the wrapped masterkey
// file at path and returns a ready-to-use cryptor.
func CreateMasterKey(path, passphrase string) (*Cryptor, error) {
	c, err := NewRandomCryptor()
	if err != nil {
		return nil, err
	}

	salt := make([]byte, scryptSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	kek, err := deriveKEK(passphrase, salt, DefaultScryptCostParam, DefaultScryptBlockSize)
	if err != nil {
		return nil, err
	}
	defer zero(kek)

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating wrap nonce: %w", err)
	}

	gcm, err := aead(kek)
	if err != nil {
		return nil, err
	}
	keys := make([]byte, 0, 2*KeySize)
	keys = append(keys, c.encKey...)
	keys = append(keys, c.macKey...)
	wrapped := gcm.Seal(nil, nonce, keys, nil)
	zero(keys)

	mkf := MasterKeyFile{
		Version:         masterKeyVersion,
		ScryptSalt:      salt,
		ScryptCostParam: DefaultScryptCostParam,
		ScryptBlockSize: DefaultScryptBlockSize,
		WrapNonce:       nonce,
		WrappedKeys:     wrapped,
	}
	data, err := json.MarshalIndent(&mkf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("crypto: encoding masterkey file: %w", err)
	}
	// 0600: the wrapped keys are only as strong as the passphrase.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("crypto: writing masterkey file: %w", err)
	}
	return c, nil
}

// LoadMasterKey reads the masterkey file at path and unwraps its key
// material with the given passphrase. A passphrase that fails to
// authenticate yields ErrWrongPassphrase.
func LoadMasterKey(path, passphrase string) (*Cryptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: reading masterkey file: %w", err)
	}

	var mkf MasterKeyFile
	if err := json.Unmarshal(data, &mkf); err != nil {
		return nil, fmt.Errorf("crypto: parsing masterkey file: %w", err)
	}
	if mkf.Version != masterKeyVersion {
		return nil, fmt.Errorf("crypto: unsupported masterkey version %d", mkf.Version)
	}

	kek, err := deriveKEK(passphrase, mkf.ScryptSalt, mkf.ScryptCostParam, mkf.ScryptBlockSize)
	if err != nil {
		return nil, err
	}
	defer zero(kek)

	gcm, err := aead(kek)
	if err != nil {
		return nil, err
	}
	keys, err := gcm.Open(nil, mkf.WrapNonce, mkf.WrappedKeys, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	if len(keys) != 2*KeySize {
		return nil, fmt.Errorf("%w: unexpected key length", ErrCorrupt)
	}
	return NewCryptor(keys[:KeySize], keys[KeySize:])
}
