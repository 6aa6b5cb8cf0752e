// Package keychain stores vault passphrases in the OS credential store so
// that trusted vaults can be unlocked without prompting.
package keychain

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "caskfs"

// ErrNotFound is returned when no passphrase is stored for a vault.
var ErrNotFound = errors.New("no stored passphrase for vault")

// SavePassphrase stores a vault passphrase under its registry ID.
func SavePassphrase(vaultID, passphrase string) error {
	return keyring.Set(serviceName, vaultID, passphrase)
}

// GetPassphrase retrieves the stored passphrase for a vault.
func GetPassphrase(vaultID string) (string, error) {
	pw, err := keyring.Get(serviceName, vaultID)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return pw, err
}

// DeletePassphrase removes the stored passphrase for a vault. Deleting a
// passphrase that was never stored is not an error.
func DeletePassphrase(vaultID string) error {
	err := keyring.Delete(serviceName, vaultID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasPassphrase reports whether a passphrase is stored for a vault.
func HasPassphrase(vaultID string) bool {
	_, err := keyring.Get(serviceName, vaultID)
	return err == nil
}
