package keychain

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestPassphraseLifecycle(t *testing.T) {
	keyring.MockInit()

	const id = "3f6c1c1e-test"

	if HasPassphrase(id) {
		t.Fatal("unexpected stored passphrase")
	}
	if _, err := GetPassphrase(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}

	if err := SavePassphrase(id, "correct horse"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !HasPassphrase(id) {
		t.Error("expected stored passphrase")
	}
	pw, err := GetPassphrase(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pw != "correct horse" {
		t.Errorf("passphrase = %q", pw)
	}

	if err := DeletePassphrase(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if HasPassphrase(id) {
		t.Error("passphrase survived delete")
	}

	// Deleting again is a no-op.
	if err := DeletePassphrase(id); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}
