package crypto

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func testCryptor(t *testing.T) *Cryptor {
	t.Helper()
	c, err := NewRandomCryptor()
	if err != nil {
		t.Fatalf("NewRandomCryptor: %v", err)
	}
	return c
}

func encrypt(t *testing.T, c *Cryptor, plaintext []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := c.NewEncrypter(&buf)
	if err != nil {
		t.Fatalf("NewEncrypter: %v", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func decrypt(t *testing.T, c *Cryptor, ciphertext []byte, verify bool) ([]byte, error) {
	t.Helper()
	r, err := c.NewDecrypter(bytes.NewReader(ciphertext), int64(len(ciphertext)), verify)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := testCryptor(t)

	sizes := []int{0, 1, 100, ChunkSize - 1, ChunkSize, ChunkSize + 1, 3*ChunkSize + 17}
	for _, n := range sizes {
		plaintext := bytes.Repeat([]byte{0xA5}, n)
		ciphertext := encrypt(t, c, plaintext)

		for _, verify := range []bool{false, true} {
			got, err := decrypt(t, c, ciphertext, verify)
			if err != nil {
				t.Fatalf("size %d verify %t: %v", n, verify, err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("size %d verify %t: plaintext mismatch", n, verify)
			}
		}
	}
}

func TestDecryptWithDifferentKeysFails(t *testing.T) {
	ciphertext := encrypt(t, testCryptor(t), []byte("secret content"))

	if _, err := decrypt(t, testCryptor(t), ciphertext, false); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestTamperedChunkDetected(t *testing.T) {
	c := testCryptor(t)
	ciphertext := encrypt(t, c, bytes.Repeat([]byte("x"), 1000))

	// Flip a byte inside the first content chunk, past the header
	tampered := append([]byte(nil), ciphertext...)
	tampered[headerSize+20] ^= 0x01

	if _, err := decrypt(t, c, tampered, false); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestTamperedTrailerDetectedOnlyWithVerify(t *testing.T) {
	c := testCryptor(t)
	ciphertext := encrypt(t, c, []byte("trailer matters"))

	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0x01

	if _, err := decrypt(t, c, tampered, true); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("verify on: expected ErrCorrupt, got %v", err)
	}
	if got, err := decrypt(t, c, tampered, false); err != nil || !bytes.Equal(got, []byte("trailer matters")) {
		t.Fatalf("verify off must skip the trailer check: (%q, %v)", got, err)
	}
}

func TestBadMagicRejected(t *testing.T) {
	c := testCryptor(t)
	ciphertext := encrypt(t, c, []byte("hello"))
	ciphertext[0] = 'X'

	if _, err := decrypt(t, c, ciphertext, false); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestTruncatedCiphertextRejected(t *testing.T) {
	c := testCryptor(t)
	ciphertext := encrypt(t, c, []byte("hello"))

	if _, err := decrypt(t, c, ciphertext[:headerSize-1], false); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestEraseMakesCipherOperationsFail(t *testing.T) {
	c := testCryptor(t)
	ciphertext := encrypt(t, c, []byte("before erase"))

	c.EraseSensitiveMaterial()
	if !c.Erased() {
		t.Fatal("Erased() must report true after erase")
	}

	if _, err := c.NewEncrypter(&bytes.Buffer{}); !errors.Is(err, ErrErased) {
		t.Fatalf("NewEncrypter after erase: got %v", err)
	}
	if _, err := decrypt(t, c, ciphertext, false); !errors.Is(err, ErrErased) {
		t.Fatalf("NewDecrypter after erase: got %v", err)
	}

	// Idempotent
	c.EraseSensitiveMaterial()
	if !c.Erased() {
		t.Fatal("second erase must keep the cryptor erased")
	}
}

func TestEraseZeroizesKeyBytes(t *testing.T) {
	encKey := bytes.Repeat([]byte{0x11}, KeySize)
	macKey := bytes.Repeat([]byte{0x22}, KeySize)
	c, err := NewCryptor(encKey, macKey)
	if err != nil {
		t.Fatal(err)
	}

	c.EraseSensitiveMaterial()
	for i := range encKey {
		if encKey[i] != 0 || macKey[i] != 0 {
			t.Fatal("key bytes must be zeroized in place")
		}
	}
}

func TestSizeConversions(t *testing.T) {
	for _, n := range []int64{0, 1, 100, ChunkSize - 1, ChunkSize, ChunkSize + 1, 5 * ChunkSize} {
		ct := CiphertextSize(n)
		if got := PlaintextSize(ct); got != n {
			t.Errorf("PlaintextSize(CiphertextSize(%d)) = %d", n, got)
		}
	}

	// Actual output length must agree with the predicted one
	c := testCryptor(t)
	plaintext := bytes.Repeat([]byte("y"), ChunkSize+123)
	ciphertext := encrypt(t, c, plaintext)
	if int64(len(ciphertext)) != CiphertextSize(int64(len(plaintext))) {
		t.Fatalf("ciphertext length %d, predicted %d", len(ciphertext), CiphertextSize(int64(len(plaintext))))
	}
}

func TestMasterKeyCreateAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := MasterKeyPath(dir, "personal")

	created, err := CreateMasterKey(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("CreateMasterKey: %v", err)
	}
	defer created.EraseSensitiveMaterial()

	if filepath.Base(path) != "personal"+MasterKeySuffix {
		t.Fatalf("unexpected masterkey filename %q", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("masterkey file missing: %v", err)
	}

	// Content encrypted with the created cryptor must decrypt with the
	// loaded one: both hold the same underlying keys
	ciphertext := encrypt(t, created, []byte("cross-instance"))

	loaded, err := LoadMasterKey(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("LoadMasterKey: %v", err)
	}
	defer loaded.EraseSensitiveMaterial()

	got, err := decrypt(t, loaded, ciphertext, true)
	if err != nil || !bytes.Equal(got, []byte("cross-instance")) {
		t.Fatalf("decrypt with loaded cryptor: (%q, %v)", got, err)
	}
}

func TestLoadMasterKeyWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := MasterKeyPath(dir, "vault")

	c, err := CreateMasterKey(path, "right")
	if err != nil {
		t.Fatal(err)
	}
	c.EraseSensitiveMaterial()

	if _, err := LoadMasterKey(path, "wrong"); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestContainsMasterKey(t *testing.T) {
	dir := t.TempDir()

	ok, err := ContainsMasterKey(dir)
	if err != nil || ok {
		t.Fatalf("empty dir: (%t, %v), want (false, nil)", ok, err)
	}

	c, err := CreateMasterKey(MasterKeyPath(dir, "v"), "pw")
	if err != nil {
		t.Fatal(err)
	}
	c.EraseSensitiveMaterial()

	ok, err = ContainsMasterKey(dir)
	if err != nil || !ok {
		t.Fatalf("dir with key: (%t, %v), want (true, nil)", ok, err)
	}

	if _, err := ContainsMasterKey(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("missing dir must propagate the I/O error")
	}
}

func TestFindMasterKey(t *testing.T) {
	dir := t.TempDir()

	if _, err := FindMasterKey(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("empty dir: expected ErrNotExist, got %v", err)
	}

	c, err := CreateMasterKey(MasterKeyPath(dir, "main"), "pw")
	if err != nil {
		t.Fatal(err)
	}
	c.EraseSensitiveMaterial()

	// Noise that must not match
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	path, err := FindMasterKey(dir)
	if err != nil {
		t.Fatalf("FindMasterKey: %v", err)
	}
	if path != MasterKeyPath(dir, "main") {
		t.Fatalf("found %q, want %q", path, MasterKeyPath(dir, "main"))
	}
}
