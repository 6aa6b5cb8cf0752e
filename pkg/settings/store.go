// Package settings persists the registry of known vaults across daemon
// restarts. Per-vault preferences such as the custom mount name and the
// integrity verification flag are stored here; passphrases never are.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	vaultsBucket = []byte("vaults") // VaultRecord JSON keyed by ID
	pathsBucket  = []byte("paths")  // vault path -> ID index
	metaBucket   = []byte("meta")   // schema version, timestamps
)

var (
	metaVersion = []byte("version")

	schemaVersion = []byte("1")
)

// Errors returned by the store.
var (
	ErrVaultNotFound      = errors.New("vault not found")
	ErrVaultAlreadyExists = errors.New("vault already registered")
)

// VaultRecord is the persisted state of a known vault.
type VaultRecord struct {
	ID              string    `json:"id"`
	Path            string    `json:"path"`
	MountName       string    `json:"mountName,omitempty"`
	VerifyIntegrity bool      `json:"verifyIntegrity"`
	AddedAt         time.Time `json:"addedAt"`
}

// Store is the bbolt-backed vault registry.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the registry database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{vaultsBucket, pathsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		meta := tx.Bucket(metaBucket)
		if meta.Get(metaVersion) == nil {
			return meta.Put(metaVersion, schemaVersion)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add registers a vault and returns its record with a freshly assigned ID.
// Registering a path that is already present returns ErrVaultAlreadyExists.
func (s *Store) Add(path string) (*VaultRecord, error) {
	rec := &VaultRecord{
		ID:      uuid.NewString(),
		Path:    path,
		AddedAt: time.Now().UTC(),
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		paths := tx.Bucket(pathsBucket)
		if paths.Get([]byte(path)) != nil {
			return ErrVaultAlreadyExists
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := tx.Bucket(vaultsBucket).Put([]byte(rec.ID), data); err != nil {
			return err
		}
		return paths.Put([]byte(path), []byte(rec.ID))
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the record for the given vault ID.
func (s *Store) Get(id string) (*VaultRecord, error) {
	var rec *VaultRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(vaultsBucket).Get([]byte(id))
		if data == nil {
			return ErrVaultNotFound
		}
		rec = &VaultRecord{}
		return json.Unmarshal(data, rec)
	})
	return rec, err
}

// GetByPath returns the record registered under the given vault path.
func (s *Store) GetByPath(path string) (*VaultRecord, error) {
	var rec *VaultRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(pathsBucket).Get([]byte(path))
		if id == nil {
			return ErrVaultNotFound
		}
		data := tx.Bucket(vaultsBucket).Get(id)
		if data == nil {
			return ErrVaultNotFound
		}
		rec = &VaultRecord{}
		return json.Unmarshal(data, rec)
	})
	return rec, err
}

// List returns all registered vaults.
func (s *Store) List() ([]*VaultRecord, error) {
	var records []*VaultRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(vaultsBucket).ForEach(func(k, v []byte) error {
			rec := &VaultRecord{}
			if err := json.Unmarshal(v, rec); err != nil {
				return fmt.Errorf("corrupt vault record %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// Update replaces the stored record for rec.ID. The path index is adjusted
// when the vault has moved.
func (s *Store) Update(rec *VaultRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		vaults := tx.Bucket(vaultsBucket)
		old := vaults.Get([]byte(rec.ID))
		if old == nil {
			return ErrVaultNotFound
		}

		var prev VaultRecord
		if err := json.Unmarshal(old, &prev); err != nil {
			return err
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := vaults.Put([]byte(rec.ID), data); err != nil {
			return err
		}

		if prev.Path != rec.Path {
			paths := tx.Bucket(pathsBucket)
			if err := paths.Delete([]byte(prev.Path)); err != nil {
				return err
			}
			return paths.Put([]byte(rec.Path), []byte(rec.ID))
		}
		return nil
	})
}

// Remove deletes a vault from the registry.
func (s *Store) Remove(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		vaults := tx.Bucket(vaultsBucket)
		data := vaults.Get([]byte(id))
		if data == nil {
			return ErrVaultNotFound
		}
		var rec VaultRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if err := tx.Bucket(pathsBucket).Delete([]byte(rec.Path)); err != nil {
			return err
		}
		return vaults.Delete([]byte(id))
	})
}
