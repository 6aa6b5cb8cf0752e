package settings

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndGet(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.Add("/vaults/work.cask")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated ID")
	}
	if rec.AddedAt.IsZero() {
		t.Error("expected AddedAt to be set")
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Path != "/vaults/work.cask" {
		t.Errorf("Path = %q", got.Path)
	}

	byPath, err := s.GetByPath("/vaults/work.cask")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if byPath.ID != rec.ID {
		t.Errorf("GetByPath ID = %q, want %q", byPath.ID, rec.ID)
	}
}

func TestAddDuplicatePath(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Add("/vaults/work.cask"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("/vaults/work.cask"); !errors.Is(err, ErrVaultAlreadyExists) {
		t.Fatalf("err = %v, want ErrVaultAlreadyExists", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("no-such-id"); !errors.Is(err, ErrVaultNotFound) {
		t.Fatalf("err = %v, want ErrVaultNotFound", err)
	}
	if _, err := s.GetByPath("/nowhere"); !errors.Is(err, ErrVaultNotFound) {
		t.Fatalf("err = %v, want ErrVaultNotFound", err)
	}
}

func TestUpdatePreferences(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.Add("/vaults/work.cask")
	if err != nil {
		t.Fatal(err)
	}
	rec.MountName = "work_files"
	rec.VerifyIntegrity = true
	if err := s.Update(rec); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MountName != "work_files" || !got.VerifyIntegrity {
		t.Errorf("record = %+v", got)
	}
}

func TestUpdateMovesPathIndex(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.Add("/vaults/old.cask")
	if err != nil {
		t.Fatal(err)
	}
	rec.Path = "/vaults/new.cask"
	if err := s.Update(rec); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := s.GetByPath("/vaults/old.cask"); !errors.Is(err, ErrVaultNotFound) {
		t.Errorf("old path still indexed: %v", err)
	}
	got, err := s.GetByPath("/vaults/new.cask")
	if err != nil {
		t.Fatalf("GetByPath new: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("ID = %q, want %q", got.ID, rec.ID)
	}
}

func TestListAndRemove(t *testing.T) {
	s := openTestStore(t)

	a, _ := s.Add("/vaults/a.cask")
	b, _ := s.Add("/vaults/b.cask")

	records, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}

	if err := s.Remove(a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	records, err = s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != b.ID {
		t.Errorf("records = %+v", records)
	}
	if _, err := s.GetByPath("/vaults/a.cask"); !errors.Is(err, ErrVaultNotFound) {
		t.Error("removed vault still indexed by path")
	}

	if err := s.Remove(a.ID); !errors.Is(err, ErrVaultNotFound) {
		t.Fatalf("second Remove err = %v, want ErrVaultNotFound", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := s.Add("/vaults/keep.cask")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	got, err := s2.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Path != "/vaults/keep.cask" {
		t.Errorf("Path = %q", got.Path)
	}
}
