package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jcarweb/repuestospro-sub005/internal/kv"
	"github.com/jcarweb/repuestospro-sub005/internal/kv/kvtest"
)

func TestStore_Conformance(t *testing.T) {
	kvtest.Conformance(t, func(t *testing.T) kv.Store {
		s, err := Open(filepath.Join(t.TempDir(), "store.json"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.json")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Put(ctx, "vault.encrypted_pin", []byte{0, 1, 2, 255}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s1.Put(ctx, "gone", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s1.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_ = s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok, err := s2.Get(ctx, "vault.encrypted_pin")
	if err != nil || !ok {
		t.Fatalf("Get after reopen = %v, %v", ok, err)
	}
	if string(v) != string([]byte{0, 1, 2, 255}) {
		t.Errorf("value = %v", v)
	}
	if _, ok, _ := s2.Get(ctx, "gone"); ok {
		t.Error("deleted key reappeared after reopen")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != fileMode {
		t.Errorf("mode = %v, want %v", info.Mode().Perm(), os.FileMode(fileMode))
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, kv.ErrStorage) {
		t.Fatalf("Open(corrupt) = %v, want ErrStorage", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(" "); !errors.Is(err, kv.ErrStorage) {
		t.Fatalf("Open(\" \") = %v, want ErrStorage", err)
	}
}

func TestPut_WriteFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Point the store at a directory that does not exist so the temp file cannot be created.
	s.path = filepath.Join(dir, "missing", "store.json")
	if err := s.Put(ctx, "k", []byte("new")); !errors.Is(err, kv.ErrStorage) {
		t.Fatalf("Put = %v, want ErrStorage", err)
	}
	v, _, _ := s.Get(ctx, "k")
	if string(v) != "old" {
		t.Errorf("value after failed Put = %q, want old", v)
	}
}
