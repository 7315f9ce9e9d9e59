package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileRepository(t *testing.T) {
	ctx := context.Background()

	got, err := NewFileRepository("").EnabledPolicies(ctx)
	if err != nil || got != nil {
		t.Fatalf("empty path = %v, %v", got, err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "logout.rego")
	if err := os.WriteFile(path, []byte("package sessionvault.logout\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = NewFileRepository(path).EnabledPolicies(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("EnabledPolicies = %v, %v", got, err)
	}
	if got[0].Name != "logout.rego" || !got[0].Enabled {
		t.Errorf("policy = %+v", got[0])
	}

	blank := filepath.Join(dir, "blank.rego")
	_ = os.WriteFile(blank, []byte("  \n"), 0o600)
	if got, _ := NewFileRepository(blank).EnabledPolicies(ctx); got != nil {
		t.Errorf("blank file = %v, want nil", got)
	}

	if _, err := NewFileRepository(filepath.Join(dir, "missing.rego")).EnabledPolicies(ctx); err == nil {
		t.Error("missing file should fail")
	}
}
