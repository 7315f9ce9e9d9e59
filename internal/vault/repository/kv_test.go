package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jcarweb/repuestospro-sub005/internal/kv"
	"github.com/jcarweb/repuestospro-sub005/internal/kv/memory"
	"github.com/jcarweb/repuestospro-sub005/internal/security"
	"github.com/jcarweb/repuestospro-sub005/internal/vault/domain"
)

func TestKVRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	repo := NewKVRepository(store)

	if got, err := repo.Get(ctx, "missing"); err != nil || got != nil {
		t.Fatalf("Get(missing) = %v, %v", got, err)
	}

	stored := time.UnixMilli(1_700_000_000_123).UTC()
	in := &domain.Entry{
		Version:    domain.EntryVersion,
		Ciphertext: []byte{1, 2, 3},
		Nonce:      []byte{4, 5},
		Salt:       []byte{6},
		StoredAt:   stored,
		KDF:        security.DefaultKDFParams(),
	}
	if err := repo.Put(ctx, "encrypted_pin", in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "vault.encrypted_pin"); !ok {
		t.Fatal("entry not stored under vault. prefix")
	}
	got, err := repo.Get(ctx, "encrypted_pin")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.StoredAt.Equal(stored) || string(got.Ciphertext) != string(in.Ciphertext) || got.KDF != in.KDF {
		t.Errorf("Get = %+v, want %+v", got, in)
	}

	_ = store.Put(ctx, kv.KeySession, []byte("{}"))
	names, err := repo.Names(ctx)
	if err != nil || len(names) != 1 || names[0] != "encrypted_pin" {
		t.Errorf("Names = %v, %v", names, err)
	}

	if err := repo.Delete(ctx, "encrypted_pin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, "encrypted_pin"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestKVRepository_Malformed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.Put(ctx, "vault.bad", []byte("not json"))
	_, err := NewKVRepository(store).Get(ctx, "bad")
	if !errors.Is(err, domain.ErrMalformed) {
		t.Fatalf("Get = %v, want ErrMalformed", err)
	}
}
