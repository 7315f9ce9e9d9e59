package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/jcarweb/repuestospro-sub005/internal/kv"
	"github.com/jcarweb/repuestospro-sub005/internal/kv/kvtest"
)

func TestStore_Conformance(t *testing.T) {
	kvtest.Conformance(t, func(t *testing.T) kv.Store { return New() })
}

func TestStore_ClosedFailsWithStorageError(t *testing.T) {
	s := New()
	_ = s.Close()
	ctx := context.Background()
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, kv.ErrStorage) {
		t.Errorf("Get after Close = %v, want ErrStorage", err)
	}
	if err := s.Put(ctx, "k", []byte("v")); !errors.Is(err, kv.ErrStorage) {
		t.Errorf("Put after Close = %v, want ErrStorage", err)
	}
	if _, err := s.List(ctx, ""); !errors.Is(err, kv.ErrStorage) {
		t.Errorf("List after Close = %v, want ErrStorage", err)
	}
}

func TestFlaky_InjectsStorageErrors(t *testing.T) {
	f := kvtest.NewFlaky(New())
	ctx := context.Background()
	f.FailOp("put", true)
	if err := f.Put(ctx, "k", []byte("v")); !errors.Is(err, kv.ErrStorage) {
		t.Fatalf("Put = %v, want ErrStorage", err)
	}
	f.FailOp("put", false)
	if err := f.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put after clearing fault: %v", err)
	}
	f.FailKey("k", true)
	if _, _, err := f.Get(ctx, "k"); !errors.Is(err, kvtest.ErrInjected) {
		t.Fatalf("Get = %v, want ErrInjected", err)
	}
}
