// Package kvtest holds shared helpers for exercising kv.Store implementations and
// the components built on them.
package kvtest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jcarweb/repuestospro-sub005/internal/kv"
)

// ErrInjected is the cause carried by failures injected through Flaky.
var ErrInjected = errors.New("injected failure")

// Flaky wraps a kv.Store and fails selected operations on demand.
type Flaky struct {
	kv.Store

	mu       sync.Mutex
	failOps  map[string]bool
	failKeys map[string]bool
}

// NewFlaky wraps s. Nothing fails until FailOp or FailKey is called.
func NewFlaky(s kv.Store) *Flaky {
	return &Flaky{Store: s, failOps: map[string]bool{}, failKeys: map[string]bool{}}
}

// FailOp makes every call of op ("get", "put", "put_if_absent", "delete", "list") fail.
func (f *Flaky) FailOp(op string, fail bool) {
	f.mu.Lock()
	f.failOps[op] = fail
	f.mu.Unlock()
}

// FailKey makes every operation on key fail.
func (f *Flaky) FailKey(key string, fail bool) {
	f.mu.Lock()
	f.failKeys[key] = fail
	f.mu.Unlock()
}

func (f *Flaky) check(op, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps[op] || f.failKeys[key] {
		return kv.Wrap(op, key, ErrInjected)
	}
	return nil
}

func (f *Flaky) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := f.check("get", key); err != nil {
		return nil, false, err
	}
	return f.Store.Get(ctx, key)
}

func (f *Flaky) Put(ctx context.Context, key string, value []byte) error {
	if err := f.check("put", key); err != nil {
		return err
	}
	return f.Store.Put(ctx, key, value)
}

func (f *Flaky) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	if err := f.check("put_if_absent", key); err != nil {
		return false, err
	}
	return f.Store.PutIfAbsent(ctx, key, value)
}

func (f *Flaky) Delete(ctx context.Context, key string) error {
	if err := f.check("delete", key); err != nil {
		return err
	}
	return f.Store.Delete(ctx, key)
}

func (f *Flaky) List(ctx context.Context, prefix string) ([]string, error) {
	if err := f.check("list", prefix); err != nil {
		return nil, err
	}
	return f.Store.List(ctx, prefix)
}

// Conformance runs the behavior every kv.Store backend must share against a fresh
// store returned by newStore.
func Conformance(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get absent", func(t *testing.T) {
		s := newStore(t)
		v, ok, err := s.Get(ctx, "missing")
		if err != nil || ok || v != nil {
			t.Fatalf("Get(missing) = %q, %v, %v; want nil, false, nil", v, ok, err)
		}
	})

	t.Run("put get overwrite", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "vault.a", []byte("one")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := s.Put(ctx, "vault.a", []byte("two")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		v, ok, err := s.Get(ctx, "vault.a")
		if err != nil || !ok || !bytes.Equal(v, []byte("two")) {
			t.Fatalf("Get = %q, %v, %v; want two", v, ok, err)
		}
	})

	t.Run("put if absent", func(t *testing.T) {
		s := newStore(t)
		wrote, err := s.PutIfAbsent(ctx, kv.KeyDeviceID, []byte("first"))
		if err != nil || !wrote {
			t.Fatalf("PutIfAbsent first = %v, %v; want true", wrote, err)
		}
		wrote, err = s.PutIfAbsent(ctx, kv.KeyDeviceID, []byte("second"))
		if err != nil || wrote {
			t.Fatalf("PutIfAbsent second = %v, %v; want false", wrote, err)
		}
		v, _, _ := s.Get(ctx, kv.KeyDeviceID)
		if string(v) != "first" {
			t.Errorf("value = %q, want first", v)
		}
	})

	t.Run("delete idempotent", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "k", []byte("v"))
		for i := 0; i < 2; i++ {
			if err := s.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete #%d: %v", i, err)
			}
		}
		if _, ok, _ := s.Get(ctx, "k"); ok {
			t.Error("key still present after Delete")
		}
	})

	t.Run("list prefix sorted", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []string{"vault.b", "vault.a", "session.record", "vault.c"} {
			if err := s.Put(ctx, k, []byte("x")); err != nil {
				t.Fatalf("Put(%s): %v", k, err)
			}
		}
		keys, err := s.List(ctx, kv.VaultKeyPrefix)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		want := []string{"vault.a", "vault.b", "vault.c"}
		if len(keys) != len(want) {
			t.Fatalf("List = %v, want %v", keys, want)
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Fatalf("List = %v, want %v", keys, want)
			}
		}
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		s := newStore(t)
		in := []byte("abc")
		_ = s.Put(ctx, "k", in)
		in[0] = 'z'
		v, _, _ := s.Get(ctx, "k")
		if string(v) != "abc" {
			t.Fatalf("stored value aliased caller slice: %q", v)
		}
		v[1] = 'z'
		v2, _, _ := s.Get(ctx, "k")
		if string(v2) != "abc" {
			t.Fatalf("returned value aliased stored slice: %q", v2)
		}
	})
}
