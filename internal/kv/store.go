// Package kv defines the key-value storage boundary the vault, event log and session
// manager persist through. Backends live in the subpackages.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// Well-known keys.
const (
	KeySession     = "session.record"
	KeyEvents      = "security.events"
	KeyDeviceID    = "device.id"
	VaultKeyPrefix = "vault."
)

// ErrStorage is wrapped by every backend failure. Callers test with errors.Is.
var ErrStorage = errors.New("storage error")

// Store is a string-keyed byte store. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Put writes value at key, overwriting.
	Put(ctx context.Context, key string, value []byte) error
	// PutIfAbsent writes value only when key is absent and reports whether it wrote.
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Wrap marks err as a storage failure for op on key. A nil err stays nil.
func Wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
	}
	return fmt.Errorf("%w: %s %q: %w", ErrStorage, op, key, err)
}
