package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jcarweb/repuestospro-sub005/internal/kv"
)

// KVRepository stores the device id write-once at kv.KeyDeviceID.
type KVRepository struct {
	store kv.Store
	newID func() string
}

// NewKVRepository returns a device repository backed by store.
func NewKVRepository(store kv.Store) *KVRepository {
	return &KVRepository{store: store, newID: func() string { return uuid.New().String() }}
}

func (r *KVRepository) EnsureID(ctx context.Context) (string, error) {
	if v, ok, err := r.store.Get(ctx, kv.KeyDeviceID); err != nil {
		return "", err
	} else if ok && len(v) > 0 {
		return string(v), nil
	}

	if _, err := r.store.PutIfAbsent(ctx, kv.KeyDeviceID, []byte(r.newID())); err != nil {
		return "", err
	}
	// Re-read: a concurrent writer may have won the race.
	v, ok, err := r.store.Get(ctx, kv.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if !ok || len(v) == 0 {
		return "", kv.Wrap("get", kv.KeyDeviceID, errors.New("device id missing after write"))
	}
	return string(v), nil
}
