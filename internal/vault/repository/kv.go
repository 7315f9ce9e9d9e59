package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jcarweb/repuestospro-sub005/internal/kv"
	"github.com/jcarweb/repuestospro-sub005/internal/vault/domain"
)

// KVRepository stores each entry as JSON under kv.VaultKeyPrefix + name.
type KVRepository struct {
	store kv.Store
}

// NewKVRepository returns a vault repository backed by store.
func NewKVRepository(store kv.Store) *KVRepository {
	return &KVRepository{store: store}
}

func key(name string) string { return kv.VaultKeyPrefix + name }

func (r *KVRepository) Get(ctx context.Context, name string) (*domain.Entry, error) {
	b, ok, err := r.store.Get(ctx, key(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var e domain.Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return &e, nil
}

func (r *KVRepository) Put(ctx context.Context, name string, e *domain.Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("vault: encode %s: %w", name, err)
	}
	return r.store.Put(ctx, key(name), b)
}

func (r *KVRepository) Delete(ctx context.Context, name string) error {
	return r.store.Delete(ctx, key(name))
}

func (r *KVRepository) Names(ctx context.Context) ([]string, error) {
	keys, err := r.store.List(ctx, kv.VaultKeyPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, kv.VaultKeyPrefix))
	}
	return names, nil
}
