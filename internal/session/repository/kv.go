package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jcarweb/repuestospro-sub005/internal/kv"
	"github.com/jcarweb/repuestospro-sub005/internal/session/domain"
)

// KVRepository stores the session record as JSON at kv.KeySession.
type KVRepository struct {
	store kv.Store
}

// NewKVRepository returns a session repository backed by store.
func NewKVRepository(store kv.Store) *KVRepository {
	return &KVRepository{store: store}
}

func (r *KVRepository) Load(ctx context.Context) (*domain.Record, error) {
	b, ok, err := r.store.Get(ctx, kv.KeySession)
	if err != nil || !ok {
		return nil, err
	}
	var rec domain.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorrupt, err)
	}
	return &rec, nil
}

func (r *KVRepository) Save(ctx context.Context, rec *domain.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	return r.store.Put(ctx, kv.KeySession, b)
}

func (r *KVRepository) Delete(ctx context.Context) error {
	return r.store.Delete(ctx, kv.KeySession)
}
