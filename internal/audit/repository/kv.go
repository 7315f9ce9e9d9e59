package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/kv"
)

// KVRepository stores the history as a JSON array at kv.KeyEvents.
type KVRepository struct {
	store kv.Store
}

// NewKVRepository returns an event repository backed by store.
func NewKVRepository(store kv.Store) *KVRepository {
	return &KVRepository{store: store}
}

func (r *KVRepository) Load(ctx context.Context) ([]domain.Event, error) {
	raw, ok, err := r.store.Get(ctx, kv.KeyEvents)
	if err != nil {
		return nil, err
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var events []domain.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorrupt, err)
	}
	return events, nil
}

func (r *KVRepository) Save(ctx context.Context, events []domain.Event) error {
	if events == nil {
		events = []domain.Event{}
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("audit: encode events: %w", err)
	}
	return r.store.Put(ctx, kv.KeyEvents, raw)
}

func (r *KVRepository) Clear(ctx context.Context) error {
	return r.store.Delete(ctx, kv.KeyEvents)
}
