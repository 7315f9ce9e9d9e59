package repository

import (
	"context"

	"github.com/jcarweb/repuestospro-sub005/internal/vault/domain"
)

// Repository persists sealed vault entries by name.
type Repository interface {
	// Get returns the entry, or nil and no error when name is absent. A record that cannot
	// be decoded returns domain.ErrMalformed.
	Get(ctx context.Context, name string) (*domain.Entry, error)
	Put(ctx context.Context, name string, e *domain.Entry) error
	// Delete is idempotent.
	Delete(ctx context.Context, name string) error
	// Names lists stored entry names, sorted.
	Names(ctx context.Context) ([]string, error)
}
