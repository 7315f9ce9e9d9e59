package repository

import (
	"context"

	"github.com/jcarweb/repuestospro-sub005/internal/session/domain"
)

// Repository persists the single session record.
type Repository interface {
	// Load returns nil and no error when no session is stored; domain.ErrCorrupt when
	// the stored record cannot be decoded.
	Load(ctx context.Context) (*domain.Record, error)
	Save(ctx context.Context, r *domain.Record) error
	// Delete is idempotent.
	Delete(ctx context.Context) error
}
