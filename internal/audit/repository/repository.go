package repository

import (
	"context"

	"github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
)

// Repository persists the whole event history as one unit.
type Repository interface {
	// Load returns the persisted history oldest-first; an absent history is empty.
	// Undecodable history returns an error wrapping domain.ErrCorrupt.
	Load(ctx context.Context) ([]domain.Event, error)
	// Save replaces the persisted history.
	Save(ctx context.Context, events []domain.Event) error
	// Clear erases the persisted history.
	Clear(ctx context.Context) error
}
