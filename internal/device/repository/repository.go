package repository

import "context"

// Repository persists the install's device identifier.
type Repository interface {
	// EnsureID returns the stored device id, creating one on first use. The id never
	// changes afterwards, even when two callers race on first use.
	EnsureID(ctx context.Context) (string, error)
}
