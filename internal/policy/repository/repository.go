package repository

import (
	"context"

	"github.com/jcarweb/repuestospro-sub005/internal/policy/domain"
)

// Repository supplies the logout policies to evaluate.
type Repository interface {
	// EnabledPolicies returns the enabled policies. An empty result selects the built-in policy.
	EnabledPolicies(ctx context.Context) ([]*domain.Policy, error)
}
