package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jcarweb/repuestospro-sub005/internal/kv"
)

// PolicyChecker reports whether the logout policy engine can evaluate.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheck reads the device id key and evaluates the logout policy. The first
// failure is returned.
func (a *App) HealthCheck(ctx context.Context) error {
	if a.Store == nil {
		return errors.New("app: no store")
	}
	if _, _, err := a.Store.Get(ctx, kv.KeyDeviceID); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if a.policyChecker != nil {
		if err := a.policyChecker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}
