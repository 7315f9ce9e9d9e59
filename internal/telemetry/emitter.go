// Package telemetry mirrors security events to an observability backend. Mirroring is
// best-effort and never affects the durable audit trail.
package telemetry

import (
	"context"

	auditdomain "github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
)

// EventEmitter emits security events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event auditdomain.Event) error
}
