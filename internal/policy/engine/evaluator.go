// Package engine decides whether suspicious activity forces a logout.
package engine

import (
	"context"
	"strings"

	"github.com/jcarweb/repuestospro-sub005/internal/policy/domain"
)

// ReasonSuspiciousActivity is the default forced logout reason.
const ReasonSuspiciousActivity = "suspicious_activity"

// Evaluator evaluates the logout policy.
type Evaluator interface {
	EvaluateLogout(ctx context.Context, in domain.LogoutInput) (domain.LogoutDecision, error)
}

// StaticEvaluator forces logout whenever activity is suspicious and a session is active.
type StaticEvaluator struct{}

func (StaticEvaluator) EvaluateLogout(_ context.Context, in domain.LogoutInput) (domain.LogoutDecision, error) {
	return staticDecision(in), nil
}

func staticDecision(in domain.LogoutInput) domain.LogoutDecision {
	if !in.Suspicious || !in.SessionActive {
		return domain.LogoutDecision{}
	}
	reason := ReasonSuspiciousActivity
	if len(in.Reasons) > 0 {
		reason = strings.Join(in.Reasons, ",")
	}
	return domain.LogoutDecision{ForceLogout: true, Reason: reason}
}
