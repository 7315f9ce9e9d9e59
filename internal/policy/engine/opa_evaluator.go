package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"github.com/jcarweb/repuestospro-sub005/internal/policy/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/policy/repository"
)

const (
	forceLogoutQuery = "data.sessionvault.logout.force_logout"
	reasonQuery      = "data.sessionvault.logout.reason"
)

// Default Rego policy; equivalent to StaticEvaluator.
const defaultRegoPolicy = `package sessionvault.logout

default force_logout := false

force_logout if {
	input.verdict.suspicious
	input.session.active
}

default reason := ""

reason := concat(",", input.verdict.reasons) if {
	force_logout
	count(input.verdict.reasons) > 0
}

reason := "suspicious_activity" if {
	force_logout
	count(input.verdict.reasons) == 0
}
`

// OPAEvaluator evaluates the logout policy with OPA Rego. Policies come from repo;
// with none enabled the built-in policy applies.
type OPAEvaluator struct {
	policyRepo repository.Repository
	log        *zap.Logger
}

// NewOPAEvaluator returns an OPA-based logout policy evaluator. repo may be nil.
func NewOPAEvaluator(policyRepo repository.Repository, log *zap.Logger) *OPAEvaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &OPAEvaluator{policyRepo: policyRepo, log: log}
}

// HealthCheck verifies that the in-process engine compiles and evaluates the configured
// policies (or the built-in one).
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	modules, err := e.modules(ctx)
	if err != nil {
		return err
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return fmt.Errorf("compile policy: %w", err)
	}
	if _, err := evalBool(ctx, compiler, forceLogoutQuery, buildInput(domain.LogoutInput{})); err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	return nil
}

// EvaluateLogout evaluates the policy. When policies cannot be loaded, compiled or
// evaluated the StaticEvaluator decision is returned along with nil error, and the
// failure is logged.
func (e *OPAEvaluator) EvaluateLogout(ctx context.Context, in domain.LogoutInput) (domain.LogoutDecision, error) {
	modules, err := e.modules(ctx)
	if err != nil {
		e.log.Warn("policy: failed to load policies, using defaults", zap.Error(err))
		return staticDecision(in), nil
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		e.log.Warn("policy: compile failed, using defaults", zap.Error(err))
		return staticDecision(in), nil
	}

	input := buildInput(in)
	force, err := evalBool(ctx, compiler, forceLogoutQuery, input)
	if err != nil {
		e.log.Warn("policy: evaluation failed, using defaults", zap.Error(err))
		return staticDecision(in), nil
	}
	if !force {
		return domain.LogoutDecision{}, nil
	}
	reason, _ := evalString(ctx, compiler, reasonQuery, input)
	if reason == "" {
		reason = ReasonSuspiciousActivity
	}
	return domain.LogoutDecision{ForceLogout: true, Reason: reason}, nil
}

func (e *OPAEvaluator) modules(ctx context.Context) (map[string]string, error) {
	var rules []string
	if e.policyRepo != nil {
		policies, err := e.policyRepo.EnabledPolicies(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range policies {
			if p.Enabled && strings.TrimSpace(p.Rules) != "" {
				rules = append(rules, p.Rules)
			}
		}
	}
	if len(rules) == 0 {
		rules = []string{defaultRegoPolicy}
	}
	modules := make(map[string]string, len(rules))
	for i, r := range rules {
		modules[fmt.Sprintf("policy_%d.rego", i)] = r
	}
	return modules, nil
}

func buildInput(in domain.LogoutInput) map[string]interface{} {
	reasons := make([]interface{}, 0, len(in.Reasons))
	for _, r := range in.Reasons {
		reasons = append(reasons, r)
	}
	return map[string]interface{}{
		"verdict": map[string]interface{}{
			"suspicious":       in.Suspicious,
			"failed_logins":    in.FailedLogins,
			"distinct_devices": in.DistinctDevices,
			"reasons":          reasons,
		},
		"session": map[string]interface{}{
			"active": in.SessionActive,
		},
	}
}

func eval(ctx context.Context, compiler *ast.Compiler, query string, input map[string]interface{}) (interface{}, bool, error) {
	rs, err := rego.New(
		rego.Query(query),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, false, nil
	}
	return rs[0].Expressions[0].Value, true, nil
}

func evalBool(ctx context.Context, compiler *ast.Compiler, query string, input map[string]interface{}) (bool, error) {
	v, ok, err := eval(ctx, compiler, query, input)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("query %s returned no result", query)
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, fmt.Errorf("query %s returned %T, want bool", query, v)
	}
	return b, nil
}

func evalString(ctx context.Context, compiler *ast.Compiler, query string, input map[string]interface{}) (string, error) {
	v, ok, err := eval(ctx, compiler, query, input)
	if err != nil || !ok {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}
