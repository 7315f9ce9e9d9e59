package engine

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/jcarweb/repuestospro-sub005/internal/policy/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/policy/repository"
)

// mockPolicyRepo implements repository.Repository for tests.
type mockPolicyRepo struct {
	policies []*domain.Policy
	err      error
}

var _ repository.Repository = (*mockPolicyRepo)(nil)

func (m *mockPolicyRepo) EnabledPolicies(ctx context.Context) ([]*domain.Policy, error) {
	return m.policies, m.err
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	if err := NewOPAEvaluator(nil, nil).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	bad := NewOPAEvaluator(&mockPolicyRepo{policies: []*domain.Policy{{Rules: "package x\nnot rego {", Enabled: true}}}, nil)
	if err := bad.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck should fail for an uncompilable policy")
	}
}

func TestOPAEvaluator_DefaultPolicyMatchesStatic(t *testing.T) {
	e := NewOPAEvaluator(&mockPolicyRepo{}, zaptest.NewLogger(t))
	ctx := context.Background()
	tests := []struct {
		name string
		in   domain.LogoutInput
	}{
		{"clean", domain.LogoutInput{SessionActive: true}},
		{"suspicious no session", domain.LogoutInput{Suspicious: true, Reasons: []string{"too_many_devices"}}},
		{"suspicious active", domain.LogoutInput{Suspicious: true, SessionActive: true, Reasons: []string{"too_many_failed_logins"}}},
		{"suspicious two reasons", domain.LogoutInput{Suspicious: true, SessionActive: true, Reasons: []string{"too_many_failed_logins", "too_many_devices"}}},
		{"suspicious no reasons", domain.LogoutInput{Suspicious: true, SessionActive: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EvaluateLogout(ctx, tt.in)
			if err != nil {
				t.Fatalf("EvaluateLogout: %v", err)
			}
			want, _ := StaticEvaluator{}.EvaluateLogout(ctx, tt.in)
			if got != want {
				t.Errorf("OPA = %+v, static = %+v", got, want)
			}
		})
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	// Only the device rule forces logout.
	custom := `package sessionvault.logout

default force_logout := false

force_logout if {
	input.session.active
	input.verdict.distinct_devices > 3
}

reason := "new_device_burst" if force_logout
`
	e := NewOPAEvaluator(&mockPolicyRepo{policies: []*domain.Policy{{Name: "custom", Rules: custom, Enabled: true}}}, nil)
	ctx := context.Background()

	got, err := e.EvaluateLogout(ctx, domain.LogoutInput{Suspicious: true, SessionActive: true, FailedLogins: 9, Reasons: []string{"too_many_failed_logins"}})
	if err != nil || got.ForceLogout {
		t.Fatalf("failed-login verdict = %+v, %v; want no logout", got, err)
	}
	got, err = e.EvaluateLogout(ctx, domain.LogoutInput{Suspicious: true, SessionActive: true, DistinctDevices: 4})
	if err != nil || !got.ForceLogout || got.Reason != "new_device_burst" {
		t.Fatalf("device verdict = %+v, %v", got, err)
	}
}

func TestOPAEvaluator_DisabledPoliciesFallBackToDefault(t *testing.T) {
	e := NewOPAEvaluator(&mockPolicyRepo{policies: []*domain.Policy{{Rules: "garbage", Enabled: false}}}, nil)
	got, err := e.EvaluateLogout(context.Background(), domain.LogoutInput{Suspicious: true, SessionActive: true})
	if err != nil || !got.ForceLogout {
		t.Fatalf("EvaluateLogout = %+v, %v", got, err)
	}
}

func TestOPAEvaluator_FailuresFallBackToStatic(t *testing.T) {
	in := domain.LogoutInput{Suspicious: true, SessionActive: true, Reasons: []string{"too_many_devices"}}
	for name, repo := range map[string]*mockPolicyRepo{
		"repo error":   {err: errors.New("unreadable")},
		"compile fail": {policies: []*domain.Policy{{Rules: "package sessionvault.logout\nforce_logout if {", Enabled: true}}},
		"non-bool":     {policies: []*domain.Policy{{Rules: "package sessionvault.logout\nforce_logout := \"yes\"", Enabled: true}}},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := NewOPAEvaluator(repo, zaptest.NewLogger(t)).EvaluateLogout(context.Background(), in)
			if err != nil {
				t.Fatalf("EvaluateLogout: %v", err)
			}
			if !got.ForceLogout || got.Reason != "too_many_devices" {
				t.Errorf("EvaluateLogout = %+v, want static decision", got)
			}
		})
	}
}

func TestStaticEvaluator(t *testing.T) {
	ctx := context.Background()
	got, _ := StaticEvaluator{}.EvaluateLogout(ctx, domain.LogoutInput{Suspicious: true, SessionActive: true})
	if !got.ForceLogout || got.Reason != ReasonSuspiciousActivity {
		t.Errorf("StaticEvaluator = %+v", got)
	}
	got, _ = StaticEvaluator{}.EvaluateLogout(ctx, domain.LogoutInput{Suspicious: false, SessionActive: true})
	if got.ForceLogout {
		t.Errorf("StaticEvaluator forced logout on a clean verdict")
	}
}
