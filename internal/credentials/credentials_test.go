package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auditdomain "github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/kv/memory"
	"github.com/jcarweb/repuestospro-sub005/internal/security"
	"github.com/jcarweb/repuestospro-sub005/internal/vault"
	vaultdomain "github.com/jcarweb/repuestospro-sub005/internal/vault/domain"
	vaultrepo "github.com/jcarweb/repuestospro-sub005/internal/vault/repository"
)

func newTestVault() *vault.Vault {
	return vault.New(vaultrepo.NewKVRepository(memory.New()), vault.WithKDFParams(security.TestKDFParams()))
}

// mockRecorder implements vault.EventRecorder.
type mockRecorder struct {
	mu    sync.Mutex
	types []auditdomain.EventType
}

func (m *mockRecorder) Record(ctx context.Context, t auditdomain.EventType, reason string, failed bool) (auditdomain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, t)
	return auditdomain.Event{Type: t}, nil
}

func TestPIN(t *testing.T) {
	ctx := context.Background()
	p := NewPIN(newTestVault())

	if _, err := p.Verify(ctx, "4921", "pw"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Verify before Set = %v", err)
	}
	for _, bad := range []string{"", "123", "1234567", "12a4", " 1234"} {
		if err := p.Set(ctx, bad, "pw"); !errors.Is(err, ErrInvalidPIN) {
			t.Errorf("Set(%q) = %v, want ErrInvalidPIN", bad, err)
		}
	}
	if err := p.Set(ctx, "4921", "correct-password"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err := p.Verify(ctx, "4921", "correct-password")
	if err != nil || !ok {
		t.Errorf("Verify(right) = %v, %v", ok, err)
	}
	ok, err = p.Verify(ctx, "1111", "correct-password")
	if err != nil || ok {
		t.Errorf("Verify(wrong pin) = %v, %v", ok, err)
	}
	if _, err := p.Verify(ctx, "4921", "wrong-password"); !errors.Is(err, security.ErrAuthentication) {
		t.Errorf("Verify(wrong password) = %v, want ErrAuthentication", err)
	}

	if err := p.Remove(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Verify(ctx, "4921", "correct-password"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Verify after Remove = %v", err)
	}
}

func TestTwoFactor(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{}
	f := NewTwoFactor(newTestVault(), rec)
	f.nowF = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	if _, err := f.Enable(ctx, "", nil, "pw"); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("Enable(empty) = %v", err)
	}
	codes, err := GenerateBackupCodes(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Enable(ctx, "JBSWY3DPEHPK3PXP", codes, "pw"); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	d, err := f.Load(ctx, "pw")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Secret != "JBSWY3DPEHPK3PXP" || len(d.BackupCodes) != 3 || d.EnabledAt.UnixMilli() != 1_700_000_000_000 {
		t.Errorf("Load = %+v", d)
	}

	ok, err := f.ConsumeBackupCode(ctx, codes[1], "pw")
	if err != nil || !ok {
		t.Fatalf("ConsumeBackupCode = %v, %v", ok, err)
	}
	ok, err = f.ConsumeBackupCode(ctx, codes[1], "pw")
	if err != nil || ok {
		t.Errorf("second ConsumeBackupCode = %v, %v; want one-time use", ok, err)
	}
	d, _ = f.Load(ctx, "pw")
	if len(d.BackupCodes) != 2 {
		t.Errorf("BackupCodes = %v", d.BackupCodes)
	}

	if err := f.Disable(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Load(ctx, "pw"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Load after Disable = %v", err)
	}
	want := []auditdomain.EventType{auditdomain.EventTwoFactorEnabled, auditdomain.EventTwoFactorDisabled}
	if len(rec.types) != 2 || rec.types[0] != want[0] || rec.types[1] != want[1] {
		t.Errorf("events = %v, want %v", rec.types, want)
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 10 {
		t.Fatalf("len = %d", len(codes))
	}
	for _, c := range codes {
		if len(c) != backupCodeDigits {
			t.Errorf("code %q has %d digits", c, len(c))
		}
	}
}

func TestGenerateBackupCodes_InvalidCount(t *testing.T) {
	for _, n := range []int{-1, 0, maxBackupCodes + 1} {
		codes, err := GenerateBackupCodes(n)
		if !errors.Is(err, ErrInvalidCount) || codes != nil {
			t.Errorf("GenerateBackupCodes(%d) = %v, %v; want ErrInvalidCount", n, codes, err)
		}
	}
}

// mockHardware implements Hardware.
type mockHardware struct {
	has, enrolled bool
	result        AuthResult
	err           error
	prompts       int
}

func (m *mockHardware) HasHardware(ctx context.Context) (bool, error) { return m.has, m.err }
func (m *mockHardware) IsEnrolled(ctx context.Context) (bool, error)  { return m.enrolled, nil }
func (m *mockHardware) Authenticate(ctx context.Context, prompt string) (AuthResult, error) {
	m.prompts++
	return m.result, nil
}

func TestBiometric_Enroll(t *testing.T) {
	tests := []struct {
		name    string
		hw      *mockHardware
		wantErr error
	}{
		{"no hardware", &mockHardware{}, ErrNoHardware},
		{"not enrolled", &mockHardware{has: true}, ErrNotEnrolled},
		{"prompt rejected", &mockHardware{has: true, enrolled: true, result: AuthResult{ErrorCode: "user_cancel"}}, ErrBiometricFail},
		{"ok", &mockHardware{has: true, enrolled: true, result: AuthResult{Success: true}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			v := newTestVault()
			b := NewBiometric(v, tt.hw)
			info, err := b.Enroll(ctx, "fingerprint", "pw")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Enroll = %v, want %v", err, tt.wantErr)
			}
			_, stored, _ := v.Retrieve(ctx, vaultdomain.NameBiometric, "pw")
			if stored != (tt.wantErr == nil) {
				t.Errorf("entry stored = %v", stored)
			}
			if tt.wantErr == nil && info.Type != "fingerprint" {
				t.Errorf("info = %+v", info)
			}
		})
	}
}

func TestBiometric_StatusAndDisable(t *testing.T) {
	ctx := context.Background()
	b := NewBiometric(newTestVault(), &mockHardware{has: true, enrolled: true, result: AuthResult{Success: true}})

	if info, err := b.Status(ctx, "pw"); info != nil || err != nil {
		t.Fatalf("Status before Enroll = %v, %v", info, err)
	}
	if _, err := b.Enroll(ctx, "face", "pw"); err != nil {
		t.Fatal(err)
	}
	info, err := b.Status(ctx, "pw")
	if err != nil || info == nil || info.Type != "face" {
		t.Fatalf("Status = %v, %v", info, err)
	}
	if _, err := b.Status(ctx, "nope"); !errors.Is(err, security.ErrAuthentication) {
		t.Errorf("Status(wrong password) = %v", err)
	}
	if err := b.Disable(ctx); err != nil {
		t.Fatal(err)
	}
	if info, _ := b.Status(ctx, "pw"); info != nil {
		t.Errorf("Status after Disable = %+v", info)
	}
}
