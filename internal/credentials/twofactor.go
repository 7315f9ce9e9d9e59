package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/awnumar/memguard"

	auditdomain "github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/security"
	"github.com/jcarweb/repuestospro-sub005/internal/vault"
	vaultdomain "github.com/jcarweb/repuestospro-sub005/internal/vault/domain"
)

const (
	backupCodeDigits = 8
	maxBackupCodes   = 100
)

// TwoFactorData is the sealed 2FA material.
type TwoFactorData struct {
	Secret      string
	BackupCodes []string
	EnabledAt   time.Time
}

type twoFactorJSON struct {
	Secret      string   `json:"secret"`
	BackupCodes []string `json:"backupCodes"`
	EnabledAt   int64    `json:"enabledAt"`
}

func (d TwoFactorData) MarshalJSON() ([]byte, error) {
	return json.Marshal(twoFactorJSON{Secret: d.Secret, BackupCodes: d.BackupCodes, EnabledAt: d.EnabledAt.UnixMilli()})
}

func (d *TwoFactorData) UnmarshalJSON(b []byte) error {
	var raw twoFactorJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = TwoFactorData{Secret: raw.Secret, BackupCodes: raw.BackupCodes, EnabledAt: time.UnixMilli(raw.EnabledAt).UTC()}
	return nil
}

// TwoFactor stores the 2FA secret and backup codes sealed under the account password.
type TwoFactor struct {
	vault  Vault
	events vault.EventRecorder
	nowF   func() time.Time
}

// NewTwoFactor returns the 2FA flow. events may be nil.
func NewTwoFactor(v Vault, events vault.EventRecorder) *TwoFactor {
	return &TwoFactor{vault: v, events: events, nowF: time.Now}
}

// Enable stores secret and backupCodes and records 2fa_enabled.
func (f *TwoFactor) Enable(ctx context.Context, secret string, backupCodes []string, password string) (*TwoFactorData, error) {
	if secret == "" {
		return nil, ErrInvalidSecret
	}
	d := &TwoFactorData{Secret: secret, BackupCodes: append([]string(nil), backupCodes...), EnabledAt: f.nowF().UTC()}
	if err := f.save(ctx, d, password); err != nil {
		return nil, err
	}
	if err := f.record(ctx, auditdomain.EventTwoFactorEnabled); err != nil {
		return nil, err
	}
	return d, nil
}

// Load opens the stored 2FA material.
func (f *TwoFactor) Load(ctx context.Context, password string) (*TwoFactorData, error) {
	b, ok, err := f.vault.Retrieve(ctx, vaultdomain.NameTwoFactor, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConfigured
	}
	defer memguard.WipeBytes(b)
	var d TwoFactorData
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("credentials: 2fa data: %w", security.ErrAuthentication)
	}
	return &d, nil
}

// ConsumeBackupCode removes code from the stored backup codes. It reports false when
// the code is not among them.
func (f *TwoFactor) ConsumeBackupCode(ctx context.Context, code, password string) (bool, error) {
	d, err := f.Load(ctx, password)
	if err != nil {
		return false, err
	}
	idx := -1
	for i, c := range d.BackupCodes {
		if security.Equal([]byte(c), []byte(code)) {
			idx = i
		}
	}
	if idx < 0 {
		return false, nil
	}
	d.BackupCodes = append(d.BackupCodes[:idx], d.BackupCodes[idx+1:]...)
	if err := f.save(ctx, d, password); err != nil {
		return false, err
	}
	return true, nil
}

// Disable deletes the 2FA material and records 2fa_disabled.
func (f *TwoFactor) Disable(ctx context.Context) error {
	if err := f.vault.Revoke(ctx, vaultdomain.NameTwoFactor); err != nil {
		return err
	}
	return f.record(ctx, auditdomain.EventTwoFactorDisabled)
}

func (f *TwoFactor) save(ctx context.Context, d *TwoFactorData, password string) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(b)
	return f.vault.Store(ctx, vaultdomain.NameTwoFactor, b, password)
}

func (f *TwoFactor) record(ctx context.Context, t auditdomain.EventType) error {
	if f.events == nil {
		return nil
	}
	_, err := f.events.Record(ctx, t, "", false)
	return err
}

// GenerateBackupCodes returns n random 8-digit codes. n must be between 1 and 100.
func GenerateBackupCodes(n int) ([]string, error) {
	if n < 1 || n > maxBackupCodes {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		c, err := security.GenerateDigits(backupCodeDigits)
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, nil
}
