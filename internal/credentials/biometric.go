package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcarweb/repuestospro-sub005/internal/security"
	vaultdomain "github.com/jcarweb/repuestospro-sub005/internal/vault/domain"
)

// DefaultPrompt is shown by Enroll.
const DefaultPrompt = "Confirm your identity to enable biometric unlock"

// AuthResult is the hardware prompt outcome.
type AuthResult struct {
	Success   bool
	ErrorCode string
}

// Hardware is the device biometric collaborator. Templates never leave it.
type Hardware interface {
	HasHardware(ctx context.Context) (bool, error)
	IsEnrolled(ctx context.Context) (bool, error)
	Authenticate(ctx context.Context, prompt string) (AuthResult, error)
}

// BiometricInfo is the only biometric data stored: metadata, no template.
type BiometricInfo struct {
	Type      string
	SetupDate time.Time
}

type biometricJSON struct {
	Type      string `json:"type"`
	SetupDate int64  `json:"setupDate"`
}

func (b BiometricInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(biometricJSON{Type: b.Type, SetupDate: b.SetupDate.UnixMilli()})
}

func (b *BiometricInfo) UnmarshalJSON(data []byte) error {
	var raw biometricJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = BiometricInfo{Type: raw.Type, SetupDate: time.UnixMilli(raw.SetupDate).UTC()}
	return nil
}

// Biometric enrolls biometric unlock.
type Biometric struct {
	vault Vault
	hw    Hardware
	nowF  func() time.Time
}

// NewBiometric returns the biometric flow.
func NewBiometric(v Vault, hw Hardware) *Biometric {
	return &Biometric{vault: v, hw: hw, nowF: time.Now}
}

// Enroll checks hardware and enrollment, prompts the user, then stores the metadata.
func (b *Biometric) Enroll(ctx context.Context, kind, password string) (*BiometricInfo, error) {
	has, err := b.hw.HasHardware(ctx)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, ErrNoHardware
	}
	enrolled, err := b.hw.IsEnrolled(ctx)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}
	res, err := b.hw.Authenticate(ctx, DefaultPrompt)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: %s", ErrBiometricFail, res.ErrorCode)
	}

	info := &BiometricInfo{Type: kind, SetupDate: b.nowF().UTC()}
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	if err := b.vault.Store(ctx, vaultdomain.NameBiometric, raw, password); err != nil {
		return nil, err
	}
	return info, nil
}

// Status returns the stored metadata, or nil when biometric unlock is not set up.
func (b *Biometric) Status(ctx context.Context, password string) (*BiometricInfo, error) {
	raw, ok, err := b.vault.Retrieve(ctx, vaultdomain.NameBiometric, password)
	if err != nil || !ok {
		return nil, err
	}
	var info BiometricInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("credentials: biometric data: %w", security.ErrAuthentication)
	}
	return &info, nil
}

// Disable deletes the biometric metadata.
func (b *Biometric) Disable(ctx context.Context) error {
	return b.vault.Revoke(ctx, vaultdomain.NameBiometric)
}
