// Package credentials implements the PIN, two-factor and biometric setup flows on
// top of the vault.
package credentials

import (
	"context"
	"errors"
)

var (
	ErrInvalidPIN    = errors.New("pin must be 4 to 6 digits")
	ErrInvalidSecret = errors.New("two-factor secret required")
	// ErrNotConfigured is returned when the flow's vault entry does not exist.
	ErrNotConfigured = errors.New("credential not configured")
	ErrNoHardware    = errors.New("biometric hardware unavailable")
	ErrNotEnrolled   = errors.New("no biometrics enrolled on device")
	ErrBiometricFail = errors.New("biometric authentication failed")
	ErrInvalidCount  = errors.New("backup code count out of range")
)

// Vault is the subset of *vault.Vault the flows use.
type Vault interface {
	Store(ctx context.Context, name string, plaintext []byte, passphrase string) error
	Retrieve(ctx context.Context, name, passphrase string) ([]byte, bool, error)
	Revoke(ctx context.Context, name string) error
}
