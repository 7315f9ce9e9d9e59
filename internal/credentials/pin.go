package credentials

import (
	"context"
	"regexp"

	"github.com/awnumar/memguard"

	"github.com/jcarweb/repuestospro-sub005/internal/security"
	vaultdomain "github.com/jcarweb/repuestospro-sub005/internal/vault/domain"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

// PIN stores a numeric unlock PIN sealed under the account password.
type PIN struct {
	vault Vault
}

// NewPIN returns the PIN flow.
func NewPIN(v Vault) *PIN { return &PIN{vault: v} }

// Set validates and stores pin, replacing any previous one.
func (p *PIN) Set(ctx context.Context, pin, password string) error {
	if !pinPattern.MatchString(pin) {
		return ErrInvalidPIN
	}
	return p.vault.Store(ctx, vaultdomain.NamePIN, []byte(pin), password)
}

// Verify reports whether pin matches the stored one. A wrong password returns
// security.ErrAuthentication; no stored PIN returns ErrNotConfigured.
func (p *PIN) Verify(ctx context.Context, pin, password string) (bool, error) {
	stored, ok, err := p.vault.Retrieve(ctx, vaultdomain.NamePIN, password)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotConfigured
	}
	defer memguard.WipeBytes(stored)
	return security.Equal(stored, []byte(pin)), nil
}

// Remove deletes the stored PIN.
func (p *PIN) Remove(ctx context.Context) error {
	return p.vault.Revoke(ctx, vaultdomain.NamePIN)
}
