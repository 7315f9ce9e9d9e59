package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jcarweb/repuestospro-sub005/internal/security"
)

// EntryVersion is the current sealed entry layout.
const EntryVersion = 1

// Well-known entry names used by the credential flows.
const (
	NamePIN       = "encrypted_pin"
	NameTwoFactor = "encrypted_2fa_data"
	NameBiometric = "encrypted_biometric_data"
)

var (
	// ErrInvalidName is returned for names outside [a-z0-9_.-]{1,64}.
	ErrInvalidName = errors.New("invalid vault entry name")
	// ErrMalformed means a persisted entry could not be decoded.
	ErrMalformed = errors.New("malformed vault entry")
)

var namePattern = regexp.MustCompile(`^[a-z0-9_.-]{1,64}$`)

// ValidateName checks an entry name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Entry is one sealed record. It is only useful together with the passphrase its key
// was derived from.
type Entry struct {
	Version    int
	Ciphertext []byte
	Nonce      []byte
	Salt       []byte
	StoredAt   time.Time
	KDF        security.KDFParams
}

type entryJSON struct {
	Version    int                `json:"version"`
	Ciphertext []byte             `json:"ciphertext"`
	Nonce      []byte             `json:"nonce"`
	Salt       []byte             `json:"salt"`
	StoredAt   int64              `json:"storedAt"`
	KDF        security.KDFParams `json:"kdf"`
}

// MarshalJSON encodes byte fields as base64 and StoredAt as epoch milliseconds.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Version:    e.Version,
		Ciphertext: e.Ciphertext,
		Nonce:      e.Nonce,
		Salt:       e.Salt,
		StoredAt:   e.StoredAt.UnixMilli(),
		KDF:        e.KDF,
	})
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = Entry{
		Version:    raw.Version,
		Ciphertext: raw.Ciphertext,
		Nonce:      raw.Nonce,
		Salt:       raw.Salt,
		StoredAt:   time.UnixMilli(raw.StoredAt).UTC(),
		KDF:        raw.KDF,
	}
	return nil
}

// Check reports whether the entry carries everything Open needs.
func (e Entry) Check() error {
	switch {
	case e.Version != EntryVersion:
		return fmt.Errorf("%w: version %d", ErrMalformed, e.Version)
	case len(e.Ciphertext) == 0, len(e.Nonce) == 0, len(e.Salt) == 0:
		return fmt.Errorf("%w: missing fields", ErrMalformed)
	}
	return nil
}
