package security

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
)

// AlgArgon2id is the only KDF this package derives with.
const AlgArgon2id = "argon2id"

// Salt and key sizes.
const (
	SaltSize    = 16
	MinSaltSize = 8
	KeySize     = 32
)

// Default Argon2id work factor: 3 passes over 64 MiB with 4 lanes. Changing these
// values does not break existing vault entries because each entry records the
// parameters it was sealed with.
const (
	DefaultKDFTime      uint32 = 3
	DefaultKDFMemoryKiB uint32 = 64 * 1024
	DefaultKDFThreads   uint8  = 4

	minKDFMemoryKiB uint32 = 8 * 1024

	// Ceilings on persisted parameters. A stored entry above them is rejected
	// before any work starts.
	MaxKDFTime      uint32 = 10
	MaxKDFMemoryKiB uint32 = 1024 * 1024
	MaxKDFThreads   uint8  = 64
)

var (
	// ErrKeyDerivation is returned when the KDF cannot run: bad parameters, a short
	// salt, or a canceled context. A wrong secret never causes it.
	ErrKeyDerivation = errors.New("key derivation failed")
)

// KDFParams is the work factor a key was derived with. It is persisted next to
// every ciphertext.
type KDFParams struct {
	Algorithm string `json:"alg"`
	Time      uint32 `json:"t"`
	MemoryKiB uint32 `json:"m"`
	Threads   uint8  `json:"p"`
	KeyLen    uint32 `json:"len"`
}

// DefaultKDFParams returns the production work factor.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Algorithm: AlgArgon2id,
		Time:      DefaultKDFTime,
		MemoryKiB: DefaultKDFMemoryKiB,
		Threads:   DefaultKDFThreads,
		KeyLen:    KeySize,
	}
}

// Validate rejects parameters Derive cannot or should not run with.
func (p KDFParams) Validate() error {
	switch {
	case p.Algorithm != AlgArgon2id:
		return fmt.Errorf("%w: unsupported algorithm %q", ErrKeyDerivation, p.Algorithm)
	case p.Time < 1 || p.Time > MaxKDFTime:
		return fmt.Errorf("%w: time must be between 1 and %d", ErrKeyDerivation, MaxKDFTime)
	case p.MemoryKiB < minKDFMemoryKiB || p.MemoryKiB > MaxKDFMemoryKiB:
		return fmt.Errorf("%w: memory must be between %d and %d KiB", ErrKeyDerivation, minKDFMemoryKiB, MaxKDFMemoryKiB)
	case p.Threads < 1 || p.Threads > MaxKDFThreads:
		return fmt.Errorf("%w: threads must be between 1 and %d", ErrKeyDerivation, MaxKDFThreads)
	case p.KeyLen != KeySize:
		return fmt.Errorf("%w: key length must be %d", ErrKeyDerivation, KeySize)
	}
	return nil
}

// Key is derived key material. Call Wipe once it is no longer needed.
type Key struct {
	b []byte
}

// NewKey copies raw into a Key. raw must be KeySize bytes.
func NewKey(raw []byte) (*Key, error) {
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrInvalidKey, KeySize)
	}
	b := make([]byte, KeySize)
	copy(b, raw)
	return &Key{b: b}, nil
}

// Bytes exposes the key material. The slice is invalid after Wipe.
func (k *Key) Bytes() []byte {
	if k == nil {
		return nil
	}
	return k.b
}

// Wipe zeroes the key material. Safe on nil and safe to call twice.
func (k *Key) Wipe() {
	if k == nil || k.b == nil {
		return
	}
	memguard.WipeBytes(k.b)
	k.b = nil
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrKeyDerivation, err)
	}
	return salt, nil
}

// Derive stretches secret with salt into a key. The result is deterministic for the
// same inputs. Argon2id blocks for a noticeable time, so it runs on its own goroutine
// and ctx cancellation returns early; the abandoned computation finishes and its
// output is wiped.
func Derive(ctx context.Context, secret string, salt []byte, p KDFParams) (*Key, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes", ErrKeyDerivation, MinSaltSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}

	pw := []byte(secret)
	done := make(chan []byte, 1)
	go func() {
		out := argon2.IDKey(pw, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
		memguard.WipeBytes(pw)
		done <- out
	}()

	select {
	case out := <-done:
		return &Key{b: out}, nil
	case <-ctx.Done():
		go func() { memguard.WipeBytes(<-done) }()
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, ctx.Err())
	}
}
