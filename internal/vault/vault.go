// Package vault seals named secrets under a passphrase-derived key and persists
// them through the external key-value store.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"

	auditdomain "github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/security"
	"github.com/jcarweb/repuestospro-sub005/internal/vault/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/vault/repository"
)

// ReasonRekey is recorded on the password_change event appended by Rekey.
const ReasonRekey = "vault_rekey"

// EventRecorder appends security events. *audit.Log satisfies it.
type EventRecorder interface {
	Record(ctx context.Context, t auditdomain.EventType, reason string, failed bool) (auditdomain.Event, error)
}

// Stats is a diagnostic view over the stored entries.
type Stats struct {
	Count        int
	LastStoredAt time.Time
	// PerNameOK holds the outcome of the last passphrase check this Vault performed for
	// each entry since it was stored. Entries never checked are absent.
	PerNameOK map[string]bool
}

// Vault stores and opens sealed entries. Operations on one name are serialized;
// different names never contend. RevokeAll and Rekey exclude every other operation.
type Vault struct {
	repo     repository.Repository
	kdf      security.KDFParams
	nowF     func() time.Time
	events   EventRecorder
	log      *zap.Logger
	global   sync.RWMutex
	locks    sync.Map // name -> *sync.Mutex
	checkMu  sync.Mutex
	verified map[string]bool
}

// Option configures a Vault.
type Option func(*Vault)

// WithKDFParams sets the work factor for newly stored entries. Existing entries keep
// the parameters they were sealed with.
func WithKDFParams(p security.KDFParams) Option { return func(v *Vault) { v.kdf = p } }

// WithClock sets the clock used for StoredAt.
func WithClock(now func() time.Time) Option { return func(v *Vault) { v.nowF = now } }

// WithEventRecorder records a password_change event after Rekey.
func WithEventRecorder(r EventRecorder) Option { return func(v *Vault) { v.events = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.log = l
		}
	}
}

// New returns a Vault persisting through repo.
func New(repo repository.Repository, opts ...Option) *Vault {
	v := &Vault{
		repo:     repo,
		kdf:      security.DefaultKDFParams(),
		nowF:     time.Now,
		log:      zap.NewNop(),
		verified: make(map[string]bool),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *Vault) lock(name string) func() {
	v.global.RLock()
	m, _ := v.locks.LoadOrStore(name, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return func() {
		mu.Unlock()
		v.global.RUnlock()
	}
}

// Store seals plaintext under a key derived from passphrase and a fresh salt, then
// persists it under name, replacing any previous entry.
func (v *Vault) Store(ctx context.Context, name string, plaintext []byte, passphrase string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	unlock := v.lock(name)
	defer unlock()

	e, err := v.seal(ctx, name, plaintext, passphrase)
	if err != nil {
		return err
	}
	if err := v.repo.Put(ctx, name, e); err != nil {
		return err
	}
	v.forget(name)
	v.log.Debug("vault entry stored", zap.String("name", name), zap.Uint32("kdf_memory_kib", e.KDF.MemoryKiB))
	return nil
}

// Retrieve opens the entry stored under name. ok is false when no entry exists.
// A wrong passphrase or a corrupted entry returns security.ErrAuthentication.
func (v *Vault) Retrieve(ctx context.Context, name, passphrase string) ([]byte, bool, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, false, err
	}
	unlock := v.lock(name)
	defer unlock()
	return v.retrieveLocked(ctx, name, passphrase)
}

func (v *Vault) retrieveLocked(ctx context.Context, name, passphrase string) ([]byte, bool, error) {
	e, err := v.repo.Get(ctx, name)
	if errors.Is(err, domain.ErrMalformed) {
		v.remember(name, false)
		return nil, false, fmt.Errorf("vault: %s: %w", name, security.ErrAuthentication)
	}
	if err != nil {
		return nil, false, err
	}
	if e == nil {
		return nil, false, nil
	}
	pt, err := v.open(ctx, name, e, passphrase)
	if err != nil {
		if errors.Is(err, security.ErrAuthentication) {
			v.remember(name, false)
		}
		return nil, false, err
	}
	v.remember(name, true)
	return pt, true, nil
}

// VerifyIntegrity reports whether the entry under name opens with passphrase. The
// plaintext is discarded. Storage errors are returned, not reported as false.
func (v *Vault) VerifyIntegrity(ctx context.Context, name, passphrase string) (bool, error) {
	pt, ok, err := v.Retrieve(ctx, name, passphrase)
	if errors.Is(err, security.ErrAuthentication) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	wipe(pt)
	return ok, nil
}

// Revoke deletes the entry under name. Revoking a missing entry is not an error.
func (v *Vault) Revoke(ctx context.Context, name string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	unlock := v.lock(name)
	defer unlock()
	if err := v.repo.Delete(ctx, name); err != nil {
		return err
	}
	v.forget(name)
	v.log.Info("vault entry revoked", zap.String("name", name))
	return nil
}

// RevokeAll deletes every entry.
func (v *Vault) RevokeAll(ctx context.Context) error {
	v.global.Lock()
	defer v.global.Unlock()

	names, err := v.repo.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := v.repo.Delete(ctx, name); err != nil {
			return err
		}
		v.forget(name)
	}
	v.log.Info("vault wiped", zap.Int("entries", len(names)))
	return nil
}

// Names lists the stored entry names, sorted.
func (v *Vault) Names(ctx context.Context) ([]string, error) {
	return v.repo.Names(ctx)
}

// Stats summarizes the stored entries without any passphrase.
func (v *Vault) Stats(ctx context.Context) (Stats, error) {
	v.global.RLock()
	defer v.global.RUnlock()

	names, err := v.repo.Names(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Count: len(names), PerNameOK: make(map[string]bool)}
	for _, name := range names {
		e, err := v.repo.Get(ctx, name)
		if errors.Is(err, domain.ErrMalformed) {
			continue
		}
		if err != nil {
			return Stats{}, err
		}
		if e != nil && e.StoredAt.After(st.LastStoredAt) {
			st.LastStoredAt = e.StoredAt
		}
	}

	v.checkMu.Lock()
	for _, name := range names {
		if ok, checked := v.verified[name]; checked {
			st.PerNameOK[name] = ok
		}
	}
	v.checkMu.Unlock()
	return st, nil
}

// RekeyError reports a Rekey that failed while writing. Entries in Rewritten open
// with the new passphrase, entries in Pending still open with the old one.
type RekeyError struct {
	Rewritten []string
	Pending   []string
	Err       error
}

func (e *RekeyError) Error() string {
	return fmt.Sprintf("vault: rekey stopped after %d of %d entries (rewritten %v, pending %v): %v",
		len(e.Rewritten), len(e.Rewritten)+len(e.Pending), e.Rewritten, e.Pending, e.Err)
}

func (e *RekeyError) Unwrap() error { return e.Err }

// Rekey re-seals every entry under newPassphrase. All entries are opened first; if
// any fails to open nothing is written. Writes are per entry, so a storage failure
// while writing leaves the vault under two passphrases; the returned *RekeyError
// names which entries use which. On success a password_change event is recorded.
func (v *Vault) Rekey(ctx context.Context, oldPassphrase, newPassphrase string) error {
	v.global.Lock()
	defer v.global.Unlock()

	names, err := v.repo.Names(ctx)
	if err != nil {
		return err
	}
	plain := make(map[string][]byte, len(names))
	defer func() {
		for _, pt := range plain {
			wipe(pt)
		}
	}()
	for _, name := range names {
		pt, ok, err := v.retrieveLocked(ctx, name, oldPassphrase)
		if err != nil {
			return err
		}
		if ok {
			plain[name] = pt
		}
	}

	sealed := make(map[string]*domain.Entry, len(plain))
	for name, pt := range plain {
		e, err := v.seal(ctx, name, pt, newPassphrase)
		if err != nil {
			return err
		}
		sealed[name] = e
	}
	order := make([]string, 0, len(sealed))
	for _, name := range names {
		if _, ok := sealed[name]; ok {
			order = append(order, name)
		}
	}
	for i, name := range order {
		if err := v.repo.Put(ctx, name, sealed[name]); err != nil {
			rerr := &RekeyError{Rewritten: order[:i:i], Pending: order[i:], Err: err}
			v.log.Error("vault rekey incomplete",
				zap.Strings("rewritten", rerr.Rewritten),
				zap.Strings("pending", rerr.Pending),
				zap.Error(err),
			)
			return rerr
		}
		v.forget(name)
	}

	v.log.Info("vault rekeyed", zap.Int("entries", len(sealed)))
	if v.events != nil {
		if _, err := v.events.Record(ctx, auditdomain.EventPasswordChange, ReasonRekey, false); err != nil {
			v.log.Warn("vault: failed to record password change", zap.Error(err))
		}
	}
	return nil
}

func (v *Vault) seal(ctx context.Context, name string, plaintext []byte, passphrase string) (*domain.Entry, error) {
	salt, err := security.NewSalt()
	if err != nil {
		return nil, err
	}
	key, err := security.Derive(ctx, passphrase, salt, v.kdf)
	if err != nil {
		return nil, err
	}
	defer key.Wipe()

	ct, nonce, err := security.Encrypt(plaintext, key, []byte(name))
	if err != nil {
		return nil, err
	}
	return &domain.Entry{
		Version:    domain.EntryVersion,
		Ciphertext: ct,
		Nonce:      nonce,
		Salt:       salt,
		StoredAt:   v.nowF().UTC(),
		KDF:        v.kdf,
	}, nil
}

// open derives the entry key and decrypts. Anything wrong with the stored entry,
// including unusable KDF parameters, is an authentication failure.
func (v *Vault) open(ctx context.Context, name string, e *domain.Entry, passphrase string) ([]byte, error) {
	if err := e.Check(); err != nil {
		return nil, fmt.Errorf("vault: %s: %w", name, security.ErrAuthentication)
	}
	// Stored parameters are untrusted; out-of-range work factors never reach argon2.
	if err := e.KDF.Validate(); err != nil {
		return nil, fmt.Errorf("vault: %s: %w", name, security.ErrAuthentication)
	}
	key, err := security.Derive(ctx, passphrase, e.Salt, e.KDF)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("vault: %s: %w", name, security.ErrAuthentication)
	}
	defer key.Wipe()

	pt, err := security.Decrypt(e.Ciphertext, e.Nonce, key, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("vault: %s: %w", name, security.ErrAuthentication)
	}
	return pt, nil
}

func (v *Vault) remember(name string, ok bool) {
	v.checkMu.Lock()
	v.verified[name] = ok
	v.checkMu.Unlock()
}

func (v *Vault) forget(name string) {
	v.checkMu.Lock()
	delete(v.verified, name)
	v.checkMu.Unlock()
}

func wipe(b []byte) {
	if len(b) > 0 {
		memguard.WipeBytes(b)
	}
}
