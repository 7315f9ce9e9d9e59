// Package session owns the single active session record: its lifecycle, liveness
// policy, token refresh and forced logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jcarweb/repuestospro-sub005/internal/audit"
	auditdomain "github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
	devicedomain "github.com/jcarweb/repuestospro-sub005/internal/device/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/logger"
	policydomain "github.com/jcarweb/repuestospro-sub005/internal/policy/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/policy/engine"
	"github.com/jcarweb/repuestospro-sub005/internal/session/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/session/repository"
)

// Defaults applied by NewManager to zero Options durations.
const (
	DefaultSessionTTL        = 24 * time.Hour
	DefaultInactivityTimeout = 30 * time.Minute
	DefaultRefreshWindow     = 5 * time.Minute
	DefaultRefreshTimeout    = 10 * time.Second
)

// ReasonTwoFactorFailed is recorded on the failed login appended by CompleteTwoFactor.
const ReasonTwoFactorFailed = "2fa_verification_failed"

// EventLog is the subset of *audit.Log the manager uses.
type EventLog interface {
	Record(ctx context.Context, t auditdomain.EventType, reason string, failed bool) (auditdomain.Event, error)
	Recent(ctx context.Context, window time.Duration) ([]auditdomain.Event, error)
}

// DeviceSource supplies the device snapshot stored with a new session.
type DeviceSource interface {
	Snapshot(ctx context.Context) (devicedomain.Info, error)
}

// Refresher exchanges a refresh token for new credentials.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (RefreshResult, error)
}

// RefreshResult is a successful refresh. RefreshToken is empty when not rotated.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TwoFactorVerifier checks a 2FA code for a pending login.
type TwoFactorVerifier interface {
	VerifyTwoFactor(ctx context.Context, tempToken, code string) (VerifyResult, error)
}

// VerifyResult is a successful 2FA verification.
type VerifyResult struct {
	AccessToken  string
	RefreshToken string
	User         domain.User
}

// Options wires a Manager. Repo and Events are required.
type Options struct {
	Repo      repository.Repository
	Events    EventLog
	Detector  audit.Detector
	Policy    engine.Evaluator // nil means engine.StaticEvaluator
	Refresher Refresher        // nil makes every refresh fail
	Device    DeviceSource     // nil records an empty device snapshot
	Now       func() time.Time
	Logger    *zap.Logger

	SessionTTL        time.Duration
	InactivityTimeout time.Duration
	RefreshWindow     time.Duration
	// ExpiryGrace keeps a session readable for a short while past ExpiresAt.
	ExpiryGrace    time.Duration
	RefreshTimeout time.Duration
}

// Manager is the session state machine. It is safe for concurrent use. The
// repository is the source of truth; the manager keeps a write-through copy that is
// loaded on first use and reloaded by Restore.
type Manager struct {
	opts Options
	log  *zap.Logger
	sf   singleflight.Group

	mu     sync.Mutex
	loaded bool
	cur    *domain.Record
	gen    uint64 // bumped whenever the session is created or cleared
	state  domain.State
}

// NewManager validates opts and applies defaults.
func NewManager(opts Options) (*Manager, error) {
	if opts.Repo == nil {
		return nil, errors.New("session: repository is required")
	}
	if opts.Events == nil {
		return nil, errors.New("session: event log is required")
	}
	if opts.Detector.Window <= 0 {
		opts.Detector = audit.DefaultDetector()
	}
	if opts.Policy == nil {
		opts.Policy = engine.StaticEvaluator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = DefaultInactivityTimeout
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = DefaultRefreshWindow
	}
	if opts.ExpiryGrace < 0 {
		opts.ExpiryGrace = 0
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	return &Manager{opts: opts, log: logger.OrNop(opts.Logger)}, nil
}

func (m *Manager) now() time.Time { return m.opts.Now().UTC() }

// Restore reloads the persisted session. A corrupt record is erased and reported as
// no session.
func (m *Manager) Restore(ctx context.Context) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	return m.cur.Clone(), nil
}

func (m *Manager) ensureLoadedLocked(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	rec, err := m.opts.Repo.Load(ctx)
	if errors.Is(err, domain.ErrCorrupt) {
		m.log.Warn("session record unreadable; erasing", zap.Error(err))
		if err := m.opts.Repo.Delete(ctx); err != nil {
			return err
		}
		m.record(ctx, auditdomain.EventSuspiciousActivity, audit.ReasonCorruptSession, false)
		rec, err = nil, nil
	}
	if err != nil {
		return err
	}
	same := sameSession(m.cur, rec)
	if !same {
		m.gen++
	}
	m.cur = rec
	m.loaded = true
	switch {
	case rec == nil:
		m.state = domain.StateNoSession
	case same && m.state == domain.StateRefreshing:
		// the in-flight refresh still applies to this record
	default:
		m.state = domain.StateActive
	}
	return nil
}

// sameSession reports whether b is the session a describes, possibly with newer
// activity. Records with different credentials are different sessions.
func sameSession(a, b *domain.Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.User.ID == b.User.ID &&
		a.AccessToken == b.AccessToken &&
		a.RefreshToken == b.RefreshToken
}

// CreateSession starts a session for user, replacing any current one. It records a
// login, then evaluates recent activity; when the logout policy decides so the new
// session is cleared again and ErrSuspiciousActivity is returned.
func (m *Manager) CreateSession(ctx context.Context, user domain.User, accessToken, refreshToken string) (*domain.Record, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: access token required", ErrInvalidCredentials)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	if m.cur != nil {
		if err := m.clearLocked(ctx, audit.ReasonReplaced, auditdomain.EventLogout); err != nil {
			return nil, err
		}
	}

	var dev devicedomain.Info
	if m.opts.Device != nil {
		info, err := m.opts.Device.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		dev = info
	}
	now := m.now()
	rec := &domain.Record{
		User:           user,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ExpiresAt:      now.Add(m.opts.SessionTTL),
		LastActivityAt: now,
		Device:         dev,
	}
	if err := m.opts.Repo.Save(ctx, rec); err != nil {
		return nil, err
	}
	m.cur = rec
	m.gen++
	m.state = domain.StateActive
	m.log.Info("session created",
		zap.String("user_id", user.ID),
		zap.String("device_id", dev.DeviceID),
		zap.Bool("refreshable", rec.HasRefreshToken()),
		zap.Time("expires_at", rec.ExpiresAt),
	)
	m.record(ctx, auditdomain.EventLogin, "", false)

	forced, err := m.enforceLocked(ctx)
	if err != nil {
		return nil, err
	}
	if forced {
		return nil, ErrSuspiciousActivity
	}
	return rec.Clone(), nil
}

// RecordFailedLogin appends a failed login and evaluates recent activity. When the
// logout policy forces a logout of the current session ErrSuspiciousActivity is
// returned along with the verdict.
func (m *Manager) RecordFailedLogin(ctx context.Context, reason string) (audit.Verdict, error) {
	if _, err := m.opts.Events.Record(ctx, auditdomain.EventLogin, reason, true); err != nil {
		return audit.Verdict{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return audit.Verdict{}, err
	}
	verdict, err := m.verdict(ctx)
	if err != nil {
		return audit.Verdict{}, err
	}
	forced, err := m.applyVerdictLocked(ctx, verdict)
	if err != nil {
		return verdict, err
	}
	if forced {
		return verdict, ErrSuspiciousActivity
	}
	return verdict, nil
}

// enforceLocked evaluates recent activity for the current session. Failures to read
// the trail are logged; the session stands.
func (m *Manager) enforceLocked(ctx context.Context) (bool, error) {
	verdict, err := m.verdict(ctx)
	if err != nil {
		m.log.Warn("session: activity check skipped", zap.Error(err))
		return false, nil
	}
	return m.applyVerdictLocked(ctx, verdict)
}

func (m *Manager) verdict(ctx context.Context) (audit.Verdict, error) {
	events, err := m.opts.Events.Recent(ctx, m.opts.Detector.Window)
	if err != nil {
		return audit.Verdict{}, err
	}
	return m.opts.Detector.Evaluate(events, m.now()), nil
}

// applyVerdictLocked records a suspicious verdict and asks the logout policy whether
// to end the current session.
func (m *Manager) applyVerdictLocked(ctx context.Context, v audit.Verdict) (bool, error) {
	if !v.Suspicious {
		return false, nil
	}
	decision, err := m.opts.Policy.EvaluateLogout(ctx, policydomain.LogoutInput{
		Suspicious:      v.Suspicious,
		FailedLogins:    v.FailedLogins,
		DistinctDevices: v.DistinctDevices,
		Reasons:         v.Reasons,
		SessionActive:   m.cur != nil,
	})
	if err != nil {
		m.log.Warn("session: logout policy failed; using static policy", zap.Error(err))
		decision, _ = engine.StaticEvaluator{}.EvaluateLogout(ctx, policydomain.LogoutInput{
			Suspicious: true, Reasons: v.Reasons, SessionActive: m.cur != nil,
		})
	}
	m.log.Warn("suspicious activity detected",
		zap.Int("failed_logins", v.FailedLogins),
		zap.Int("distinct_devices", v.DistinctDevices),
		zap.Strings("reasons", v.Reasons),
		zap.Bool("force_logout", decision.ForceLogout),
	)
	if decision.ForceLogout && m.cur != nil {
		if err := m.clearLocked(ctx, decision.Reason, auditdomain.EventSuspiciousActivity); err != nil {
			return false, err
		}
		return true, nil
	}
	m.record(ctx, auditdomain.EventSuspiciousActivity, v.Reason(), false)
	return false, nil
}

// Touch marks user activity. It never moves LastActivityAt backwards and is a no-op
// without a session.
func (m *Manager) Touch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if m.cur == nil {
		return nil
	}
	now := m.now()
	if !now.After(m.cur.LastActivityAt) {
		return nil
	}
	next := m.cur.Clone()
	next.LastActivityAt = now
	if err := m.opts.Repo.Save(ctx, next); err != nil {
		return err
	}
	m.cur = next
	return nil
}

// errNeedsRefresh is the internal liveness signal for the refresh window.
var errNeedsRefresh = errors.New("session needs refresh")

// livenessLocked classifies the current session without side effects.
func (m *Manager) livenessLocked(now time.Time) error {
	r := m.cur
	if now.Sub(r.LastActivityAt) > m.opts.InactivityTimeout {
		return ErrSessionInactive
	}
	if !now.Before(r.ExpiresAt.Add(m.opts.ExpiryGrace)) {
		return ErrSessionExpired
	}
	if r.ExpiresAt.Sub(now) <= m.opts.RefreshWindow && r.HasRefreshToken() {
		return errNeedsRefresh
	}
	return nil
}

// CheckLiveness applies the liveness policy: an inactive session is cleared first,
// then one past its expiry (plus grace), and one inside the refresh window is
// refreshed. Cleared sessions are reported through the Liveness value, not an error.
func (m *Manager) CheckLiveness(ctx context.Context) (domain.Liveness, error) {
	m.mu.Lock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		m.mu.Unlock()
		return domain.LivenessNone, err
	}
	if m.cur == nil {
		m.mu.Unlock()
		return domain.LivenessNone, nil
	}
	signal := m.livenessLocked(m.now())
	switch {
	case errors.Is(signal, ErrSessionInactive):
		err := m.clearLocked(ctx, audit.ReasonInactivity, auditdomain.EventLogout)
		m.mu.Unlock()
		if err != nil {
			return domain.LivenessActive, err
		}
		return domain.LivenessClearedInactive, nil
	case errors.Is(signal, ErrSessionExpired):
		err := m.clearLocked(ctx, audit.ReasonExpired, auditdomain.EventLogout)
		m.mu.Unlock()
		if err != nil {
			return domain.LivenessActive, err
		}
		return domain.LivenessClearedExpired, nil
	case errors.Is(signal, errNeedsRefresh):
		m.mu.Unlock()
	default:
		m.mu.Unlock()
		return domain.LivenessActive, nil
	}

	err := m.Refresh(ctx)
	switch {
	case err == nil:
		return domain.LivenessRefreshed, nil
	case errors.Is(err, ErrRefreshFailed):
		return domain.LivenessRefreshFailed, nil
	case errors.Is(err, ErrSessionChanged):
		if m.IsActive() {
			return domain.LivenessActive, nil
		}
		return domain.LivenessNone, nil
	default:
		return domain.LivenessActive, err
	}
}

// Refresh exchanges the refresh token for new credentials. Concurrent calls share one
// request. On success the tokens are replaced and ExpiresAt never decreases. On any
// failure the session is force-cleared with reason refresh_failed. Without a refresh
// token ErrRefreshFailed is returned and the session is left as is.
//
// The request runs with its own timeout; a caller whose ctx ends stops waiting but
// does not cancel the shared request.
func (m *Manager) Refresh(ctx context.Context) error {
	ch := m.sf.DoChan("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RefreshTimeout)
		defer cancel()
		return nil, m.refresh(rctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.cur == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if !m.cur.HasRefreshToken() {
		m.mu.Unlock()
		return fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}
	gen := m.gen
	token := m.cur.RefreshToken
	m.state = domain.StateRefreshing
	m.mu.Unlock()

	var (
		res RefreshResult
		err error
	)
	if m.opts.Refresher == nil {
		err = errors.New("no refresher configured")
	} else {
		res, err = m.opts.Refresher.Refresh(ctx, token)
	}
	if err == nil && res.AccessToken == "" {
		err = errors.New("empty access token")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.cur == nil {
		m.log.Info("session changed during refresh; result dropped")
		return ErrSessionChanged
	}
	m.state = domain.StateActive

	if err != nil {
		m.log.Warn("token refresh failed",
			zap.String("user_id", m.cur.User.ID),
			zap.String("refresh_token", logger.Redact(token)),
			zap.Error(err),
		)
		if cerr := m.clearLocked(context.WithoutCancel(ctx), audit.ReasonRefreshFailed, auditdomain.EventSuspiciousActivity); cerr != nil {
			return errors.Join(fmt.Errorf("%w: %w", ErrRefreshFailed, err), cerr)
		}
		if errors.Is(err, ErrRefreshFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	next := m.cur.Clone()
	next.AccessToken = res.AccessToken
	if res.RefreshToken != "" {
		next.RefreshToken = res.RefreshToken
	}
	if res.ExpiresAt.After(next.ExpiresAt) {
		next.ExpiresAt = res.ExpiresAt.UTC()
	}
	if err := m.opts.Repo.Save(ctx, next); err != nil {
		return err
	}
	m.cur = next
	m.log.Info("token refreshed",
		zap.String("user_id", next.User.ID),
		zap.Bool("rotated", res.RefreshToken != ""),
		zap.Time("expires_at", next.ExpiresAt),
	)
	m.record(ctx, auditdomain.EventTokenRefresh, "", false)
	return nil
}

// ClearSession ends the current session. Security-driven reasons are recorded as
// suspicious_activity, all others as logout. Vault entries are never touched. No-op
// without a session.
func (m *Manager) ClearSession(ctx context.Context, reason string) error {
	if reason == "" {
		reason = audit.ReasonUserLogout
	}
	return m.clear(ctx, reason, audit.ClearEventType(reason))
}

// ForceLogout ends the current session and always records suspicious_activity. It
// may be called while a refresh is in flight; the refresh result is then dropped.
func (m *Manager) ForceLogout(ctx context.Context, reason string) error {
	if reason == "" {
		reason = audit.ReasonSuspiciousActivity
	}
	return m.clear(ctx, reason, auditdomain.EventSuspiciousActivity)
}

func (m *Manager) clear(ctx context.Context, reason string, t auditdomain.EventType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if m.cur == nil {
		return nil
	}
	return m.clearLocked(ctx, reason, t)
}

// clearLocked deletes the record, then records one event of type t. If the delete
// fails the session is kept.
func (m *Manager) clearLocked(ctx context.Context, reason string, t auditdomain.EventType) error {
	if err := m.opts.Repo.Delete(ctx); err != nil {
		return err
	}
	userID := ""
	if m.cur != nil {
		userID = m.cur.User.ID
	}
	m.cur = nil
	m.gen++
	m.state = domain.StateNoSession
	m.log.Info("session cleared", zap.String("user_id", userID), zap.String("reason", reason), zap.String("event_type", string(t)))
	m.record(ctx, t, reason, false)
	return nil
}

// record appends to the event trail. The session change it describes has already
// been persisted, so a failure is logged rather than returned.
func (m *Manager) record(ctx context.Context, t auditdomain.EventType, reason string, failed bool) {
	if _, err := m.opts.Events.Record(ctx, t, reason, failed); err != nil {
		m.log.Error("session: failed to record security event",
			zap.String("event_type", string(t)), zap.String("reason", reason), zap.Error(err))
	}
}

// Current returns a copy of the session, or nil.
func (m *Manager) Current(ctx context.Context) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	return m.cur.Clone(), nil
}

// State returns the lifecycle state as last observed.
func (m *Manager) State() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsActive reports whether a session is held, without a liveness check.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil
}

// Require runs the liveness check and returns the session, or ErrNoSession when none
// remains afterwards.
func (m *Manager) Require(ctx context.Context) (*domain.Record, error) {
	l, err := m.CheckLiveness(ctx)
	if err != nil {
		return nil, err
	}
	if !l.Alive() {
		return nil, ErrNoSession
	}
	rec, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNoSession
	}
	return rec, nil
}

// IsAuthenticated reports whether a live session exists after a liveness check.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	_, err := m.Require(ctx)
	return err == nil
}

// CompleteTwoFactor verifies a pending 2FA login and starts the session on success.
// A rejected code is recorded as a failed login.
func (m *Manager) CompleteTwoFactor(ctx context.Context, v TwoFactorVerifier, tempToken, code string) (*domain.Record, error) {
	res, err := v.VerifyTwoFactor(ctx, tempToken, code)
	if err != nil {
		if _, ferr := m.RecordFailedLogin(ctx, ReasonTwoFactorFailed); ferr != nil && !errors.Is(ferr, ErrSuspiciousActivity) {
			m.log.Error("session: failed to record 2fa failure", zap.Error(ferr))
		}
		if errors.Is(err, ErrVerifyFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrVerifyFailed, err)
	}
	return m.CreateSession(ctx, res.User, res.AccessToken, res.RefreshToken)
}
