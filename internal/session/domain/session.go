package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	devicedomain "github.com/jcarweb/repuestospro-sub005/internal/device/domain"
)

// ErrCorrupt means the persisted session record could not be decoded.
var ErrCorrupt = errors.New("session record corrupt")

// User is the authenticated principal as reported by the auth collaborator.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// Record is the single active session. Tokens are credentials: never log them.
type Record struct {
	User           User
	AccessToken    string
	RefreshToken   string // empty when the collaborator issued none
	ExpiresAt      time.Time
	LastActivityAt time.Time
	Device         devicedomain.Info
}

// HasRefreshToken reports whether Refresh can be attempted.
func (r *Record) HasRefreshToken() bool { return r.RefreshToken != "" }

// Clone returns a copy safe to hand to callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// String omits both tokens.
func (r *Record) String() string {
	if r == nil {
		return "<no session>"
	}
	return fmt.Sprintf("session{user=%s role=%s device=%s expiresAt=%s lastActivityAt=%s refreshable=%t}",
		r.User.ID, r.User.Role, r.Device.DeviceID,
		r.ExpiresAt.UTC().Format(time.RFC3339), r.LastActivityAt.UTC().Format(time.RFC3339),
		r.HasRefreshToken())
}

type recordJSON struct {
	User           User              `json:"user"`
	AccessToken    string            `json:"accessToken"`
	RefreshToken   string            `json:"refreshToken,omitempty"`
	ExpiresAt      int64             `json:"expiresAt"`
	LastActivityAt int64             `json:"lastActivityAt"`
	Device         devicedomain.Info `json:"deviceInfo"`
}

// MarshalJSON writes instants as epoch milliseconds.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		User:           r.User,
		AccessToken:    r.AccessToken,
		RefreshToken:   r.RefreshToken,
		ExpiresAt:      r.ExpiresAt.UnixMilli(),
		LastActivityAt: r.LastActivityAt.UnixMilli(),
		Device:         r.Device,
	})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.AccessToken == "" || raw.ExpiresAt == 0 {
		return errors.New("missing access token or expiry")
	}
	*r = Record{
		User:           raw.User,
		AccessToken:    raw.AccessToken,
		RefreshToken:   raw.RefreshToken,
		ExpiresAt:      time.UnixMilli(raw.ExpiresAt).UTC(),
		LastActivityAt: time.UnixMilli(raw.LastActivityAt).UTC(),
		Device:         raw.Device,
	}
	return nil
}

// State is the session lifecycle state.
type State int

const (
	StateNoSession State = iota
	StateActive
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRefreshing:
		return "refreshing"
	default:
		return "no_session"
	}
}

// Liveness is the outcome of one liveness check.
type Liveness int

const (
	LivenessNone Liveness = iota
	LivenessActive
	LivenessRefreshed
	LivenessClearedInactive
	LivenessClearedExpired
	LivenessRefreshFailed
)

func (l Liveness) String() string {
	switch l {
	case LivenessActive:
		return "active"
	case LivenessRefreshed:
		return "refreshed"
	case LivenessClearedInactive:
		return "cleared_inactive"
	case LivenessClearedExpired:
		return "cleared_expired"
	case LivenessRefreshFailed:
		return "refresh_failed"
	default:
		return "none"
	}
}

// Alive reports whether a session remains after the check.
func (l Liveness) Alive() bool { return l == LivenessActive || l == LivenessRefreshed }
