package domain

import (
	"encoding/json"
	"errors"
	"time"

	devicedomain "github.com/jcarweb/repuestospro-sub005/internal/device/domain"
)

// EventType classifies a security event.
type EventType string

const (
	EventLogin              EventType = "login"
	EventLogout             EventType = "logout"
	EventTokenRefresh       EventType = "token_refresh"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventPasswordChange     EventType = "password_change"
	EventTwoFactorEnabled   EventType = "2fa_enabled"
	EventTwoFactorDisabled  EventType = "2fa_disabled"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventLogin, EventLogout, EventTokenRefresh, EventSuspiciousActivity,
		EventPasswordChange, EventTwoFactorEnabled, EventTwoFactorDisabled:
		return true
	}
	return false
}

// ErrCorrupt is returned by repositories when the persisted history cannot be decoded.
var ErrCorrupt = errors.New("event history corrupt")

// Location is an optional coarse geolocation.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// Event is one immutable audit entry.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Device    devicedomain.Info
	Reason    string
	// Failed marks an unsuccessful attempt (failed login).
	Failed   bool
	Location *Location
}

type eventJSON struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp int64             `json:"timestamp"`
	Device    devicedomain.Info `json:"deviceInfo"`
	Reason    string            `json:"reason,omitempty"`
	Failed    bool              `json:"failed,omitempty"`
	Location  *Location         `json:"location,omitempty"`
}

// MarshalJSON writes Timestamp as epoch milliseconds.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:        e.ID,
		Type:      e.Type,
		Timestamp: e.Timestamp.UnixMilli(),
		Device:    e.Device,
		Reason:    e.Reason,
		Failed:    e.Failed,
		Location:  e.Location,
	})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var w eventJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Event{
		ID:        w.ID,
		Type:      w.Type,
		Timestamp: time.UnixMilli(w.Timestamp).UTC(),
		Device:    w.Device,
		Reason:    w.Reason,
		Failed:    w.Failed,
		Location:  w.Location,
	}
	return nil
}
