package audit

import (
	"strings"
	"time"

	"github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
)

// Verdict reasons.
const (
	ReasonTooManyFailedLogins = "too_many_failed_logins"
	ReasonTooManyDevices      = "too_many_devices"
)

// Detector flags suspicious login patterns. It is a pure function of its input.
type Detector struct {
	Window             time.Duration
	MaxFailedLogins    int
	MaxDistinctDevices int
}

// DefaultDetector flags more than 5 failed logins or more than 3 login devices in an hour.
func DefaultDetector() Detector {
	return Detector{Window: time.Hour, MaxFailedLogins: 5, MaxDistinctDevices: 3}
}

// Verdict is the outcome of Evaluate.
type Verdict struct {
	Suspicious      bool
	FailedLogins    int
	DistinctDevices int
	Reasons         []string
}

// Reason joins the verdict reasons for the audit trail.
func (v Verdict) Reason() string { return strings.Join(v.Reasons, ",") }

// Evaluate counts login events in (now-Window, now]. Events outside the window,
// including future-dated ones, are ignored.
func (d Detector) Evaluate(events []domain.Event, now time.Time) Verdict {
	cutoff := now.Add(-d.Window)
	devices := make(map[string]struct{})
	var v Verdict
	for _, e := range events {
		if e.Type != domain.EventLogin {
			continue
		}
		if e.Timestamp.Before(cutoff) || e.Timestamp.After(now) {
			continue
		}
		if e.Failed {
			v.FailedLogins++
		}
		if e.Device.DeviceID != "" {
			devices[e.Device.DeviceID] = struct{}{}
		}
	}
	v.DistinctDevices = len(devices)
	if v.FailedLogins > d.MaxFailedLogins {
		v.Reasons = append(v.Reasons, ReasonTooManyFailedLogins)
	}
	if v.DistinctDevices > d.MaxDistinctDevices {
		v.Reasons = append(v.Reasons, ReasonTooManyDevices)
	}
	v.Suspicious = len(v.Reasons) > 0
	return v
}
