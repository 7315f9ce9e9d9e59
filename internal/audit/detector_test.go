package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
	devicedomain "github.com/jcarweb/repuestospro-sub005/internal/device/domain"
)

func login(at time.Time, device string, failed bool) domain.Event {
	return domain.Event{Type: domain.EventLogin, Timestamp: at, Failed: failed, Device: devicedomain.Info{DeviceID: device}}
}

func TestDetector_FailedLogins(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	d := DefaultDetector()

	var events []domain.Event
	for i := 0; i < 5; i++ {
		events = append(events, login(now.Add(-time.Duration(i)*time.Minute), "d1", true))
	}
	if v := d.Evaluate(events, now); v.Suspicious || v.FailedLogins != 5 {
		t.Fatalf("5 failures: %+v, want not suspicious", v)
	}

	// A sixth failure outside the window does not count.
	outside := append(events, login(now.Add(-61*time.Minute), "d1", true))
	if v := d.Evaluate(outside, now); v.Suspicious {
		t.Fatalf("6th failure outside window flagged: %+v", v)
	}

	inside := append(events, login(now.Add(-59*time.Minute), "d1", true))
	v := d.Evaluate(inside, now)
	if !v.Suspicious || v.FailedLogins != 6 {
		t.Fatalf("6 failures: %+v, want suspicious", v)
	}
	if v.Reason() != ReasonTooManyFailedLogins {
		t.Errorf("Reason = %q", v.Reason())
	}
}

func TestDetector_DistinctDevices(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	d := DefaultDetector()
	var events []domain.Event
	for i := 0; i < 3; i++ {
		events = append(events, login(now.Add(-time.Minute), fmt.Sprintf("d%d", i), false))
	}
	events = append(events, login(now.Add(-2*time.Minute), "d0", false))
	if v := d.Evaluate(events, now); v.Suspicious || v.DistinctDevices != 3 {
		t.Fatalf("3 devices: %+v", v)
	}
	events = append(events, login(now.Add(-3*time.Minute), "d3", true))
	v := d.Evaluate(events, now)
	if !v.Suspicious || v.DistinctDevices != 4 || v.Reason() != ReasonTooManyDevices {
		t.Fatalf("4 devices: %+v", v)
	}
}

func TestDetector_IgnoresOtherTypesAndFutureEvents(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	d := DefaultDetector()
	var events []domain.Event
	for i := 0; i < 10; i++ {
		events = append(events, domain.Event{Type: domain.EventLogout, Timestamp: now, Failed: true, Device: devicedomain.Info{DeviceID: fmt.Sprint(i)}})
		events = append(events, login(now.Add(time.Hour), fmt.Sprint(i), true))
	}
	if v := d.Evaluate(events, now); v.Suspicious || v.FailedLogins != 0 || v.DistinctDevices != 0 {
		t.Fatalf("Evaluate = %+v, want clean", v)
	}
}

func TestDetector_BothRules(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	var events []domain.Event
	for i := 0; i < 6; i++ {
		events = append(events, login(now, fmt.Sprint(i), true))
	}
	v := DefaultDetector().Evaluate(events, now)
	if v.Reason() != ReasonTooManyFailedLogins+","+ReasonTooManyDevices {
		t.Errorf("Reason = %q", v.Reason())
	}
}

func TestDetector_EmptyInput(t *testing.T) {
	if v := DefaultDetector().Evaluate(nil, time.Now()); v.Suspicious {
		t.Errorf("Evaluate(nil) = %+v", v)
	}
}
