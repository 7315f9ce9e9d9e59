// Package audit keeps the bounded security event trail and evaluates it for
// suspicious activity.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
	auditrepo "github.com/jcarweb/repuestospro-sub005/internal/audit/repository"
	devicedomain "github.com/jcarweb/repuestospro-sub005/internal/device/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/telemetry"
)

// DefaultCapacity is the number of events retained before the oldest are evicted.
const DefaultCapacity = 100

// ErrInvalidEvent is returned by Append for an unknown event type.
var ErrInvalidEvent = errors.New("invalid security event")

// DeviceSource supplies the device snapshot for Record.
type DeviceSource interface {
	Snapshot(ctx context.Context) (devicedomain.Info, error)
}

// Log is the append-only security event trail. The repository is the source of
// truth: every Append reads, modifies and writes the history under one mutex, so
// concurrent appenders in this process never lose each other's events.
type Log struct {
	repo     auditrepo.Repository
	capacity int
	nowF     func() time.Time
	newID    func() string
	device   DeviceSource
	emitter  telemetry.EventEmitter
	log      *zap.Logger

	mu sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity overrides DefaultCapacity. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithClock sets the clock used to stamp events.
func WithClock(now func() time.Time) Option { return func(l *Log) { l.nowF = now } }

// WithDevice sets the device snapshot source used by Record.
func WithDevice(d DeviceSource) Option { return func(l *Log) { l.device = d } }

// WithEmitter mirrors each durable append to emitter, asynchronously.
func WithEmitter(e telemetry.EventEmitter) Option { return func(l *Log) { l.emitter = e } }

// WithLogger sets the logger.
func WithLogger(z *zap.Logger) Option {
	return func(l *Log) {
		if z != nil {
			l.log = z
		}
	}
}

// NewLog returns a Log persisting through repo.
func NewLog(repo auditrepo.Repository, opts ...Option) *Log {
	l := &Log{
		repo:     repo,
		capacity: DefaultCapacity,
		nowF:     time.Now,
		newID:    func() string { return uuid.New().String() },
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Capacity returns the retention cap.
func (l *Log) Capacity() int { return l.capacity }

// Append assigns ID and Timestamp when unset, adds e to the history and evicts the
// oldest events beyond capacity. It returns only after the history is persisted;
// on a storage error nothing changes and the error is returned.
func (l *Log) Append(ctx context.Context, e domain.Event) (domain.Event, error) {
	if !e.Type.Valid() {
		return domain.Event{}, fmt.Errorf("%w: type %q", ErrInvalidEvent, e.Type)
	}
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.nowF().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	events, corrupt, err := l.loadLocked(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	var marker *domain.Event
	if corrupt {
		marker = &domain.Event{
			ID:        l.newID(),
			Type:      domain.EventSuspiciousActivity,
			Timestamp: e.Timestamp,
			Reason:    ReasonCorruptHistory,
			Device:    e.Device,
		}
		events = append(events, *marker)
	}
	events = insertSorted(events, e)
	if over := len(events) - l.capacity; over > 0 {
		events = events[over:]
	}
	if err := l.repo.Save(ctx, events); err != nil {
		return domain.Event{}, err
	}
	if marker != nil {
		l.log.Warn("security event history replaced", zap.String("event_id", marker.ID))
		telemetry.EmitAsync(l.emitter, *marker, l.log)
	}

	l.log.Debug("security event appended",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.String("reason", e.Reason),
		zap.Bool("failed", e.Failed),
	)
	telemetry.EmitAsync(l.emitter, e, l.log)
	return e, nil
}

// Record appends an event of type t stamped with the current device snapshot.
func (l *Log) Record(ctx context.Context, t domain.EventType, reason string, failed bool) (domain.Event, error) {
	e := domain.Event{Type: t, Reason: reason, Failed: failed}
	if l.device != nil {
		info, err := l.device.Snapshot(ctx)
		if err != nil {
			return domain.Event{}, err
		}
		e.Device = info
	}
	return l.Append(ctx, e)
}

// Recent returns events with timestamp within window of now, oldest first. A window
// of zero or less returns the whole history. Recent never modifies the history.
func (l *Log) Recent(ctx context.Context, window time.Duration) ([]domain.Event, error) {
	l.mu.Lock()
	events, _, err := l.loadLocked(ctx)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return events, nil
	}
	cutoff := l.nowF().Add(-window)
	i := sort.Search(len(events), func(i int) bool { return !events[i].Timestamp.Before(cutoff) })
	return events[i:], nil
}

// All returns the whole history, oldest first.
func (l *Log) All(ctx context.Context) ([]domain.Event, error) {
	return l.Recent(ctx, 0)
}

// Clear erases the history.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.repo.Clear(ctx); err != nil {
		return err
	}
	l.log.Info("security event history cleared")
	return nil
}

// loadLocked returns the persisted history sorted by timestamp. Undecodable history
// reads as empty with corrupt set; the next Append replaces it, led by a
// corrupt_history event.
func (l *Log) loadLocked(ctx context.Context) (events []domain.Event, corrupt bool, err error) {
	events, err = l.repo.Load(ctx)
	if errors.Is(err, domain.ErrCorrupt) {
		l.log.Warn("security event history unreadable; starting empty", zap.Error(err))
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, false, nil
}

// insertSorted places e after every event with timestamp <= e.Timestamp, keeping
// equal timestamps in append order.
func insertSorted(events []domain.Event, e domain.Event) []domain.Event {
	i := sort.Search(len(events), func(i int) bool { return events[i].Timestamp.After(e.Timestamp) })
	events = append(events, domain.Event{})
	copy(events[i+1:], events[i:])
	events[i] = e
	return events
}
