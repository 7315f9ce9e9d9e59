package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/telemetry"
)

const instrumentationName = "sessionvault.security"

// recordEmitter is the subset of otellog.Logger the emitter uses.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via
// provider and counts them on meters' security_events_total counter. A nil provider
// returns a no-op emitter; a nil meters skips counting.
func NewEventEmitter(provider *sdklog.LoggerProvider, meters metric.MeterProvider) (telemetry.EventEmitter, error) {
	if provider == nil {
		return noopEmitter{}, nil
	}
	var counter metric.Int64Counter
	if meters != nil {
		c, err := meters.Meter(instrumentationName).Int64Counter(
			"security_events_total",
			metric.WithDescription("Security events appended to the local audit trail."),
		)
		if err != nil {
			return nil, err
		}
		counter = c
	}
	return newEmitter(provider.Logger(instrumentationName), counter), nil
}

func newEmitter(logger recordEmitter, counter metric.Int64Counter) *otelEmitter {
	return &otelEmitter{logger: logger, counter: counter}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, auditdomain.Event) error { return nil }

type otelEmitter struct {
	logger  recordEmitter
	counter metric.Int64Counter
}

// Emit converts the event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event auditdomain.Event) error {
	rec := otellog.Record{}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(string(event.Type)))
	rec.SetSeverity(severity(event))
	rec.SetSeverityText(severity(event).String())

	rec.AddAttributes(
		otellog.String("event_id", event.ID),
		otellog.String("event_type", string(event.Type)),
	)
	if event.Device.DeviceID != "" {
		rec.AddAttributes(otellog.String("device_id", event.Device.DeviceID))
	}
	if event.Device.Platform != "" {
		rec.AddAttributes(otellog.String("platform", event.Device.Platform))
	}
	if event.Device.AppVersion != "" {
		rec.AddAttributes(otellog.String("app_version", event.Device.AppVersion))
	}
	if event.Reason != "" {
		rec.AddAttributes(otellog.String("reason", event.Reason))
	}
	if event.Failed {
		rec.AddAttributes(otellog.Bool("failed", true))
	}
	e.logger.Emit(ctx, rec)

	if e.counter != nil {
		e.counter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event_type", string(event.Type)),
			attribute.Bool("failed", event.Failed),
		))
	}
	return nil
}

func severity(e auditdomain.Event) otellog.Severity {
	switch {
	case e.Type == auditdomain.EventSuspiciousActivity:
		return otellog.SeverityWarn
	case e.Failed:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityInfo
	}
}
