// Package analytics records usage events against the license authority.
// Events are delivered in the background; callers only learn whether the
// event was accepted for delivery.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"codecheckout/internal/api"
	"codecheckout/internal/cache"
	"codecheckout/internal/config"
	apperrors "codecheckout/internal/errors"
	"codecheckout/pkg/contracts/domain"
)

const eventsPath = "/analytics/events"

// timestampLayout is ISO 8601 in UTC with millisecond precision
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Event is one usage event. Empty fields are filled from config, the
// last-known key store and identity.
type Event struct {
	CommandID  string
	SoftwareID string
	LicenseKey string
	MachineID  string
	SessionID  string
	Timestamp  time.Time
}

// Transport posts JSON to the license authority
type Transport interface {
	Post(ctx context.Context, path string, body, out any, opts ...api.RequestOption) error
}

// Identity supplies default machine and session identifiers
type Identity interface {
	MachineID(ctx context.Context) (string, error)
	SessionID() string
}

// Recorder sends analytics events without blocking the caller
type Recorder struct {
	cfg       config.ClientConfig
	keys      cache.KeyStore
	transport Transport
	identity  Identity
	logger    *slog.Logger
	tracer    trace.Tracer
	sent      metric.Int64Counter
	now       func() time.Time

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// Option configures a Recorder
type Option func(*Recorder)

// WithIdentity sets the source of default machine and session ids
func WithIdentity(id Identity) Option {
	return func(r *Recorder) { r.identity = id }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Recorder) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithMeter records delivery results on meter
func WithMeter(meter metric.Meter) Option {
	return func(r *Recorder) {
		if meter == nil {
			return
		}
		if c, err := meter.Int64Counter(
			"analytics_events_total",
			metric.WithDescription("Analytics events by delivery status"),
			metric.WithUnit("{event}"),
		); err == nil {
			r.sent = c
		}
	}
}

// WithClock replaces time.Now for event timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a recorder. keys may be nil when no last-known key store exists.
func NewRecorder(cfg config.ClientConfig, keys cache.KeyStore, transport Transport, opts ...Option) *Recorder {
	sent, _ := metricnoop.NewMeterProvider().Meter("codecheckout/analytics").Int64Counter("analytics_events_total")
	r := &Recorder{
		cfg:       cfg,
		keys:      keys,
		transport: transport,
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("codecheckout/analytics"),
		sent:      sent,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "analytics"))
	return r
}

// LogEvent accepts ev for background delivery. It reports Success false only
// when the event cannot be built; delivery failures are logged.
func (r *Recorder) LogEvent(ctx context.Context, ev Event) domain.AnalyticsEventResponse {
	body, err := r.build(ctx, ev)
	if err != nil {
		r.logger.WarnContext(ctx, "Error preparing analytics event",
			slog.String("error", err.Error()),
			slog.String("command_id", ev.CommandID))
		return domain.AnalyticsEventResponse{Success: false}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "Analytics recorder closed, dropping event",
			slog.String("command_id", body.CommandID))
		return domain.AnalyticsEventResponse{Success: false}
	}
	r.pending.Add(1)
	r.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer r.pending.Done()
		r.send(detached, body)
	}()

	return domain.AnalyticsEventResponse{Success: true}
}

func (r *Recorder) build(ctx context.Context, ev Event) (domain.AnalyticsEvent, error) {
	softwareID := ev.SoftwareID
	if softwareID == "" {
		softwareID = r.cfg.SoftwareID
	}
	if softwareID == "" {
		return domain.AnalyticsEvent{}, apperrors.NewValidationError("softwareId is required for analytics events", apperrors.ErrMissingSoftwareID)
	}
	if ev.CommandID == "" {
		return domain.AnalyticsEvent{}, apperrors.NewValidationError("commandId is required for analytics events", nil)
	}

	machineID, sessionID := ev.MachineID, ev.SessionID
	if r.identity != nil {
		if machineID == "" {
			id, err := r.identity.MachineID(ctx)
			if err != nil {
				r.logger.DebugContext(ctx, "Failed to resolve machine id", slog.String("error", err.Error()))
			}
			machineID = id
		}
		if sessionID == "" {
			sessionID = r.identity.SessionID()
		}
	}

	licenseKey := ev.LicenseKey
	if licenseKey == "" && r.keys != nil {
		licenseKey, _ = r.keys.Get(ctx, softwareID)
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	return domain.AnalyticsEvent{
		ExtensionID:     softwareID,
		CommandID:       ev.CommandID,
		LicenseKey:      licenseKey,
		HasValidLicense: licenseKey != "",
		MachineID:       machineID,
		SessionID:       sessionID,
		Timestamp:       ts.UTC().Format(timestampLayout),
	}, nil
}

func (r *Recorder) send(ctx context.Context, body domain.AnalyticsEvent) {
	ctx, span := r.tracer.Start(ctx, "analytics.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("analytics.command_id", body.CommandID),
			attribute.String("analytics.software_id", body.ExtensionID),
		))
	defer span.End()

	var resp domain.AnalyticsEventResponse
	err := r.transport.Post(ctx, eventsPath, body, &resp)

	status := "sent"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.WarnContext(ctx, "Error logging analytics event",
			slog.String("error", err.Error()),
			slog.String("command_id", body.CommandID))
	} else {
		r.logger.DebugContext(ctx, "Analytics event sent",
			slog.String("command_id", body.CommandID),
			slog.Bool("accepted", resp.Success))
	}
	r.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// Wait blocks until every accepted event has been delivered or has failed.
// Events logged while Wait runs are accepted after it returns.
func (r *Recorder) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.Wait()
}

// Close stops accepting events and waits for pending deliveries until ctx is done
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
