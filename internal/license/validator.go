package license

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"codecheckout/internal/api"
	"codecheckout/internal/cache"
	"codecheckout/internal/config"
	apperrors "codecheckout/internal/errors"
	"codecheckout/pkg/contracts/domain"
)

// Validator produces license decisions backed by a tiered cache
type Validator struct {
	cfg       config.ClientConfig
	backend   *cache.Backend
	transport Transport
	identity  Identity
	reporter  RefreshReporter
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	now       func() time.Time
	limiter   *rate.Limiter

	inflight singleflight.Group

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// Option configures a Validator
type Option func(*Validator)

// WithIdentity sets the source of default machine and session ids
func WithIdentity(id Identity) Option {
	return func(v *Validator) { v.identity = id }
}

// WithRefreshReporter receives background refresh failures
func WithRefreshReporter(r RefreshReporter) Option {
	return func(v *Validator) {
		if r != nil {
			v.reporter = r
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithTracer sets the tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(v *Validator) {
		if tracer != nil {
			v.tracer = tracer
		}
	}
}

// WithMetrics sets the metric instruments
func WithMetrics(m *Metrics) Option {
	return func(v *Validator) {
		if m != nil {
			v.metrics = m
		}
	}
}

// WithClock replaces time.Now for freshness decisions and record timestamps
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithRefreshLimiter replaces the limiter built from the refresh config
func WithRefreshLimiter(l *rate.Limiter) Option {
	return func(v *Validator) {
		if l != nil {
			v.limiter = l
		}
	}
}

// NewValidator creates a validator over backend and transport
func NewValidator(cfg config.ClientConfig, backend *cache.Backend, transport Transport, opts ...Option) *Validator {
	v := &Validator{
		cfg:       cfg,
		backend:   backend,
		transport: transport,
		reporter:  nopReporter{},
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("codecheckout/license"),
		now:       time.Now,
		limiter:   newRefreshLimiter(cfg.Refresh),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.metrics == nil {
		// A nil meter cannot fail.
		v.metrics, _ = NewMetrics(nil)
	}
	v.logger = v.logger.With(slog.String("component", "license_validator"))
	return v
}

func newRefreshLimiter(cfg config.RefreshConfig) *rate.Limiter {
	if cfg.RPS <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RPS), burst)
}

// Validate returns a decision for req. It never fails: errors fall back to the
// cached record for the key regardless of age, then to an invalid result.
func (v *Validator) Validate(ctx context.Context, req Request) Result {
	ctx, span := v.tracer.Start(ctx, "license.validate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	req = v.withDefaults(ctx, req)
	key := cache.Key(req.SoftwareID, req.LicenseKey)

	span.SetAttributes(
		attribute.String("license.software_id", req.SoftwareID),
		attribute.String("license.key_hash", hashLicenseKey(req.LicenseKey)),
		attribute.Bool("license.forced", req.ForceOnlineValidation),
	)

	res, outcome, err := v.validate(ctx, req, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res, outcome = v.fallback(ctx, req, key, err)
	}

	span.SetAttributes(
		attribute.String("license.outcome", outcome),
		attribute.Bool("license.valid", res.IsValid),
	)
	v.metrics.recordValidation(ctx, outcome, res.IsValid)
	return res
}

// withDefaults fills the request from config, the last-known key store and identity
func (v *Validator) withDefaults(ctx context.Context, req Request) Request {
	if req.SoftwareID == "" {
		req.SoftwareID = v.cfg.SoftwareID
	}
	if !validHours(req.CacheDurationInHours) {
		req.CacheDurationInHours = v.cfg.CacheDurationHours
	}
	if !validHours(req.CacheDurationInHours) {
		req.CacheDurationInHours = DefaultCacheDurationHours
	}

	if req.LicenseKey == "" && req.SoftwareID != "" {
		if key, ok := v.backend.Keys.Get(ctx, req.SoftwareID); ok {
			req.LicenseKey = key
			v.logAction(ctx, slog.LevelDebug, "resolve_key", "Using last known license key",
				keyAttrs(req.SoftwareID, key)...)
		}
	}

	if v.identity != nil {
		if req.MachineID == "" {
			id, err := v.identity.MachineID(ctx)
			if err != nil {
				v.logAction(ctx, slog.LevelWarn, "identity", "Failed to resolve machine id",
					slog.String("error", err.Error()))
			}
			req.MachineID = id
		}
		if req.SessionID == "" {
			req.SessionID = v.identity.SessionID()
		}
	}
	return req
}

func (v *Validator) validate(ctx context.Context, req Request, key string) (Result, string, error) {
	if req.SoftwareID == "" {
		return Result{}, "", apperrors.NewMissingCredentialError(apperrors.ErrMissingSoftwareID)
	}
	if req.LicenseKey == "" {
		return Result{}, "", apperrors.NewMissingCredentialError(apperrors.ErrMissingLicenseKey)
	}

	if !req.ForceOnlineValidation {
		rec, ok := v.backend.Records.Get(ctx, key)
		if ok && rec.Age(v.now()).Hours() < req.CacheDurationInHours {
			v.metrics.recordCacheLookup(ctx, true)
			v.logAction(ctx, slog.LevelDebug, "cache_hit", "Serving cached license decision",
				append(keyAttrs(req.SoftwareID, req.LicenseKey),
					slog.Bool("is_valid", rec.IsValid),
					slog.Duration("age", rec.Age(v.now())))...)
			v.refreshInBackground(ctx, req, key)
			return Result{IsValid: rec.IsValid, Reason: rec.Reason}, OutcomeFreshHit, nil
		}
		v.metrics.recordCacheLookup(ctx, false)
	}

	res, err := v.online(ctx, req, key)
	if err != nil {
		return Result{}, "", err
	}
	return res, OutcomeOnline, nil
}

// fallback serves the cached record for key ignoring its age, else the safe default
func (v *Validator) fallback(ctx context.Context, req Request, key string, cause error) (Result, string) {
	attrs := append(keyAttrs(req.SoftwareID, req.LicenseKey),
		slog.String("error", cause.Error()),
		slog.String("error_type", string(apperrors.TypeOf(cause))),
	)

	if rec, ok := v.backend.Records.Get(ctx, key); ok {
		v.logAction(ctx, slog.LevelWarn, "fallback", "License validation failed, serving cached decision",
			append(attrs, slog.Duration("age", rec.Age(v.now())))...)
		return Result{IsValid: rec.IsValid, Reason: rec.Reason}, OutcomeStaleFallback
	}

	v.logAction(ctx, slog.LevelError, "fallback", "License validation failed with no cached decision", attrs...)
	return Result{IsValid: false, Reason: ReasonValidationError}, OutcomeDefault
}

// online asks the authority, sharing one call among concurrent callers of the same key.
// The shared call is detached from any single caller's cancellation.
func (v *Validator) online(ctx context.Context, req Request, key string) (Result, error) {
	ch := v.inflight.DoChan(key, func() (any, error) {
		return v.callAuthority(context.WithoutCancel(ctx), req, key)
	})

	select {
	case <-ctx.Done():
		return Result{}, apperrors.NewTransportError("license validation cancelled", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

func (v *Validator) callAuthority(ctx context.Context, req Request, key string) (Result, error) {
	ctx, span := v.tracer.Start(ctx, "license.online", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body := domain.ValidateLicenseRequest{
		LicenseKey:  req.LicenseKey,
		SoftwareID:  req.SoftwareID,
		MachineID:   req.MachineID,
		SessionID:   req.SessionID,
		Environment: req.Environment,
	}

	start := time.Now()
	var resp domain.ValidateLicenseResponse
	err := v.transport.Post(ctx, validatePath, body, &resp, api.WithBearer(req.LicenseKey))
	v.metrics.recordOnline(ctx, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	v.backend.Records.Set(ctx, key, cache.NewRecord(resp.IsValid, resp.Reason, v.now()))
	if resp.IsValid {
		v.backend.Keys.Set(ctx, req.SoftwareID, req.LicenseKey)
	}

	span.SetAttributes(attribute.Bool("license.valid", resp.IsValid))
	v.logAction(ctx, slog.LevelInfo, "online", "License validated online",
		append(keyAttrs(req.SoftwareID, req.LicenseKey),
			slog.Bool("is_valid", resp.IsValid),
			slog.String("reason", resp.Reason),
			slog.Duration("duration", time.Since(start)))...)

	return Result{IsValid: resp.IsValid, Reason: resp.Reason}, nil
}

// refreshInBackground revalidates key online without blocking the caller.
// A failed refresh leaves the cached record in place until it expires.
func (v *Validator) refreshInBackground(ctx context.Context, req Request, key string) {
	if !v.limiter.Allow() {
		v.metrics.refreshSkipped.Add(ctx, 1)
		v.logAction(ctx, slog.LevelDebug, "refresh", "Background refresh skipped by rate limiter",
			keyAttrs(req.SoftwareID, req.LicenseKey)...)
		return
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.pending.Add(1)
	v.mu.Unlock()

	v.metrics.refreshStarted.Add(ctx, 1)
	link := trace.LinkFromContext(ctx)
	detached := context.WithoutCancel(ctx)

	go func() {
		defer v.pending.Done()

		ctx, span := v.tracer.Start(detached, "license.refresh",
			trace.WithNewRoot(),
			trace.WithLinks(link),
		)
		defer span.End()

		if _, err := v.online(ctx, req, key); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			v.metrics.refreshFailed.Add(ctx, 1)
			v.logAction(ctx, slog.LevelWarn, "refresh", "Background refresh failed",
				append(keyAttrs(req.SoftwareID, req.LicenseKey),
					slog.String("error", err.Error()))...)
			v.reporter.RefreshFailed(ctx, key, err)
		}
	}()
}

// ClearCache removes every cached decision. Last-known keys are kept.
func (v *Validator) ClearCache(ctx context.Context) {
	v.backend.Records.Clear(ctx)
	v.logAction(ctx, slog.LevelInfo, "clear_cache", "License cache cleared",
		slog.String("backend", string(v.backend.Kind())))
}

// Wait blocks until all background refreshes launched so far have finished.
// Refreshes requested while Wait runs start after it returns.
func (v *Validator) Wait() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending.Wait()
}

// Close stops new background refreshes and waits for running ones until ctx is done
func (v *Validator) Close(ctx context.Context) error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	done := make(chan struct{})
	go func() {
		v.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// validHours reports whether a cache duration is usable. +Inf caches forever.
func validHours(hours float64) bool {
	return !math.IsNaN(hours) && hours > 0
}
