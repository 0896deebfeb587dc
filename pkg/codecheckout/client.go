// Package codecheckout is the public entry point of the license client.
//
// A Client owns its configuration, cache backend, authority transport and
// validator; nothing is kept in package-level state. Construct one per
// software product and close it on shutdown so background refreshes and
// analytics deliveries drain.
//
//	client, err := codecheckout.New(cfg, codecheckout.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	res := client.Validate(ctx, codecheckout.ValidateRequest{LicenseKey: key})
package codecheckout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"codecheckout/internal/analytics"
	"codecheckout/internal/api"
	"codecheckout/internal/cache"
	"codecheckout/internal/checkout"
	"codecheckout/internal/config"
	apperrors "codecheckout/internal/errors"
	"codecheckout/internal/identity"
	"codecheckout/internal/license"
	"codecheckout/pkg/contracts/domain"
)

type (
	// ValidateRequest describes one license validation
	ValidateRequest = license.Request
	// ValidateResult is the validation decision
	ValidateResult = license.Result
	// Event is one analytics event
	Event = analytics.Event
	// CheckoutParams describes a checkout link
	CheckoutParams = checkout.Params
	// RefreshReporter receives background refresh failures
	RefreshReporter = license.RefreshReporter
	// RefreshReporterFunc adapts a function to RefreshReporter
	RefreshReporterFunc = license.RefreshReporterFunc
)

// Client is a configured license client
type Client struct {
	cfg       config.ClientConfig
	logger    *slog.Logger
	backend   *cache.Backend
	api       *api.Client
	identity  *identity.Provider
	validator *license.Validator
	recorder  *analytics.Recorder
	checkout  *checkout.Generator
}

type options struct {
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	caps       *cache.Capabilities
	httpClient *http.Client
	reporter   RefreshReporter
	overrides  config.Overrides
}

// Option configures New
type Option func(*options)

// WithLogger sets the logger shared by every component
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer for validation and analytics spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithMeter records license and analytics metrics on meter
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// WithCapabilities replaces environment detection for backend selection
func WithCapabilities(caps cache.Capabilities) Option {
	return func(o *options) { o.caps = &caps }
}

// WithHTTPClient replaces the HTTP client used to reach the authority
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithRefreshReporter receives background refresh failures
func WithRefreshReporter(r RefreshReporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithOverrides layers per-client settings over the configuration
func WithOverrides(ov config.Overrides) Option {
	return func(o *options) { o.overrides = ov }
}

// New builds a client from cfg. A nil cfg uses config.Default.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	clientCfg := cfg.Client.WithOverrides(o.overrides)
	resolved := *cfg
	resolved.Client = clientCfg
	if err := resolved.Validate(); err != nil {
		return nil, apperrors.NewConfigError("invalid client configuration", err)
	}

	caps := capabilitiesFor(cfg.Cache, o.caps)
	backend := cache.Open(caps, o.logger)

	var apiOpts []api.ClientOption
	if o.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(o.httpClient))
	}
	transport := api.NewClient(clientCfg, o.logger, apiOpts...)
	ids := identity.NewProvider(o.logger)

	metrics, err := license.NewMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	validator := license.NewValidator(clientCfg, backend, transport,
		license.WithIdentity(ids),
		license.WithLogger(o.logger),
		license.WithTracer(o.tracer),
		license.WithMetrics(metrics),
		license.WithRefreshReporter(o.reporter),
	)

	recorder := analytics.NewRecorder(clientCfg, backend.Keys, transport,
		analytics.WithIdentity(ids),
		analytics.WithLogger(o.logger),
		analytics.WithTracer(o.tracer),
		analytics.WithMeter(o.meter),
	)

	o.logger.Debug("License client ready",
		slog.String("software_id", clientCfg.SoftwareID),
		slog.String("base_url", clientCfg.BaseURL),
		slog.String("cache_backend", string(backend.Kind())))

	return &Client{
		cfg:       clientCfg,
		logger:    o.logger,
		backend:   backend,
		api:       transport,
		identity:  ids,
		validator: validator,
		recorder:  recorder,
		checkout:  checkout.NewGenerator(clientCfg, transport, o.logger),
	}, nil
}

// capabilitiesFor maps the configured backend onto environment capabilities
func capabilitiesFor(cfg config.CacheConfig, injected *cache.Capabilities) cache.Capabilities {
	switch cfg.Backend {
	case "memory":
		return cache.Capabilities{}
	case "file":
		return cache.Capabilities{Dir: cfg.ResolveCacheDir()}
	}

	if injected != nil {
		return *injected
	}
	caps := cache.Detect()
	if caps.Web == nil && cfg.Dir != "" {
		caps.Dir = cfg.Dir
	}
	return caps
}

// Validate returns a license decision. It never fails.
func (c *Client) Validate(ctx context.Context, req ValidateRequest) ValidateResult {
	return c.validator.Validate(ctx, req)
}

// LogEvent queues an analytics event for background delivery
func (c *Client) LogEvent(ctx context.Context, ev Event) domain.AnalyticsEventResponse {
	return c.recorder.LogEvent(ctx, ev)
}

// GenerateCheckoutURL returns a checkout link and the license key it activates
func (c *Client) GenerateCheckoutURL(ctx context.Context, p CheckoutParams) (domain.CheckoutSession, error) {
	return c.checkout.GenerateURL(ctx, p)
}

// ClearCache removes every cached validation decision
func (c *Client) ClearCache(ctx context.Context) {
	c.validator.ClearCache(ctx)
}

// MachineID returns this machine's stable identifier
func (c *Client) MachineID(ctx context.Context) (string, error) {
	return c.identity.MachineID(ctx)
}

// CacheBackend reports the selected cache backend
func (c *Client) CacheBackend() cache.Kind {
	return c.backend.Kind()
}

// BreakerState reports the authority circuit breaker state
func (c *Client) BreakerState() string {
	return c.api.BreakerState()
}

// Validator exposes the validator for HTTP middleware and handlers
func (c *Client) Validator() *license.Validator {
	return c.validator
}

// Config returns the resolved client configuration
func (c *Client) Config() config.ClientConfig {
	return c.cfg
}

// Close waits for background refreshes and analytics deliveries until ctx is done
func (c *Client) Close(ctx context.Context) error {
	return errors.Join(
		c.validator.Close(ctx),
		c.recorder.Close(ctx),
	)
}
