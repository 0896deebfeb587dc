package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	apperrors "codecheckout/internal/errors"
	"codecheckout/internal/infrastructure"
	"codecheckout/internal/license"
	"codecheckout/pkg/contracts/domain"
)

// LicenseKeyHeader carries the license key when no bearer token is sent
const LicenseKeyHeader = "X-License-Key"

// Gate decisions recorded on license_gate_requests_total
const (
	decisionExcluded = "excluded"
	decisionMissing  = "missing"
	decisionDenied   = "denied"
	decisionAllowed  = "allowed"
)

// LicenseValidator decides whether a license is valid
type LicenseValidator interface {
	Validate(ctx context.Context, req license.Request) license.Result
}

type licenseContextKey struct{}

// LicenseFromContext returns the license key and decision admitted by LicenseGate
func LicenseFromContext(ctx context.Context) (string, license.Result, bool) {
	v, ok := ctx.Value(licenseContextKey{}).(admitted)
	return v.key, v.result, ok
}

type admitted struct {
	key    string
	result license.Result
}

// GateMetrics holds OpenTelemetry metrics for the license gate
type GateMetrics struct {
	Requests           metric.Int64Counter
	ValidationDuration metric.Float64Histogram
}

// NewGateMetrics creates the gate instruments on meter
func NewGateMetrics(meter metric.Meter) (*GateMetrics, error) {
	requests, err := meter.Int64Counter(
		"license_gate_requests_total",
		metric.WithDescription("Requests seen by the license gate by decision"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"license_gate_validation_duration_seconds",
		metric.WithDescription("Time spent validating the request license"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &GateMetrics{Requests: requests, ValidationDuration: duration}, nil
}

// LicenseGate rejects requests whose license key is missing or invalid
type LicenseGate struct {
	validator       LicenseValidator
	logger          *slog.Logger
	tracer          trace.Tracer
	metrics         *GateMetrics
	excludePaths    []string
	excludePrefixes []string
	enabled         bool
}

// NewLicenseGate creates a license gate backed by validator
func NewLicenseGate(validator LicenseValidator, logger *slog.Logger) *LicenseGate {
	if logger == nil {
		logger = slog.Default()
	}
	metrics, _ := NewGateMetrics(metricnoop.NewMeterProvider().Meter("codecheckout/middleware"))
	return &LicenseGate{
		validator: validator,
		logger:    logger.With(slog.String("component", "license_gate")),
		tracer:    tracenoop.NewTracerProvider().Tracer("codecheckout/middleware"),
		metrics:   metrics,
		enabled:   true,
		excludePaths: []string{
			"/health",
			"/metrics",
			"/license/validate",
			"/favicon.ico",
		},
	}
}

// Handler returns the middleware handler function
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := g.tracer.Start(r.Context(), "license_gate.check",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			),
		)
		defer span.End()

		traceID := infrastructure.GetTraceID(ctx)

		if !g.enabled || g.shouldExcludePath(r.URL.Path) {
			span.SetAttributes(attribute.String("license.gate", decisionExcluded))
			g.record(ctx, decisionExcluded)
			next.ServeHTTP(w, r)
			return
		}

		key := licenseKeyFromRequest(r)
		if key == "" {
			span.SetAttributes(attribute.String("license.gate", decisionMissing))
			g.record(ctx, decisionMissing)
			g.logger.WarnContext(ctx, "request without license key",
				slog.String("path", r.URL.Path),
				slog.String("trace_id", traceID))
			render.Render(w, r, apperrors.NewLicenseMissingProblem(r.URL.Path, traceID))
			return
		}

		start := time.Now()
		res := g.validator.Validate(ctx, license.Request{
			LicenseKey: key,
			Environment: domain.Environment{
				"ipAddress": GetRealIP(r),
				"userAgent": r.UserAgent(),
			},
		})
		g.metrics.ValidationDuration.Record(ctx, time.Since(start).Seconds())
		span.SetAttributes(attribute.Bool("license.valid", res.IsValid))

		if !res.IsValid {
			span.SetAttributes(attribute.String("license.gate", decisionDenied))
			g.record(ctx, decisionDenied)
			g.logger.WarnContext(ctx, "request denied by license gate",
				slog.String("path", r.URL.Path),
				slog.String("reason", res.Reason),
				slog.String("trace_id", traceID))
			render.Render(w, r, apperrors.NewLicenseInvalidProblem(res.Reason, r.URL.Path, traceID))
			return
		}

		span.SetAttributes(attribute.String("license.gate", decisionAllowed))
		g.record(ctx, decisionAllowed)
		ctx = context.WithValue(ctx, licenseContextKey{}, admitted{key: key, result: res})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *LicenseGate) record(ctx context.Context, decision string) {
	g.metrics.Requests.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// licenseKeyFromRequest reads a bearer token, then the X-License-Key header
func licenseKeyFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(LicenseKeyHeader))
}

// shouldExcludePath checks if a path should be excluded from validation
func (g *LicenseGate) shouldExcludePath(path string) bool {
	for _, excluded := range g.excludePaths {
		if path == excluded {
			return true
		}
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AddExcludePath adds a path to be excluded from license validation
func (g *LicenseGate) AddExcludePath(path string) {
	g.excludePaths = append(g.excludePaths, path)
}

// AddExcludePrefix adds a path prefix to be excluded from license validation
func (g *LicenseGate) AddExcludePrefix(prefix string) {
	g.excludePrefixes = append(g.excludePrefixes, prefix)
}

// SetEnabled enables or disables license validation
func (g *LicenseGate) SetEnabled(enabled bool) {
	g.enabled = enabled
}

// SetMetrics sets the OpenTelemetry metrics for the gate
func (g *LicenseGate) SetMetrics(metrics *GateMetrics) {
	if metrics != nil {
		g.metrics = metrics
	}
}

// SetTracer sets the tracer for gate spans
func (g *LicenseGate) SetTracer(tracer trace.Tracer) {
	if tracer != nil {
		g.tracer = tracer
	}
}
