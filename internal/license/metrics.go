package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	apperrors "codecheckout/internal/errors"
)

// Validation outcomes recorded on license_validations_total
const (
	OutcomeFreshHit      = "fresh_hit"
	OutcomeOnline        = "online"
	OutcomeStaleFallback = "stale_fallback"
	OutcomeDefault       = "default"
)

// Metrics holds the license validation instruments
type Metrics struct {
	validations    metric.Int64Counter
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	refreshStarted metric.Int64Counter
	refreshFailed  metric.Int64Counter
	refreshSkipped metric.Int64Counter
	onlineDuration metric.Float64Histogram
	onlineErrors   metric.Int64Counter
}

// NewMetrics creates the license instruments on meter. A nil meter yields no-op instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("codecheckout/license")
	}

	m := &Metrics{}
	var err error

	m.validations, err = meter.Int64Counter(
		"license_validations_total",
		metric.WithDescription("License validations by outcome"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validations counter: %w", err)
	}

	m.cacheHits, err = meter.Int64Counter(
		"license_cache_hits_total",
		metric.WithDescription("Fresh cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	m.cacheMisses, err = meter.Int64Counter(
		"license_cache_misses_total",
		metric.WithDescription("Cache lookups that were absent or expired"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	m.refreshStarted, err = meter.Int64Counter(
		"license_refresh_started_total",
		metric.WithDescription("Background refreshes launched"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh started counter: %w", err)
	}

	m.refreshFailed, err = meter.Int64Counter(
		"license_refresh_failed_total",
		metric.WithDescription("Background refreshes that failed"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh failed counter: %w", err)
	}

	m.refreshSkipped, err = meter.Int64Counter(
		"license_refresh_skipped_total",
		metric.WithDescription("Background refreshes skipped by the rate limiter"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh skipped counter: %w", err)
	}

	m.onlineDuration, err = meter.Float64Histogram(
		"license_online_duration_seconds",
		metric.WithDescription("Duration of license authority calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create online duration histogram: %w", err)
	}

	m.onlineErrors, err = meter.Int64Counter(
		"license_online_errors_total",
		metric.WithDescription("Failed license authority calls by error type"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create online errors counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordValidation(ctx context.Context, outcome string, valid bool) {
	m.validations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("valid", valid),
	))
}

func (m *Metrics) recordCacheLookup(ctx context.Context, hit bool) {
	if hit {
		m.cacheHits.Add(ctx, 1)
		return
	}
	m.cacheMisses.Add(ctx, 1)
}

func (m *Metrics) recordOnline(ctx context.Context, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.onlineErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("error_type", string(apperrors.TypeOf(err))),
		))
	}
	m.onlineDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
	))
}
