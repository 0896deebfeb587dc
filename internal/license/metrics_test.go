package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/time/rate"
)

func newMetricsReader(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

// counterValue sums the data points of an int64 counter matching attr
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string, attr *attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if attr != nil {
					if v, ok := dp.Attributes.Value(attr.Key); !ok || v != attr.Value {
						continue
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func outcome(v string) *attribute.KeyValue {
	kv := attribute.String("outcome", v)
	return &kv
}

func TestNewMetrics_NilMeter(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.recordValidation(context.Background(), OutcomeOnline, true)
		m.recordCacheLookup(context.Background(), false)
		m.recordOnline(context.Background(), time.Millisecond, errAuthorityDown)
	})
}

func TestMetrics_ValidationOutcomes(t *testing.T) {
	m, reader := newMetricsReader(t)
	authority := newFakeAuthority(true, "ok")
	f := newFixture(t, authority, WithMetrics(m))

	// online, then fresh hit with one refresh
	f.v.Validate(context.Background(), keyRequest())
	f.v.Validate(context.Background(), keyRequest())
	f.v.Wait()

	// stale fallback, then default for an unknown key
	authority.failWith(errAuthorityDown)
	forced := keyRequest()
	forced.ForceOnlineValidation = true
	f.v.Validate(context.Background(), forced)
	f.v.Validate(context.Background(), Request{LicenseKey: "LK-UNKNOWN-0000"})

	assert.Equal(t, int64(1), counterValue(t, reader, "license_validations_total", outcome(OutcomeOnline)))
	assert.Equal(t, int64(1), counterValue(t, reader, "license_validations_total", outcome(OutcomeFreshHit)))
	assert.Equal(t, int64(1), counterValue(t, reader, "license_validations_total", outcome(OutcomeStaleFallback)))
	assert.Equal(t, int64(1), counterValue(t, reader, "license_validations_total", outcome(OutcomeDefault)))

	assert.Equal(t, int64(1), counterValue(t, reader, "license_cache_hits_total", nil))
	assert.Equal(t, int64(2), counterValue(t, reader, "license_cache_misses_total", nil))
	assert.Equal(t, int64(1), counterValue(t, reader, "license_refresh_started_total", nil))

	errType := attribute.String("error_type", "TRANSPORT")
	assert.Equal(t, int64(2), counterValue(t, reader, "license_online_errors_total", &errType))
}

func TestMetrics_RefreshFailedAndSkipped(t *testing.T) {
	m, reader := newMetricsReader(t)
	authority := newFakeAuthority(true, "ok")
	authority.failWith(errAuthorityDown)
	f := newFixture(t, authority, WithMetrics(m), WithRefreshLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))
	f.seed(true, "cached", time.Hour)

	f.v.Validate(context.Background(), keyRequest())
	f.v.Validate(context.Background(), keyRequest())
	f.v.Wait()

	assert.Equal(t, int64(1), counterValue(t, reader, "license_refresh_started_total", nil))
	assert.Equal(t, int64(1), counterValue(t, reader, "license_refresh_failed_total", nil))
	assert.Equal(t, int64(1), counterValue(t, reader, "license_refresh_skipped_total", nil))
}
