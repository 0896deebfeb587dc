package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	"codecheckout/internal/api"
	"codecheckout/internal/cache"
	"codecheckout/internal/config"
	"codecheckout/internal/shared/testutil"
	"codecheckout/pkg/contracts/domain"
)

type fakeTransport struct {
	mu     sync.Mutex
	events []domain.AnalyticsEvent
	paths  []string
	err    error
	gate   chan struct{}
}

func (f *fakeTransport) Post(ctx context.Context, path string, body, out any, _ ...api.RequestOption) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.events = append(f.events, body.(domain.AnalyticsEvent))
	if f.err != nil {
		return f.err
	}
	out.(*domain.AnalyticsEventResponse).Success = true
	return nil
}

func (f *fakeTransport) sent() []domain.AnalyticsEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AnalyticsEvent(nil), f.events...)
}

type staticIdentity struct{}

func (staticIdentity) MachineID(context.Context) (string, error) { return "machine-1", nil }
func (staticIdentity) SessionID() string { return "session-1" }

func newRecorder(t *testing.T, transport Transport, keys cache.KeyStore, opts ...Option) (*Recorder, *testutil.BufferedSlogHandler) {
	t.Helper()
	cfg := config.Default().Client
	cfg.SoftwareID = testutil.TestSoftwareID

	logger, logs := testutil.NewTestLogger()
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	base := []Option{WithLogger(logger), WithClock(clock.Now), WithIdentity(staticIdentity{})}

	r := NewRecorder(cfg, keys, transport, append(base, opts...)...)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, logs
}

func TestLogEvent_FillsDefaults(t *testing.T) {
	transport := &fakeTransport{}
	keys := cache.NewMemoryKeyStore()
	keys.Set(context.Background(), testutil.TestSoftwareID, testutil.TestLicenseKey)
	r, _ := newRecorder(t, transport, keys)

	resp := r.LogEvent(context.Background(), Event{CommandID: "extension.activate"})
	r.Wait()

	assert.True(t, resp.Success)
	require.Len(t, transport.sent(), 1)
	assert.Equal(t, "/analytics/events", transport.paths[0])
	assert.Equal(t, domain.AnalyticsEvent{
		ExtensionID:     testutil.TestSoftwareID,
		CommandID:       "extension.activate",
		LicenseKey:      testutil.TestLicenseKey,
		HasValidLicense: true,
		MachineID:       "machine-1",
		SessionID:       "session-1",
		Timestamp:       "2026-03-01T12:00:00.000Z",
	}, transport.sent()[0])
}

func TestLogEvent_ExplicitFieldsWin(t *testing.T) {
	transport := &fakeTransport{}
	r, _ := newRecorder(t, transport, cache.NewMemoryKeyStore())

	ts := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.FixedZone("X", 3600))
	r.LogEvent(context.Background(), Event{
		CommandID:  "cmd",
		SoftwareID: "sw_other",
		MachineID:  "m",
		SessionID:  "s",
		Timestamp:  ts,
	})
	r.Wait()

	ev := transport.sent()[0]
	assert.Equal(t, "sw_other", ev.ExtensionID)
	assert.Equal(t, "m", ev.MachineID)
	assert.Equal(t, "s", ev.SessionID)
	assert.Equal(t, "2026-01-02T02:04:05.006Z", ev.Timestamp)
	assert.Empty(t, ev.LicenseKey)
	assert.False(t, ev.HasValidLicense)
}

func TestLogEvent_RejectsIncompleteEvents(t *testing.T) {
	tests := []struct {
		name       string
		softwareID string
		ev         Event
	}{
		{"missing command", testutil.TestSoftwareID, Event{}},
		{"missing software id", "", Event{CommandID: "cmd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{}
			r, logs := newRecorder(t, transport, nil)
			r.cfg.SoftwareID = tt.softwareID

			resp := r.LogEvent(context.Background(), tt.ev)
			r.Wait()

			assert.False(t, resp.Success)
			assert.Empty(t, transport.sent())
			assert.True(t, logs.ContainsMessage("Error preparing analytics event"))
		})
	}
}

func TestLogEvent_ReturnsBeforeDelivery(t *testing.T) {
	transport := &fakeTransport{gate: make(chan struct{})}
	r, _ := newRecorder(t, transport, nil)

	resp := r.LogEvent(context.Background(), Event{CommandID: "cmd"})
	assert.True(t, resp.Success)
	assert.Empty(t, transport.sent())

	close(transport.gate)
	r.Wait()
	assert.Len(t, transport.sent(), 1)
}

func TestLogEvent_DeliveryFailureIsLogged(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	transport := &fakeTransport{err: errors.New("connection refused")}
	r, logs := newRecorder(t, transport, nil, WithMeter(mp.Meter("test")))

	resp := r.LogEvent(context.Background(), Event{CommandID: "cmd"})
	r.Wait()

	assert.True(t, resp.Success)
	assert.True(t, logs.ContainsMessage("Error logging analytics event"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	sum := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	status, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("status"))
	assert.Equal(t, "failed", status.AsString())
}

func TestWait_ConcurrentWithLogEvent(t *testing.T) {
	transport := &fakeTransport{}
	r, _ := newRecorder(t, transport, cache.NewMemoryKeyStore())

	const workers, perWorker = 4, 10
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				r.LogEvent(context.Background(), Event{CommandID: "cmd", LicenseKey: testutil.TestLicenseKey})
				r.Wait()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	r.Wait()

	assert.Len(t, transport.sent(), workers*perWorker)
}

func TestClose_DropsLateEvents(t *testing.T) {
	transport := &fakeTransport{}
	r, _ := newRecorder(t, transport, nil)

	require.NoError(t, r.Close(context.Background()))
	resp := r.LogEvent(context.Background(), Event{CommandID: "cmd"})

	assert.False(t, resp.Success)
	assert.Empty(t, transport.sent())
}
