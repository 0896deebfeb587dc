package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codecheckout/internal/config"
	apperrors "codecheckout/internal/errors"
	customMiddleware "codecheckout/internal/middleware"
	"codecheckout/internal/shared/testutil"
	"codecheckout/pkg/contracts"
	v1 "codecheckout/pkg/contracts/api/v1"
	"codecheckout/pkg/contracts/domain"
)

// authority accepts exactly one license key
type authority struct {
	calls atomic.Int32
}

func (a *authority) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.calls.Add(1)
	var req domain.ValidateLicenseRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	resp := domain.ValidateLicenseResponse{IsValid: req.LicenseKey == testutil.TestLicenseKey}
	if !resp.IsValid {
		resp.Reason = "License not found"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func testConfig(t *testing.T, authorityURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Client.SoftwareID = testutil.TestSoftwareID
	cfg.Client.BaseURL = authorityURL
	cfg.Cache.Backend = "memory"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Server.RateLimit.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, mutate func(*config.Config)) (*Application, *authority) {
	t.Helper()
	auth := &authority{}
	srv := httptest.NewServer(auth)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	if mutate != nil {
		mutate(cfg)
	}

	logger, _ := testutil.NewTestLogger()
	a, err := NewApplication(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Client.Close(context.Background())
		_ = a.OTelProviders.Shutdown(context.Background())
	})
	return a, auth
}

func serve(a *Application, method, path, body, key string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(customMiddleware.LicenseKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	return rec
}

func TestNewApplication(t *testing.T) {
	a, _ := newTestApp(t, nil)

	assert.NotNil(t, a.Router)
	assert.NotNil(t, a.Server)
	assert.NotNil(t, a.LicenseGate)
	assert.Equal(t, ":0", a.Server.Addr)
}

func TestNewApplication_InvalidClientConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Client.BaseURL = ""

	logger, _ := testutil.NewTestLogger()
	_, err := NewApplication(cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize license client")
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		key        string
		wantStatus int
		wantBody   string
	}{
		{"health is public", http.MethodGet, "/health", "", "", http.StatusOK, `"status":"ok"`},
		{"validate is public", http.MethodPost, "/license/validate", `{"licenseKey":"` + testutil.TestLicenseKey + `"}`, "", http.StatusOK, `"isValid":true`},
		{"validate rejects bad body", http.MethodPost, "/license/validate", `[1,2]`, "", http.StatusBadRequest, apperrors.TypeValidation},
		{"current requires key", http.MethodGet, "/license/current", "", "", http.StatusUnauthorized, apperrors.TypeLicenseMissing},
		{"current denies invalid key", http.MethodGet, "/license/current", "", testutil.OtherLicenseKey, http.StatusForbidden, "License not found"},
		{"current admits valid key", http.MethodGet, "/license/current", "", testutil.TestLicenseKey, http.StatusOK, `"isValid":true`},
		{"clear cache requires key", http.MethodDelete, "/license/cache", "", "", http.StatusUnauthorized, apperrors.TypeLicenseMissing},
		{"unknown route", http.MethodGet, "/nope", "", "", http.StatusNotFound, apperrors.TypeNotFound},
		{"wrong method", http.MethodPut, "/health", "", "", http.StatusMethodNotAllowed, apperrors.TypeMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestApp(t, nil)

			rec := serve(a, tt.method, tt.path, tt.body, tt.key)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestHealth_ReportsClientState(t *testing.T) {
	a, _ := newTestApp(t, nil)

	rec := serve(a, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp v1.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, v1.HealthResponse{
		Status:       "ok",
		Version:      contracts.Version,
		CacheBackend: "memory",
		Breaker:      "closed",
	}, resp)
}

func TestClearCache_ForcesRevalidation(t *testing.T) {
	a, auth := newTestApp(t, nil)

	// the gate validates online once, then the handler clears the cache
	rec := serve(a, http.MethodDelete, "/license/cache", "", testutil.TestLicenseKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cleared":true`)
	assert.Equal(t, int32(1), auth.calls.Load())

	rec = serve(a, http.MethodGet, "/license/current", "", testutil.TestLicenseKey)
	require.Equal(t, http.StatusOK, rec.Code)
	a.Client.Validator().Wait()
	assert.Equal(t, int32(2), auth.calls.Load())
}

func TestRateLimit(t *testing.T) {
	a, _ := newTestApp(t, func(cfg *config.Config) {
		cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}
	})

	assert.Equal(t, http.StatusOK, serve(a, http.MethodGet, "/health", "", "").Code)

	rec := serve(a, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestMetricsEndpoint(t *testing.T) {
	a, _ := newTestApp(t, nil)

	serve(a, http.MethodGet, "/license/current", "", testutil.TestLicenseKey)

	rec := serve(a, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "license_gate_requests_total")
	assert.Contains(t, rec.Body.String(), "license_validations_total")
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	a, _ := newTestApp(t, func(cfg *config.Config) {
		cfg.Telemetry.MetricExporter = "none"
	})

	rec := serve(a, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplication_StartStop(t *testing.T) {
	a, _ := newTestApp(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx, cancel))

	resp, err := http.Get("http://" + a.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, a.Stop(context.Background()))

	_, err = http.Get("http://" + a.Addr() + "/health")
	assert.Error(t, err)
}

func TestApplication_StartPortInUse(t *testing.T) {
	first, _ := newTestApp(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, first.Start(ctx, cancel))
	defer first.Stop(context.Background())

	second, _ := newTestApp(t, nil)
	second.Server.Addr = first.Addr()

	err := second.Start(ctx, cancel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestApplication_RunStopsOnContextCancel(t *testing.T) {
	a, _ := newTestApp(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
