package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"codecheckout/pkg/contracts"
	v1 "codecheckout/pkg/contracts/api/v1"
)

// BreakerReporter exposes the circuit breaker state of the authority client
type BreakerReporter interface {
	BreakerState() string
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	backend string
	breaker BreakerReporter
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(backend string, breaker BreakerReporter) *HealthHandler {
	return &HealthHandler{backend: backend, breaker: breaker}
}

// Routes mounts the health endpoint on r
func (h *HealthHandler) Routes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
}

// HealthCheck handles GET /health. The server stays healthy while the
// breaker is open because validation falls back to cached decisions.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	breaker := "disabled"
	if h.breaker != nil {
		breaker = h.breaker.BreakerState()
	}

	status := "ok"
	if breaker == "open" {
		status = "degraded"
	}

	render.JSON(w, r, v1.HealthResponse{
		Status:       status,
		Version:      contracts.Version,
		CacheBackend: h.backend,
		Breaker:      breaker,
	})
}
