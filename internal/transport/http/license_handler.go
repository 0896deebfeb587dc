package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "codecheckout/internal/errors"
	"codecheckout/internal/license"
	"codecheckout/internal/middleware"
	v1 "codecheckout/pkg/contracts/api/v1"
)

// LicenseService is the validation surface the handlers depend on
type LicenseService interface {
	Validate(ctx context.Context, req license.Request) license.Result
	ClearCache(ctx context.Context)
}

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service      LicenseService
	backend      string
	errorHandler *apperrors.ErrorHandler
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewLicenseHandler creates a new license handler. backend names the cache
// backend reported after a clear.
func NewLicenseHandler(service LicenseService, backend string, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseHandler{
		service:      service,
		backend:      backend,
		errorHandler: errorHandler,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger.With(slog.String("handler", "license")),
	}
}

// Routes mounts the license endpoints on r
func (h *LicenseHandler) Routes(r chi.Router) {
	r.Post("/license/validate", h.ValidateLicense)
	r.Get("/license/current", h.CurrentLicense)
	r.Delete("/license/cache", h.ClearCache)
}

// ValidateLicense handles POST /license/validate
func (h *LicenseHandler) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	var req v1.LicenseValidateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationError("request body must be a JSON object", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	res := h.service.Validate(r.Context(), license.Request{
		LicenseKey:            req.LicenseKey,
		SoftwareID:            req.SoftwareID,
		MachineID:             req.MachineID,
		SessionID:             req.SessionID,
		Environment:           req.Environment,
		ForceOnlineValidation: req.ForceOnlineValidation,
		CacheDurationInHours:  req.CacheDurationInHours,
	})

	h.logger.DebugContext(r.Context(), "license validation served",
		slog.Bool("is_valid", res.IsValid),
		slog.Bool("forced", req.ForceOnlineValidation))

	render.JSON(w, r, v1.LicenseValidateResponse{
		IsValid: res.IsValid,
		Reason:  res.Reason,
	})
}

// ClearCache handles DELETE /license/cache
func (h *LicenseHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.service.ClearCache(r.Context())
	render.JSON(w, r, v1.CacheClearResponse{
		Cleared: true,
		Backend: h.backend,
	})
}

// CurrentLicense handles GET /license/current. It reports the decision the
// license gate admitted the request with; the key is masked.
func (h *LicenseHandler) CurrentLicense(w http.ResponseWriter, r *http.Request) {
	key, res, ok := middleware.LicenseFromContext(r.Context())
	if !ok {
		h.errorHandler.HandleError(w, r, apperrors.NewMissingCredentialError(nil))
		return
	}

	render.JSON(w, r, v1.LicenseStatusResponse{
		LicenseKey: license.MaskLicenseKey(key),
		IsValid:    res.IsValid,
		Reason:     res.Reason,
	})
}
