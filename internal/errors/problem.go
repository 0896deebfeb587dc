package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// Problem types following RFC 7807
const (
	TypeValidation     = "/errors/validation"
	TypeNotFound       = "/errors/not-found"
	TypeMethod         = "/errors/method-not-allowed"
	TypeInternal       = "/errors/internal"
	TypeBadGateway     = "/errors/bad-gateway"
	TypeTimeout        = "/errors/timeout"
	TypeLicenseMissing = "/errors/license/missing"
	TypeLicenseInvalid = "/errors/license/invalid"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions next to the standard fields
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, len(pd.Extensions)+5)

	for k, v := range pd.Extensions {
		data[k] = v
	}

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = make(map[string]interface{})
	}
	pd.Extensions[key] = value
	return pd
}

// NewLicenseMissingProblem is returned when a gated request carries no license key
func NewLicenseMissingProblem(instance, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusUnauthorized,
		TypeLicenseMissing,
		"License Required",
		"A license key is required. Send it as a Bearer token or in the X-License-Key header.",
		instance,
	).WithExtension("trace_id", traceID)
}

// NewLicenseInvalidProblem is returned when a gated request's license does not validate
func NewLicenseInvalidProblem(reason, instance, traceID string) *ProblemDetails {
	if reason == "" {
		reason = "License is not valid"
	}
	return NewProblemDetails(
		http.StatusForbidden,
		TypeLicenseInvalid,
		"Invalid License",
		reason,
		instance,
	).WithExtension("trace_id", traceID)
}
