package license

import (
	"context"

	"codecheckout/internal/api"
	"codecheckout/pkg/contracts/domain"
)

const (
	// DefaultCacheDurationHours applies when neither the request nor the config sets one
	DefaultCacheDurationHours = 24

	// ReasonValidationError is returned when validation fails and nothing is cached
	ReasonValidationError = "Error validating license"

	validatePath = "/license/validate"
)

// Request describes one validation. Zero values are filled from the client
// configuration and the identity provider.
type Request struct {
	LicenseKey            string
	SoftwareID            string
	MachineID             string
	SessionID             string
	Environment           domain.Environment
	ForceOnlineValidation bool
	CacheDurationInHours  float64
}

// Result is the validation decision
type Result struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason,omitempty"`
}

// Transport posts JSON to the license authority
type Transport interface {
	Post(ctx context.Context, path string, body, out any, opts ...api.RequestOption) error
}

// Identity supplies default machine and session identifiers
type Identity interface {
	MachineID(ctx context.Context) (string, error)
	SessionID() string
}

// RefreshReporter receives failures of detached background refreshes
type RefreshReporter interface {
	RefreshFailed(ctx context.Context, key string, err error)
}

// RefreshReporterFunc adapts a function to RefreshReporter
type RefreshReporterFunc func(ctx context.Context, key string, err error)

// RefreshFailed calls f
func (f RefreshReporterFunc) RefreshFailed(ctx context.Context, key string, err error) {
	f(ctx, key, err)
}

type nopReporter struct{}

func (nopReporter) RefreshFailed(context.Context, string, error) {}
