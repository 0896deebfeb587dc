// Package domain contains the wire types exchanged with the license authority.
// These types are shared by the validator, the HTTP handlers and the
// analytics and checkout calls.
package domain

// Environment is opaque context forwarded to the authority with a validation,
// for example the caller's IP address or user agent.
type Environment map[string]any

// ValidateLicenseRequest is the body of POST /license/validate.
// The license key is also sent as the bearer credential.
type ValidateLicenseRequest struct {
	LicenseKey  string      `json:"licenseKey"`
	SoftwareID  string      `json:"softwareId"`
	MachineID   string      `json:"machineId,omitempty"`
	SessionID   string      `json:"sessionId,omitempty"`
	Environment Environment `json:"environment,omitempty"`
}

// ValidateLicenseResponse is the authority's answer to a validation
type ValidateLicenseResponse struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason,omitempty"`
}
