// Package api contains the request and response contracts of the codecheckout
// HTTP surface. Version v1 is the current API version.
package api

import (
	"codecheckout/pkg/contracts/domain"
)

// LicenseValidateRequest is the body of POST /license/validate on the local server
type LicenseValidateRequest struct {
	LicenseKey            string             `json:"licenseKey" validate:"omitempty,max=512"`
	SoftwareID            string             `json:"softwareId" validate:"omitempty,max=256"`
	MachineID             string             `json:"machineId,omitempty" validate:"omitempty,max=256"`
	SessionID             string             `json:"sessionId,omitempty" validate:"omitempty,max=256"`
	Environment           domain.Environment `json:"environment,omitempty"`
	ForceOnlineValidation bool               `json:"forceOnlineValidation,omitempty"`
	CacheDurationInHours  float64            `json:"cacheDurationInHours,omitempty" validate:"gte=0"`
}

// LicenseValidateResponse mirrors the validation decision
type LicenseValidateResponse struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason,omitempty"`
}

// CacheClearResponse reports which backend was cleared
type CacheClearResponse struct {
	Cleared bool   `json:"cleared"`
	Backend string `json:"backend"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	CacheBackend string `json:"cache_backend"`
	Breaker      string `json:"breaker"`
}

// LicenseStatusResponse describes the license admitted for the current request
type LicenseStatusResponse struct {
	LicenseKey string `json:"licenseKey"`
	IsValid    bool   `json:"isValid"`
	Reason     string `json:"reason,omitempty"`
}
