package domain

// AnalyticsEvent is the body of POST /analytics/events
type AnalyticsEvent struct {
	ExtensionID     string `json:"extensionId"`
	CommandID       string `json:"commandId"`
	LicenseKey      string `json:"licenseKey,omitempty"`
	HasValidLicense bool   `json:"hasValidLicense"`
	MachineID       string `json:"machineId,omitempty"`
	SessionID       string `json:"sessionId,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// AnalyticsEventResponse reports whether an event was accepted for delivery
type AnalyticsEventResponse struct {
	Success bool `json:"success"`
}
