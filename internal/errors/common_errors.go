package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeMissingCredential ErrorType = "MISSING_CREDENTIAL"
	ErrTypeTransport         ErrorType = "TRANSPORT"
	ErrTypeStorage           ErrorType = "STORAGE"
	ErrTypeConfig            ErrorType = "CONFIG"
	ErrTypeValidation        ErrorType = "VALIDATION"
	ErrTypeUnknown           ErrorType = "UNKNOWN"
)

// Sentinel errors for credential resolution
var (
	ErrMissingLicenseKey = errors.New("license key is required")
	ErrMissingSoftwareID = errors.New("software id is required")
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewMissingCredentialError wraps a missing license key or software id
func NewMissingCredentialError(cause error) *AppError {
	return NewAppError(ErrTypeMissingCredential, "no credential to validate", cause)
}

// NewTransportError creates a network or authority failure
func NewTransportError(message string, cause error) *AppError {
	return NewAppError(ErrTypeTransport, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewValidationError creates an input validation error
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeValidation, message, cause)
}

// TypeOf returns the ErrorType of the first AppError in err's chain.
// Context cancellation counts as a transport failure.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}

	switch {
	case errors.Is(err, ErrMissingLicenseKey), errors.Is(err, ErrMissingSoftwareID):
		return ErrTypeMissingCredential
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrTypeTransport
	default:
		return ErrTypeUnknown
	}
}

// Is reports whether err carries an AppError of type t
func Is(err error, t ErrorType) bool {
	return TypeOf(err) == t
}
