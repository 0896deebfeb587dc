package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransportError("license authority request failed", cause)

	assert.Equal(t, "[TRANSPORT] license authority request failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	err.WithContext("status", 502)
	assert.Equal(t, 502, err.Context["status"])

	plain := NewAppError(ErrTypeConfig, "bad base url", nil)
	assert.Equal(t, "[CONFIG] bad base url", plain.Error())
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ""},
		{"app error", NewStorageError("write failed", nil), ErrTypeStorage},
		{"wrapped app error", fmt.Errorf("outer: %w", NewValidationError("bad", nil)), ErrTypeValidation},
		{"missing license key sentinel", fmt.Errorf("resolve: %w", ErrMissingLicenseKey), ErrTypeMissingCredential},
		{"missing software id sentinel", ErrMissingSoftwareID, ErrTypeMissingCredential},
		{"missing credential wrapper", NewMissingCredentialError(ErrMissingLicenseKey), ErrTypeMissingCredential},
		{"deadline", context.DeadlineExceeded, ErrTypeTransport},
		{"canceled", fmt.Errorf("post: %w", context.Canceled), ErrTypeTransport},
		{"unknown", errors.New("boom"), ErrTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeOf(tt.err))
		})
	}

	assert.True(t, Is(NewConfigError("x", nil), ErrTypeConfig))
	assert.False(t, Is(NewConfigError("x", nil), ErrTypeStorage))
}
