package license

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// logAction logs a validation step with structured data and span correlation
func (v *Validator) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("license."+action, trace.WithAttributes(
			attribute.String("result", result),
		))
	}

	allAttrs := make([]slog.Attr, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		slog.String("component", "license_validator"),
		slog.String("action", action),
	)
	allAttrs = append(allAttrs, attrs...)

	v.logger.LogAttrs(ctx, level, result, allAttrs...)
}

// keyAttrs identifies a license key in logs without revealing it
func keyAttrs(softwareID, licenseKey string) []slog.Attr {
	return []slog.Attr{
		slog.String("software_id", softwareID),
		slog.String("license_key_masked", MaskLicenseKey(licenseKey)),
		slog.String("license_key_hash", hashLicenseKey(licenseKey)),
	}
}

// MaskLicenseKey masks the license key for security
func MaskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// hashLicenseKey creates a short hash of the license key for audit correlation
func hashLicenseKey(key string) string {
	if key == "" {
		return ""
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)[:16]
}
