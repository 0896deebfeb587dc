package cache

import (
	"context"
	"log/slog"

	"codecheckout/internal/config"
)

// Storage is a keyed store of validation records. Implementations are safe for
// concurrent use and never fail from the caller's perspective.
type Storage interface {
	// Get returns the record for key, or false when absent or unreadable.
	Get(ctx context.Context, key string) (Record, bool)
	// Set stores rec under key, replacing any previous record.
	Set(ctx context.Context, key string, rec Record)
	// Clear removes every record owned by this storage and nothing else.
	Clear(ctx context.Context)
	Kind() Kind
}

// KeyStore remembers the last license key that validated for a software identifier
type KeyStore interface {
	Get(ctx context.Context, softwareID string) (string, bool)
	Set(ctx context.Context, softwareID, licenseKey string)
}

// Backend pairs the record storage with its last-known key store.
// Both always share the same variant.
type Backend struct {
	Records Storage
	Keys    KeyStore
}

// Kind returns the selected backend variant
func (b *Backend) Kind() Kind {
	return b.Records.Kind()
}

// Capabilities describes which persistent stores the environment offers
type Capabilities struct {
	// Web is a browser-like persistent key/value store, nil when unavailable.
	Web WebStore
	// Dir is a writable cache directory, empty when no filesystem is usable.
	Dir string
}

// Detect probes the running environment once
func Detect() Capabilities {
	caps := Capabilities{Web: browserStorage()}
	if caps.Web != nil {
		return caps
	}
	if dir, err := config.DefaultCacheDir(); err == nil {
		caps.Dir = dir
	}
	return caps
}

// Open selects exactly one backend: WebStorage when a web store is available,
// then File when a directory is available, otherwise Memory.
func Open(caps Capabilities, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}

	var b *Backend
	switch {
	case caps.Web != nil:
		b = &Backend{
			Records: NewWebStorage(caps.Web, logger),
			Keys:    NewWebKeyStore(caps.Web, logger),
		}
	case caps.Dir != "":
		b = &Backend{
			Records: NewFile(caps.Dir, logger),
			Keys:    NewFileKeyStore(caps.Dir, logger),
		}
	default:
		b = &Backend{
			Records: NewMemory(),
			Keys:    NewMemoryKeyStore(),
		}
	}

	logger.Debug("Cache backend selected",
		slog.String("backend", string(b.Kind())),
		slog.String("dir", caps.Dir),
	)
	return b
}
