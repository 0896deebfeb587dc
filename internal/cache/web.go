package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

const (
	// webRecordPrefix namespaces validation records in a shared web store
	webRecordPrefix = "codecheckout_license_"
	// webKeyPrefix namespaces last-known license keys in a shared web store
	webKeyPrefix    = "codecheckout_lastkey_"
)

// WebStore is the subset of the browser Storage API the cache needs.
// Keys are enumerated by index as localStorage does.
type WebStore interface {
	Len() int
	Key(i int) (string, bool)
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
	RemoveItem(key string)
}

// WebStorage persists records in a WebStore under a fixed prefix
type WebStorage struct {
	store  WebStore
	logger *slog.Logger
}

// NewWebStorage wraps store
func NewWebStorage(store WebStore, logger *slog.Logger) *WebStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebStorage{store: store, logger: logger}
}

// Get retrieves a record; unparsable values read as absent
func (w *WebStorage) Get(ctx context.Context, key string) (Record, bool) {
	raw, ok := w.store.GetItem(webRecordPrefix + key)
	if !ok {
		return Record{}, false
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		w.logger.WarnContext(ctx, "Ignoring unreadable cache entry",
			slog.String("backend", string(KindWebStorage)),
			slog.String("key_hash", keyHash(key)),
			slog.String("error", err.Error()),
		)
		return Record{}, false
	}
	return rec, true
}

// Set stores a record; quota and serialization errors are logged and skipped
func (w *WebStorage) Set(ctx context.Context, key string, rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to encode cache entry",
			slog.String("backend", string(KindWebStorage)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := w.store.SetItem(webRecordPrefix+key, string(data)); err != nil {
		w.logger.WarnContext(ctx, "Failed to write cache entry",
			slog.String("backend", string(KindWebStorage)),
			slog.String("key_hash", keyHash(key)),
			slog.String("error", err.Error()),
		)
	}
}

// Clear removes only keys carrying the record prefix
func (w *WebStorage) Clear(ctx context.Context) {
	// collect first, removal shifts indices
	var owned []string
	for i := 0; i < w.store.Len(); i++ {
		k, ok := w.store.Key(i)
		if ok && strings.HasPrefix(k, webRecordPrefix) {
			owned = append(owned, k)
		}
	}

	for _, k := range owned {
		w.store.RemoveItem(k)
	}

	w.logger.DebugContext(ctx, "Cache cleared",
		slog.String("backend", string(KindWebStorage)),
		slog.Int("removed", len(owned)),
	)
}

func (w *WebStorage) Kind() Kind { return KindWebStorage }

// WebKeyStore persists last-known license keys in a WebStore
type WebKeyStore struct {
	store  WebStore
	logger *slog.Logger
}

// NewWebKeyStore wraps store
func NewWebKeyStore(store WebStore, logger *slog.Logger) *WebKeyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebKeyStore{store: store, logger: logger}
}

func (s *WebKeyStore) Get(_ context.Context, softwareID string) (string, bool) {
	key, ok := s.store.GetItem(webKeyPrefix + softwareID)
	return key, ok && key != ""
}

func (s *WebKeyStore) Set(ctx context.Context, softwareID, licenseKey string) {
	if err := s.store.SetItem(webKeyPrefix+softwareID, licenseKey); err != nil {
		s.logger.WarnContext(ctx, "Failed to remember license key",
			slog.String("backend", string(KindWebStorage)),
			slog.String("software_id", softwareID),
			slog.String("error", err.Error()),
		)
	}
}

// MapWebStore is an in-process WebStore. It lets hosts without a browser
// inject a shared key/value namespace, and is used by tests.
type MapWebStore struct {
	items map[string]string
	mutex sync.RWMutex
}

// NewMapWebStore creates an empty MapWebStore
func NewMapWebStore() *MapWebStore {
	return &MapWebStore{items: make(map[string]string)}
}

func (m *MapWebStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.items)
}

// Key returns the i-th key in lexical order
func (m *MapWebStore) Key(i int) (string, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if i < 0 || i >= len(m.items) {
		return "", false
	}
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[i], true
}

func (m *MapWebStore) GetItem(key string) (string, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *MapWebStore) SetItem(key, value string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.items[key] = value
	return nil
}

func (m *MapWebStore) RemoveItem(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.items, key)
}
