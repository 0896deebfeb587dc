package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	fileRecordPrefix = "validation_"
	fileRecordExt    = ".json"
	fileKeyPrefix    = "license_"
	fileKeyExt       = ".txt"

	// maxFileNameLen is NAME_MAX on common filesystems
	maxFileNameLen = 255
	// hashedNameMarker never appears in a query-escaped name since '=' is escaped
	hashedNameMarker = "sha256="
)

// File persists one JSON file per record in a directory that is created on
// first write. Writes go through a temp file and rename so readers never see
// partial records.
type File struct {
	dir    string
	logger *slog.Logger
}

// NewFile creates a file-backed storage rooted at dir
func NewFile(dir string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{dir: dir, logger: logger}
}

// Dir returns the cache directory
func (f *File) Dir() string {
	return f.dir
}

func (f *File) recordPath(key string) string {
	return filepath.Join(f.dir, fileName(fileRecordPrefix, key, fileRecordExt))
}

// fileName escapes name into a file name, switching to its sha256 when the
// escaped form would exceed maxFileNameLen.
func fileName(prefix, name, ext string) string {
	escaped := prefix + url.QueryEscape(name) + ext
	if len(escaped) <= maxFileNameLen {
		return escaped
	}
	sum := sha256.Sum256([]byte(name))
	return prefix + hashedNameMarker + hex.EncodeToString(sum[:]) + ext
}

// Get reads a record; missing, unreadable and corrupted files read as absent
func (f *File) Get(ctx context.Context, key string) (Record, bool) {
	path := f.recordPath(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.WarnContext(ctx, "Failed to read cache file",
				slog.String("backend", string(KindFile)),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return Record{}, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		f.logger.WarnContext(ctx, "Ignoring corrupted cache file",
			slog.String("backend", string(KindFile)),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return Record{}, false
	}
	return rec, true
}

// Set writes a record; failures are logged and skipped
func (f *File) Set(ctx context.Context, key string, rec Record) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to encode cache entry",
			slog.String("backend", string(KindFile)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := writeFileAtomic(f.dir, f.recordPath(key), data); err != nil {
		f.logger.WarnContext(ctx, "Failed to write cache file",
			slog.String("backend", string(KindFile)),
			slog.String("key_hash", keyHash(key)),
			slog.String("error", err.Error()),
		)
	}
}

// Clear deletes only files carrying the record prefix and extension
func (f *File) Clear(ctx context.Context) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.WarnContext(ctx, "Failed to list cache directory",
				slog.String("backend", string(KindFile)),
				slog.String("dir", f.dir),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, fileRecordPrefix) || !strings.HasSuffix(name, fileRecordExt) {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.logger.WarnContext(ctx, "Failed to remove cache file",
				slog.String("backend", string(KindFile)),
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	f.logger.DebugContext(ctx, "Cache cleared",
		slog.String("backend", string(KindFile)),
		slog.Int("removed", removed),
	)
}

func (f *File) Kind() Kind { return KindFile }

// FileKeyStore keeps one plain-text file per software identifier
type FileKeyStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileKeyStore creates a key store rooted at dir
func NewFileKeyStore(dir string, logger *slog.Logger) *FileKeyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileKeyStore{dir: dir, logger: logger}
}

func (s *FileKeyStore) keyPath(softwareID string) string {
	return filepath.Join(s.dir, fileName(fileKeyPrefix, softwareID, fileKeyExt))
}

// Get returns the remembered key with surrounding whitespace trimmed
func (s *FileKeyStore) Get(ctx context.Context, softwareID string) (string, bool) {
	data, err := os.ReadFile(s.keyPath(softwareID))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "Failed to read license key file",
				slog.String("backend", string(KindFile)),
				slog.String("software_id", softwareID),
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}

	key := strings.TrimSpace(string(data))
	return key, key != ""
}

func (s *FileKeyStore) Set(ctx context.Context, softwareID, licenseKey string) {
	if err := writeFileAtomic(s.dir, s.keyPath(softwareID), []byte(licenseKey)); err != nil {
		s.logger.WarnContext(ctx, "Failed to remember license key",
			slog.String("backend", string(KindFile)),
			slog.String("software_id", softwareID),
			slog.String("error", err.Error()),
		)
	}
}

// writeFileAtomic creates dir when needed and replaces path with data
func writeFileAtomic(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
