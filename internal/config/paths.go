package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// cacheDirName is the per-user directory holding file-backed cache entries
const cacheDirName = ".codecheckout"

// DefaultCacheDir returns the default file-backed cache location, $HOME/.codecheckout/cache.
func DefaultCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	if home == "" {
		return "", fmt.Errorf("home directory is empty")
	}
	return filepath.Join(home, cacheDirName, "cache"), nil
}

// ResolveCacheDir returns the configured cache directory, falling back to
// DefaultCacheDir. An empty result means no filesystem is available.
func (c CacheConfig) ResolveCacheDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	dir, err := DefaultCacheDir()
	if err != nil {
		return ""
	}
	return dir
}
