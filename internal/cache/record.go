package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Kind identifies a storage backend variant
type Kind string

const (
	KindMemory     Kind = "memory"
	KindWebStorage Kind = "web_storage"
	KindFile       Kind = "file"
)

// Record is the unit of cached validation truth
type Record struct {
	IsValid   bool   `json:"isValid"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// NewRecord stamps a validation outcome with now
func NewRecord(isValid bool, reason string, now time.Time) Record {
	return Record{
		IsValid:   isValid,
		Reason:    reason,
		Timestamp: now.UnixMilli(),
	}
}

// Age returns how old the record is at now
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(r.Timestamp))
}

// keySeparator splits the software identifier from the license key
const keySeparator = ":"

var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Key builds the cache key for a software identifier and license key.
// The software identifier is escaped so that it never contains the separator,
// which makes the first separator the boundary and the mapping injective.
func Key(softwareID, licenseKey string) string {
	return keyEscaper.Replace(softwareID) + keySeparator + licenseKey
}

// keyHash returns a short stable fingerprint of a key for logs
func keyHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}
