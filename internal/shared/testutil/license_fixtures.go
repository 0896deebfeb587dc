package testutil

import (
	"sync"
	"time"

	"codecheckout/internal/cache"
)

// Test identifiers shared across package tests
const (
	TestSoftwareID  = "sw_test_123"
	TestLicenseKey  = "LK-TEST-ABCD-1234"
	OtherLicenseKey = "LK-TEST-WXYZ-9876"
)

// Clock is a manually advanced time source for freshness tests
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RecordAged returns a record produced age before now
func RecordAged(isValid bool, reason string, age time.Duration, now time.Time) cache.Record {
	return cache.NewRecord(isValid, reason, now.Add(-age))
}
