package cache

import (
	"context"
	"sync"
)

// Memory keeps records for the lifetime of the process
type Memory struct {
	entries map[string]Record
	mutex   sync.RWMutex
}

// NewMemory creates an empty in-memory storage
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Record)}
}

// Get retrieves a record
func (m *Memory) Get(_ context.Context, key string) (Record, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rec, ok := m.entries[key]
	return rec, ok
}

// Set stores a record
func (m *Memory) Set(_ context.Context, key string, rec Record) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entries[key] = rec
}

// Clear removes all records
func (m *Memory) Clear(_ context.Context) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entries = make(map[string]Record)
}

// Len returns the number of stored records
func (m *Memory) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.entries)
}

func (m *Memory) Kind() Kind { return KindMemory }

// MemoryKeyStore keeps last-known keys for the lifetime of the process
type MemoryKeyStore struct {
	keys  map[string]string
	mutex sync.RWMutex
}

// NewMemoryKeyStore creates an empty in-memory key store
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]string)}
}

func (s *MemoryKeyStore) Get(_ context.Context, softwareID string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	key, ok := s.keys[softwareID]
	return key, ok && key != ""
}

func (s *MemoryKeyStore) Set(_ context.Context, softwareID, licenseKey string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.keys[softwareID] = licenseKey
}
