package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Provider for tests and local mode. Expiry is
// evaluated lazily on access, which is enough for single-process use.
type Memory struct {
	mu      sync.Mutex
	values  map[string]memoryEntry
	nowFunc func() time.Time
}

type memoryEntry struct {
	value     string
	count     int64
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		values:  make(map[string]memoryEntry),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock, letting tests expire windows without sleeping.
func (m *Memory) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = now
}

func (m *Memory) live(key string) (memoryEntry, bool) {
	entry, ok := m.values[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !m.nowFunc().Before(entry.expiresAt) {
		delete(m.values, key)
		return memoryEntry{}, false
	}
	return entry, true
}

// Get returns the value at key if it has not expired.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores value with a TTL.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.nowFunc().Add(ttl)
	}
	m.values[key] = entry
	return nil
}

// Incr increments the counter at key, starting a fresh window at 1.
func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.live(key)
	entry.count++
	if !ok && ttl > 0 {
		entry.expiresAt = m.nowFunc().Add(ttl)
	}
	m.values[key] = entry
	return entry.count, nil
}

// Close does nothing for the in-memory cache.
func (m *Memory) Close() error { return nil }
