// Package storage provides blob storage providers for snapshot content.
// The abstraction keeps the worker independent of a specific backend
// (Google Cloud Storage in production, memory for local mode and tests).
package storage

import (
	"context"
	"fmt"
	"sync"
)

// NoOp discards snapshot content. Useful for dry runs where the state
// machine is exercised without persisting article bodies.
type NoOp struct{}

// PutObject for NoOp pretends the write succeeded.
func (NoOp) PutObject(_ context.Context, path string, _ string, _ []byte) (string, error) {
	return path, nil
}

// Memory stores blobs in-process for local mode and tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// PutObject persists the content under path, overwriting any prior version.
func (m *Memory) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("object path must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path] = append([]byte(nil), data...)
	return path, nil
}

// GetObject returns stored content; test helper.
func (m *Memory) GetObject(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[path]
	return data, ok
}
