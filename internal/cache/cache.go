// Package cache defines the interface for the shared key-value cache backing
// the politeness and quota gates.
// This abstraction allows the application to be independent of a specific
// cache implementation and to degrade gracefully when none is configured.
package cache

import (
	"context"
	"time"
)

// Provider defines the common interface for the shared cache.
type Provider interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments the counter at key and returns the new value.
	// The increment that produces 1 also sets the key's expiry to ttl.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Close cleans up any client connections.
	Close() error
}

// NoOp is the provider used when no cache backend is configured.
// Gets always miss and increments always report the first hit, so every
// gate built on top of it allows the operation. Local development only.
type NoOp struct{}

// Get for NoOp always misses.
func (NoOp) Get(_ context.Context, _ string) (string, bool, error) { return "", false, nil }

// Set for NoOp discards the value.
func (NoOp) Set(_ context.Context, _, _ string, _ time.Duration) error { return nil }

// Incr for NoOp always returns 1.
func (NoOp) Incr(_ context.Context, _ string, _ time.Duration) (int64, error) { return 1, nil }

// Close for NoOp does nothing.
func (NoOp) Close() error { return nil }
