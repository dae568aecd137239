// Package queue defines the interface for the snapshot job broker.
// The broker redelivers published jobs to the worker endpoint over HTTP push;
// this abstraction also covers the in-process local mode and the disabled case.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when no broker is configured. Callers treat it
// as "snapshot skipped", never as a hard failure of the parent operation.
var ErrUnavailable = errors.New("message broker unavailable")

// PublishOptions control broker-side scheduling of a message.
type PublishOptions struct {
	// Delay postpones delivery to the worker endpoint.
	Delay time.Duration
	// MaxRetries is the broker-level redelivery budget, a safety net
	// independent of the application's own retry scheduling.
	MaxRetries int
}

// Provider publishes job payloads for deferred delivery to the worker.
type Provider interface {
	Publish(ctx context.Context, body []byte, opts PublishOptions) (string, error)
	Close() error
}

// NoOp is the provider used when snapshot dispatch is not configured.
type NoOp struct{}

// Publish for NoOp reports the broker as unavailable.
func (NoOp) Publish(_ context.Context, _ []byte, _ PublishOptions) (string, error) {
	return "", ErrUnavailable
}

// Close for NoOp does nothing.
func (NoOp) Close() error { return nil }
