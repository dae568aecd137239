// Package events publishes snapshot lifecycle notifications for downstream
// consumers (feed refresh, notifications). Delivery is best effort; a lost
// event never affects the snapshot record itself.
package events

import (
	"context"
	"time"

	"github.com/pagekeep/pagekeep/internal/snapshot"
)

// Event describes a snapshot reaching a terminal or retrying state.
type Event struct {
	Type       string          `json:"type"`
	SaveID     string          `json:"save_id"`
	SpaceID    string          `json:"space_id"`
	Status     snapshot.Status `json:"status"`
	Reason     snapshot.Reason `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher pushes lifecycle events to a topic.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoOp is the publisher used when no topic is configured.
type NoOp struct{}

// Publish for NoOp does nothing.
func (NoOp) Publish(_ context.Context, _ Event) error { return nil }

// Close for NoOp does nothing.
func (NoOp) Close() error { return nil }
