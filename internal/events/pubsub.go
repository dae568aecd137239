package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSub publishes lifecycle events to a Google Cloud Pub/Sub topic.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSub creates a Pub/Sub client and verifies the topic exists, failing
// fast on bad configuration. Authentication uses Application Default
// Credentials.
func NewPubSub(ctx context.Context, projectID, topicID string) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		cerr := client.Close()
		if cerr != nil {
			return nil, fmt.Errorf("check pubsub topic %q: %w (close: %v)", topicID, err, cerr)
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &PubSub{client: client, topic: topic}, nil
}

// Publish sends the event as JSON. The client batches and retries in the
// background; the returned result is not awaited (fire and forget).
func (p *PubSub) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":    event.Type,
			"save_id": event.SaveID,
		},
	})
	return nil
}

// Close flushes pending publishes and closes the client.
func (p *PubSub) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
