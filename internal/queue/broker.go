package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Broker publishes jobs to an HTTP push broker. The broker signs its
// deliveries to the worker endpoint; verification lives with the worker.
type Broker struct {
	publishURL string
	workerURL  string
	token      string
	client     *http.Client
}

// BrokerConfig configures the broker client.
type BrokerConfig struct {
	// PublishURL is the broker's publish endpoint.
	PublishURL string
	// WorkerURL is the destination the broker pushes deliveries to.
	WorkerURL string
	// Token authenticates publish calls.
	Token string
	// Timeout bounds publish round-trips.
	Timeout time.Duration
}

// NewBroker builds an HTTP broker client.
func NewBroker(cfg BrokerConfig) *Broker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Broker{
		publishURL: cfg.PublishURL,
		workerURL:  cfg.WorkerURL,
		token:      cfg.Token,
		client:     &http.Client{Timeout: timeout},
	}
}

type publishResponse struct {
	MessageID string `json:"message_id"`
}

// Publish submits body for delivery to the worker endpoint after opts.Delay,
// with opts.MaxRetries broker-side redeliveries. Returns the broker message ID.
func (b *Broker) Publish(ctx context.Context, body []byte, opts PublishOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.publishURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("X-Broker-Destination", b.workerURL)
	if opts.Delay > 0 {
		req.Header.Set("X-Broker-Delay", strconv.FormatInt(int64(opts.Delay.Seconds()), 10)+"s")
	}
	if opts.MaxRetries > 0 {
		req.Header.Set("X-Broker-Retries", strconv.Itoa(opts.MaxRetries))
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish to broker: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("broker publish returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode broker response: %w", err)
	}
	return parsed.MessageID, nil
}

// Close releases idle connections.
func (b *Broker) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
