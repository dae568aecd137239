package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Handler consumes a delivered job body in local mode.
type Handler func(ctx context.Context, body []byte)

// Memory drives published jobs straight back into the worker in-process.
// Used only in explicit local mode, where no broker can reach the worker;
// delivery semantics (delay, payload) match the HTTP broker, minus signing.
type Memory struct {
	mu      sync.Mutex
	handler Handler
	nextID  int
	timers  []*time.Timer
	closed  bool
}

// NewMemory creates a local queue delivering to handler.
func NewMemory(handler Handler) *Memory {
	return &Memory{handler: handler}
}

// Publish schedules an in-process delivery of body after opts.Delay.
func (m *Memory) Publish(_ context.Context, body []byte, opts PublishOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrUnavailable
	}
	m.nextID++
	id := fmt.Sprintf("local-%d", m.nextID)

	payload := append([]byte(nil), body...)
	timer := time.AfterFunc(opts.Delay, func() {
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		m.handler(context.Background(), payload)
	})
	m.timers = append(m.timers, timer)
	return id, nil
}

// Close cancels pending deliveries.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
	return nil
}
