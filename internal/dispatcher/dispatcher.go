// Package dispatcher builds snapshot job payloads and schedules their
// delivery through the message broker.
package dispatcher

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/pagekeep/pagekeep/internal/queue"
	"github.com/pagekeep/pagekeep/internal/snapshot"
)

// ErrMaxAttempts rejects a retry for a job whose attempt budget is spent.
var ErrMaxAttempts = errors.New("max attempts exceeded")

// ErrDisabled reports that snapshotting is switched off by the feature flag.
var ErrDisabled = errors.New("snapshots disabled")

// Config controls dispatch behavior.
type Config struct {
	// Enabled is the snapshot feature flag.
	Enabled bool
	// MaxAttempts bounds application-level attempts per save.
	MaxAttempts int
	// RetryDelays is the backoff table indexed by the failed attempt (1-based);
	// attempts beyond the table clamp to its last entry.
	RetryDelays []time.Duration
	// InitialJitter spreads first deliveries to avoid thundering-herd on
	// bulk imports.
	InitialJitter time.Duration
}

// Result reports the outcome of an enqueue. A false Enqueued with a non-nil
// Err means "snapshot skipped"; callers must not fail the parent operation.
type Result struct {
	Enqueued  bool
	MessageID string
	Err       error
}

// Dispatcher submits snapshot jobs to the broker.
type Dispatcher struct {
	queue  queue.Provider
	cfg    Config
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(q queue.Provider, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{queue: q, cfg: cfg, logger: logger}
}

// Enqueue schedules the first attempt for a save. The broker gets
// MaxAttempts-1 delivery retries as a safety net independent of the
// application's own retry scheduling.
func (d *Dispatcher) Enqueue(ctx context.Context, saveID, spaceID, url string) Result {
	if !d.cfg.Enabled {
		return Result{Err: ErrDisabled}
	}
	job := snapshot.Job{SaveID: saveID, SpaceID: spaceID, URL: url, Attempt: 1}
	return d.publish(ctx, job, randomJitter(d.cfg.InitialJitter))
}

// EnqueueRetry schedules the next attempt after a retriable failure on
// attempt. The new job carries attempt+1 and is delivered after the
// configured backoff for the failed attempt.
func (d *Dispatcher) EnqueueRetry(ctx context.Context, saveID, spaceID, url string, attempt int) Result {
	if !d.cfg.Enabled {
		return Result{Err: ErrDisabled}
	}
	if attempt >= d.cfg.MaxAttempts {
		return Result{Err: ErrMaxAttempts}
	}
	job := snapshot.Job{SaveID: saveID, SpaceID: spaceID, URL: url, Attempt: attempt + 1}
	return d.publish(ctx, job, d.RetryDelay(attempt))
}

// Requeue republishes a job unchanged after delay. Used for politeness
// deferrals, which do not consume an attempt.
func (d *Dispatcher) Requeue(ctx context.Context, job snapshot.Job, delay time.Duration) Result {
	if !d.cfg.Enabled {
		return Result{Err: ErrDisabled}
	}
	return d.publish(ctx, job, delay)
}

// RetryDelay returns the backoff after a failure on attempt (1-based),
// clamped to the last table entry.
func (d *Dispatcher) RetryDelay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(d.cfg.RetryDelays) {
		idx = len(d.cfg.RetryDelays) - 1
	}
	return d.cfg.RetryDelays[idx]
}

func (d *Dispatcher) publish(ctx context.Context, job snapshot.Job, delay time.Duration) Result {
	body, err := json.Marshal(job)
	if err != nil {
		return Result{Err: fmt.Errorf("marshal job: %w", err)}
	}
	messageID, err := d.queue.Publish(ctx, body, queue.PublishOptions{
		Delay:      delay,
		MaxRetries: d.cfg.MaxAttempts - 1,
	})
	if err != nil {
		return Result{Err: fmt.Errorf("publish job for save %s: %w", job.SaveID, err)}
	}
	d.logger.Debug("snapshot job published",
		zap.String("save_id", job.SaveID),
		zap.Int("attempt", job.Attempt),
		zap.Duration("delay", delay),
		zap.String("message_id", messageID),
	)
	return Result{Enqueued: true, MessageID: messageID}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
