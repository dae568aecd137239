// Package worker executes snapshot jobs delivered by the broker: it drives a
// record through processing into ready, blocked, failed, or back to pending.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagekeep/pagekeep/internal/dispatcher"
	"github.com/pagekeep/pagekeep/internal/events"
	"github.com/pagekeep/pagekeep/internal/snapshot"
)

// Outcome statuses reported back to the broker. Every recognized outcome
// acknowledges the delivery; only error asks the broker to redeliver.
const (
	OutcomeReady    = "ready"
	OutcomeDelayed  = "delayed"
	OutcomeRetrying = "retrying"
	OutcomeBlocked  = "blocked"
	OutcomeFailed   = "failed"
	OutcomeError    = "error"
)

// RetryInfo describes the scheduled next attempt.
type RetryInfo struct {
	Attempt int   `json:"attempt"`
	DelayMs int64 `json:"delayMs"`
}

// Outcome is the delivery result returned to the broker.
type Outcome struct {
	Status    string          `json:"status"`
	SaveID    string          `json:"saveId"`
	Attempt   int             `json:"attempt"`
	Reason    snapshot.Reason `json:"reason,omitempty"`
	Message   string          `json:"message,omitempty"`
	WaitMs    int64           `json:"waitMs,omitempty"`
	Retry     *RetryInfo      `json:"retry,omitempty"`
	Title     string          `json:"title,omitempty"`
	WordCount int             `json:"wordCount,omitempty"`
}

// Config holds worker processing knobs.
type Config struct {
	MaxAttempts   int
	ContentType   string
	StoragePrefix string
}

// Worker processes one snapshot job per delivery.
type Worker struct {
	store      snapshot.RecordStore
	blobs      snapshot.BlobStore
	extractor  snapshot.Extractor
	politeness *snapshot.PolitenessGate
	dispatcher *dispatcher.Dispatcher
	hasher     snapshot.Hasher
	clock      snapshot.Clock
	events     events.Publisher
	cfg        Config
	logger     *zap.Logger
}

// New creates a Worker.
func New(
	store snapshot.RecordStore,
	blobs snapshot.BlobStore,
	extractor snapshot.Extractor,
	politeness *snapshot.PolitenessGate,
	disp *dispatcher.Dispatcher,
	hasher snapshot.Hasher,
	clock snapshot.Clock,
	publisher events.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NoOp{}
	}
	return &Worker{
		store:      store,
		blobs:      blobs,
		extractor:  extractor,
		politeness: politeness,
		dispatcher: disp,
		hasher:     hasher,
		clock:      clock,
		events:     publisher,
		cfg:        cfg,
		logger:     logger,
	}
}

// MaxAttempts exposes the configured attempt budget for payload validation.
func (w *Worker) MaxAttempts() int { return w.cfg.MaxAttempts }

// Process runs one snapshot attempt end to end. It never lets an unexpected
// failure leave the record stuck in processing: any error or panic forces the
// record to failed with a fetch_error before reporting.
func (w *Worker) Process(ctx context.Context, job snapshot.Job) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while processing snapshot job",
				zap.String("save_id", job.SaveID), zap.Any("panic", r))
			w.forceFailed(ctx, job, fmt.Sprintf("panic: %v", r))
			out = Outcome{Status: OutcomeError, SaveID: job.SaveID, Attempt: job.Attempt, Reason: snapshot.ReasonFetchError}
		}
	}()

	outcome, err := w.run(ctx, job)
	if err != nil {
		w.logger.Error("snapshot job failed unexpectedly",
			zap.String("save_id", job.SaveID), zap.Int("attempt", job.Attempt), zap.Error(err))
		w.forceFailed(ctx, job, err.Error())
		return Outcome{Status: OutcomeError, SaveID: job.SaveID, Attempt: job.Attempt, Reason: snapshot.ReasonFetchError, Message: err.Error()}
	}
	return outcome
}

func (w *Worker) run(ctx context.Context, job snapshot.Job) (Outcome, error) {
	if err := w.store.MarkProcessing(ctx, job.SaveID, job.Attempt); err != nil {
		return Outcome{}, fmt.Errorf("mark processing: %w", err)
	}

	domain, err := job.Domain()
	if err != nil {
		return w.finishTerminal(ctx, job, snapshot.ReasonInvalidURL, err.Error())
	}

	decision, err := w.politeness.Check(ctx, domain)
	if err != nil {
		w.logger.Warn("politeness refresh failed", zap.String("domain", domain), zap.Error(err))
	}
	if !decision.Allowed {
		resumeAt := w.clock.Now().Add(decision.Wait)
		if err := w.store.MarkDeferred(ctx, job.SaveID, resumeAt); err != nil {
			return Outcome{}, fmt.Errorf("mark deferred: %w", err)
		}
		requeue := w.dispatcher.Requeue(ctx, job, decision.Wait)
		if requeue.Err != nil {
			w.logger.Warn("deferred job requeue failed",
				zap.String("save_id", job.SaveID), zap.Error(requeue.Err))
		}
		return Outcome{
			Status:  OutcomeDelayed,
			SaveID:  job.SaveID,
			Attempt: job.Attempt,
			WaitMs:  decision.Wait.Milliseconds(),
		}, nil
	}

	result, err := w.extractor.Process(ctx, job.URL)
	// The fetch hit the network either way; keep the domain throttle accurate.
	if merr := w.politeness.MarkFetched(ctx, domain); merr != nil {
		w.logger.Warn("politeness stamp failed", zap.String("domain", domain), zap.Error(merr))
	}
	if err != nil {
		return w.finishRetriable(ctx, job, snapshot.ReasonFetchError, fmt.Sprintf("extractor unreachable: %v", err))
	}
	if !result.OK {
		reason := result.Reason
		if reason == "" {
			reason = snapshot.ReasonFetchError
		}
		if reason.Retriable() {
			return w.finishRetriable(ctx, job, reason, result.Message)
		}
		return w.finishTerminal(ctx, job, reason, result.Message)
	}

	meta := result.Metadata
	if meta.ContentHash == "" {
		sum, herr := w.hasher.Hash(result.Content)
		if herr != nil {
			return Outcome{}, fmt.Errorf("hash content: %w", herr)
		}
		meta.ContentHash = sum
	}

	path := fmt.Sprintf("%s/%s/%s/content.html", w.cfg.StoragePrefix, job.SpaceID, job.SaveID)
	storedPath, err := w.blobs.PutObject(ctx, path, w.cfg.ContentType, result.Content)
	if err != nil {
		return w.finishRetriable(ctx, job, snapshot.ReasonStorageError, fmt.Sprintf("store content: %v", err))
	}

	fetchedAt := w.clock.Now()
	if err := w.store.MarkReady(ctx, job.SaveID, storedPath, fetchedAt, meta); err != nil {
		return Outcome{}, fmt.Errorf("mark ready: %w", err)
	}

	if err := w.store.BackfillSaveDisplay(ctx, job.SaveID, snapshot.DisplayFields{
		Title:       meta.Title,
		SiteName:    meta.SiteName,
		Description: meta.Excerpt,
		ImageURL:    meta.ImageURL,
	}); err != nil {
		w.logger.Warn("display backfill failed", zap.String("save_id", job.SaveID), zap.Error(err))
	}

	w.publishEvent(ctx, job, snapshot.StatusReady, "")

	w.logger.Info("snapshot ready",
		zap.String("save_id", job.SaveID),
		zap.Int("attempt", job.Attempt),
		zap.String("storage_path", storedPath),
	)
	return Outcome{
		Status:    OutcomeReady,
		SaveID:    job.SaveID,
		Attempt:   job.Attempt,
		Title:     meta.Title,
		WordCount: meta.WordCount,
	}, nil
}

// finishRetriable handles a failure that may be retried. With budget left it
// schedules the next attempt and returns the record to pending; exhausted
// budget finalizes the record as failed.
func (w *Worker) finishRetriable(ctx context.Context, job snapshot.Job, reason snapshot.Reason, message string) (Outcome, error) {
	if job.Attempt < w.cfg.MaxAttempts {
		retry := w.dispatcher.EnqueueRetry(ctx, job.SaveID, job.SpaceID, job.URL, job.Attempt)
		if retry.Err == nil {
			delay := w.dispatcher.RetryDelay(job.Attempt)
			nextAt := w.clock.Now().Add(delay)
			if err := w.store.MarkRetrying(ctx, job.SaveID, reason, message, nextAt); err != nil {
				return Outcome{}, fmt.Errorf("mark retrying: %w", err)
			}
			return Outcome{
				Status:  OutcomeRetrying,
				SaveID:  job.SaveID,
				Attempt: job.Attempt,
				Reason:  reason,
				Message: message,
				Retry:   &RetryInfo{Attempt: job.Attempt + 1, DelayMs: delay.Milliseconds()},
			}, nil
		}
		w.logger.Warn("retry enqueue failed, finalizing",
			zap.String("save_id", job.SaveID), zap.Error(retry.Err))
	}
	return w.finishTerminal(ctx, job, reason, message)
}

func (w *Worker) finishTerminal(ctx context.Context, job snapshot.Job, reason snapshot.Reason, message string) (Outcome, error) {
	// storage_error only exists while retries remain; it finalizes as a
	// plain fetch failure.
	if reason == snapshot.ReasonStorageError {
		reason = snapshot.ReasonFetchError
	}
	status := reason.TerminalStatus()
	if err := w.store.MarkTerminal(ctx, job.SaveID, status, reason, message); err != nil {
		return Outcome{}, fmt.Errorf("mark terminal: %w", err)
	}
	w.publishEvent(ctx, job, status, reason)
	outcome := OutcomeFailed
	if status == snapshot.StatusBlocked {
		outcome = OutcomeBlocked
	}
	w.logger.Info("snapshot finalized",
		zap.String("save_id", job.SaveID),
		zap.String("status", string(status)),
		zap.String("reason", string(reason)),
	)
	return Outcome{Status: outcome, SaveID: job.SaveID, Attempt: job.Attempt, Reason: reason, Message: message}, nil
}

// forceFailed is the last-resort transition so a crashed delivery never
// leaves a record stuck in processing.
func (w *Worker) forceFailed(ctx context.Context, job snapshot.Job, message string) {
	if err := w.store.MarkTerminal(ctx, job.SaveID, snapshot.StatusFailed, snapshot.ReasonFetchError, message); err != nil {
		w.logger.Error("failed to finalize crashed job",
			zap.String("save_id", job.SaveID), zap.Error(err))
	}
}

func (w *Worker) publishEvent(ctx context.Context, job snapshot.Job, status snapshot.Status, reason snapshot.Reason) {
	event := events.Event{
		Type:       "snapshot." + string(status),
		SaveID:     job.SaveID,
		SpaceID:    job.SpaceID,
		Status:     status,
		Reason:     reason,
		OccurredAt: w.clock.Now(),
	}
	if err := w.events.Publish(ctx, event); err != nil {
		w.logger.Warn("lifecycle event publish failed",
			zap.String("save_id", job.SaveID), zap.Error(err))
	}
}
