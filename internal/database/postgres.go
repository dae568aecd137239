package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagekeep/pagekeep/internal/snapshot"
)

// DB is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements snapshot.RecordStore on PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE saves (
//	    id UUID PRIMARY KEY,
//	    space_id UUID NOT NULL,
//	    user_id UUID NOT NULL,
//	    url TEXT NOT NULL,
//	    canonical_url TEXT NOT NULL,
//	    title TEXT NOT NULL DEFAULT '',
//	    site_name TEXT NOT NULL DEFAULT '',
//	    description TEXT NOT NULL DEFAULT '',
//	    image_url TEXT NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX saves_canonical_idx ON saves (space_id, canonical_url);
//
//	CREATE TABLE snapshots (
//	    save_id UUID PRIMARY KEY REFERENCES saves (id),
//	    space_id UUID NOT NULL,
//	    status TEXT NOT NULL,
//	    blocked_reason TEXT,
//	    attempts INT NOT NULL DEFAULT 0,
//	    next_attempt_at TIMESTAMPTZ,
//	    fetched_at TIMESTAMPTZ,
//	    storage_path TEXT,
//	    canonical_url TEXT NOT NULL DEFAULT '',
//	    title TEXT NOT NULL DEFAULT '',
//	    byline TEXT NOT NULL DEFAULT '',
//	    excerpt TEXT NOT NULL DEFAULT '',
//	    site_name TEXT NOT NULL DEFAULT '',
//	    image_url TEXT NOT NULL DEFAULT '',
//	    word_count INT NOT NULL DEFAULT 0,
//	    language TEXT NOT NULL DEFAULT '',
//	    content_hash TEXT NOT NULL DEFAULT '',
//	    error_message TEXT,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Postgres struct {
	db DB
}

// NewPostgres wraps an existing connection pool (or mock).
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Connect creates a pgx pool from the DSN and pings it.
func Connect(ctx context.Context, dsn string) (*Postgres, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(pool), pool, nil
}

// CreateSave inserts the parent save row.
func (p *Postgres) CreateSave(ctx context.Context, save snapshot.Save) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO saves (id, space_id, user_id, url, canonical_url, title, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		save.ID, save.SpaceID, save.UserID, save.URL, save.CanonicalURL, save.Title, save.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert save: %w", err)
	}
	return nil
}

// FindSaveByCanonicalURL looks up an existing save by its canonical URL.
func (p *Postgres) FindSaveByCanonicalURL(ctx context.Context, spaceID, canonicalURL string) (string, bool, error) {
	var id string
	err := p.db.QueryRow(ctx, `
		SELECT id FROM saves WHERE space_id = $1 AND canonical_url = $2 LIMIT 1`,
		spaceID, canonicalURL,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find save by canonical url: %w", err)
	}
	return id, true, nil
}

// BackfillSaveDisplay fills empty display columns on the save; columns the
// user already populated are never overwritten.
func (p *Postgres) BackfillSaveDisplay(ctx context.Context, saveID string, fields snapshot.DisplayFields) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE saves SET
			title = COALESCE(NULLIF(title, ''), $2),
			site_name = COALESCE(NULLIF(site_name, ''), $3),
			description = COALESCE(NULLIF(description, ''), $4),
			image_url = COALESCE(NULLIF(image_url, ''), $5)
		WHERE id = $1`,
		saveID, fields.Title, fields.SiteName, fields.Description, fields.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("backfill save display: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRecord inserts the pending snapshot record for a new save.
func (p *Postgres) CreateRecord(ctx context.Context, saveID, spaceID string) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO snapshots (save_id, space_id, status)
		VALUES ($1, $2, $3)`,
		saveID, spaceID, string(snapshot.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot record: %w", err)
	}
	return nil
}

// GetRecord fetches the snapshot record for a save.
func (p *Postgres) GetRecord(ctx context.Context, saveID string) (snapshot.Record, error) {
	var rec snapshot.Record
	var blockedReason, storagePath, errorMessage *string
	var nextAttemptAt, fetchedAt *time.Time

	err := p.db.QueryRow(ctx, `
		SELECT save_id, space_id, status, blocked_reason, attempts, next_attempt_at,
		       fetched_at, storage_path, canonical_url, title, byline, excerpt,
		       site_name, image_url, word_count, language, content_hash,
		       error_message, created_at, updated_at
		FROM snapshots WHERE save_id = $1`,
		saveID,
	).Scan(
		&rec.SaveID, &rec.SpaceID, &rec.Status, &blockedReason, &rec.Attempts, &nextAttemptAt,
		&fetchedAt, &storagePath, &rec.Metadata.CanonicalURL, &rec.Metadata.Title,
		&rec.Metadata.Byline, &rec.Metadata.Excerpt, &rec.Metadata.SiteName,
		&rec.Metadata.ImageURL, &rec.Metadata.WordCount, &rec.Metadata.Language,
		&rec.Metadata.ContentHash, &errorMessage, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return snapshot.Record{}, ErrNotFound
	}
	if err != nil {
		return snapshot.Record{}, fmt.Errorf("select snapshot record: %w", err)
	}

	if blockedReason != nil {
		rec.BlockedReason = snapshot.Reason(*blockedReason)
	}
	if storagePath != nil {
		rec.StoragePath = *storagePath
	}
	if errorMessage != nil {
		rec.ErrorMessage = *errorMessage
	}
	rec.NextAttemptAt = nextAttemptAt
	rec.FetchedAt = fetchedAt
	return rec, nil
}

// MarkProcessing transitions the record into processing.
func (p *Postgres) MarkProcessing(ctx context.Context, saveID string, attempts int) error {
	return p.update(ctx, `
		UPDATE snapshots SET status = $2, attempts = $3, updated_at = NOW()
		WHERE save_id = $1`,
		saveID, string(snapshot.StatusProcessing), attempts,
	)
}

// MarkDeferred returns the record to pending with a resume time.
func (p *Postgres) MarkDeferred(ctx context.Context, saveID string, nextAttemptAt time.Time) error {
	return p.update(ctx, `
		UPDATE snapshots SET status = $2, next_attempt_at = $3, updated_at = NOW()
		WHERE save_id = $1`,
		saveID, string(snapshot.StatusPending), nextAttemptAt,
	)
}

// MarkRetrying returns the record to pending after a retriable failure.
func (p *Postgres) MarkRetrying(ctx context.Context, saveID string, reason snapshot.Reason, message string, nextAttemptAt time.Time) error {
	return p.update(ctx, `
		UPDATE snapshots SET status = $2, blocked_reason = NULL, error_message = $3,
			next_attempt_at = $4, updated_at = NOW()
		WHERE save_id = $1`,
		saveID, string(snapshot.StatusPending), reasonMessage(reason, message), nextAttemptAt,
	)
}

// MarkTerminal finalizes the record as blocked or failed.
func (p *Postgres) MarkTerminal(ctx context.Context, saveID string, status snapshot.Status, reason snapshot.Reason, message string) error {
	return p.update(ctx, `
		UPDATE snapshots SET status = $2, blocked_reason = $3, error_message = $4,
			next_attempt_at = NULL, updated_at = NOW()
		WHERE save_id = $1`,
		saveID, string(status), string(reason), message,
	)
}

// MarkReady finalizes a successful snapshot and clears error fields.
func (p *Postgres) MarkReady(ctx context.Context, saveID, storagePath string, fetchedAt time.Time, meta snapshot.Metadata) error {
	return p.update(ctx, `
		UPDATE snapshots SET status = $2, storage_path = $3, fetched_at = $4,
			canonical_url = $5, title = $6, byline = $7, excerpt = $8,
			site_name = $9, image_url = $10, word_count = $11, language = $12,
			content_hash = $13, blocked_reason = NULL, error_message = NULL,
			next_attempt_at = NULL, updated_at = NOW()
		WHERE save_id = $1`,
		saveID, string(snapshot.StatusReady), storagePath, fetchedAt,
		meta.CanonicalURL, meta.Title, meta.Byline, meta.Excerpt,
		meta.SiteName, meta.ImageURL, meta.WordCount, meta.Language, meta.ContentHash,
	)
}

func (p *Postgres) update(ctx context.Context, sql string, args ...any) error {
	tag, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update snapshot record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func reasonMessage(reason snapshot.Reason, message string) string {
	if message == "" {
		return string(reason)
	}
	return message
}
