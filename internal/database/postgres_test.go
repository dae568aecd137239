package database

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/pagekeep/pagekeep/internal/snapshot"
)

const (
	pgSaveID  = "018f3b1a-7e44-7cc1-9f6e-0242ac120002"
	pgSpaceID = "018f3b1a-7e44-7cc1-9f6e-0242ac120003"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Postgres) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgres(mock)
}

func TestPostgresCreateRecord(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs(pgSaveID, pgSpaceID, "pending").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateRecord(context.Background(), pgSaveID, pgSpaceID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkProcessing(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("UPDATE snapshots SET status").
		WithArgs(pgSaveID, "processing", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkProcessing(context.Background(), pgSaveID, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkProcessingMissingRecord(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("UPDATE snapshots SET status").
		WithArgs(pgSaveID, "processing", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.MarkProcessing(context.Background(), pgSaveID, 1)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkTerminal(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("UPDATE snapshots SET status").
		WithArgs(pgSaveID, "blocked", "noarchive", "site opted out").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.MarkTerminal(context.Background(), pgSaveID, snapshot.StatusBlocked, snapshot.ReasonNoArchive, "site opted out")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkReady(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	fetchedAt := time.Unix(1_700_000_000, 0).UTC()
	meta := snapshot.Metadata{
		CanonicalURL: "https://example.com/a",
		Title:        "A title",
		Byline:       "Jane",
		Excerpt:      "First words",
		SiteName:     "Example",
		ImageURL:     "https://example.com/og.png",
		WordCount:    1200,
		Language:     "en",
		ContentHash:  "abc123",
	}
	mock.ExpectExec("UPDATE snapshots SET status").
		WithArgs(pgSaveID, "ready", "snapshots/s/v/content.html", fetchedAt,
			meta.CanonicalURL, meta.Title, meta.Byline, meta.Excerpt,
			meta.SiteName, meta.ImageURL, meta.WordCount, meta.Language, meta.ContentHash).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.MarkReady(context.Background(), pgSaveID, "snapshots/s/v/content.html", fetchedAt, meta)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRecord(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	reason := "fetch_error"
	msg := "connection reset"
	rows := pgxmock.NewRows([]string{
		"save_id", "space_id", "status", "blocked_reason", "attempts", "next_attempt_at",
		"fetched_at", "storage_path", "canonical_url", "title", "byline", "excerpt",
		"site_name", "image_url", "word_count", "language", "content_hash",
		"error_message", "created_at", "updated_at",
	}).AddRow(
		pgSaveID, pgSpaceID, "failed", &reason, 3, (*time.Time)(nil),
		(*time.Time)(nil), (*string)(nil), "", "", "", "",
		"", "", 0, "", "",
		&msg, now, now,
	)
	mock.ExpectQuery("SELECT save_id, space_id, status").
		WithArgs(pgSaveID).
		WillReturnRows(rows)

	rec, err := store.GetRecord(context.Background(), pgSaveID)
	require.NoError(t, err)
	require.Equal(t, snapshot.StatusFailed, rec.Status)
	require.Equal(t, snapshot.ReasonFetchError, rec.BlockedReason)
	require.Equal(t, 3, rec.Attempts)
	require.Equal(t, "connection reset", rec.ErrorMessage)
	require.Nil(t, rec.FetchedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindSaveByCanonicalURLMiss(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("SELECT id FROM saves").
		WithArgs(pgSpaceID, "https://example.com/a").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, found, err := store.FindSaveByCanonicalURL(context.Background(), pgSpaceID, "https://example.com/a")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackfillSaveDisplay(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("UPDATE saves SET").
		WithArgs(pgSaveID, "Title", "Example", "Desc", "https://img").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.BackfillSaveDisplay(context.Background(), pgSaveID, snapshot.DisplayFields{
		Title:       "Title",
		SiteName:    "Example",
		Description: "Desc",
		ImageURL:    "https://img",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
