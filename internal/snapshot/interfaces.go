package snapshot

import (
	"context"
	"time"
)

// RecordStore persists snapshot records and parent save rows. The store owns
// the storage engine; this package owns the transition rules, so every write
// method corresponds to one legal state transition.
type RecordStore interface {
	CreateSave(ctx context.Context, save Save) error
	FindSaveByCanonicalURL(ctx context.Context, spaceID, canonicalURL string) (string, bool, error)
	BackfillSaveDisplay(ctx context.Context, saveID string, fields DisplayFields) error

	CreateRecord(ctx context.Context, saveID, spaceID string) error
	GetRecord(ctx context.Context, saveID string) (Record, error)

	// MarkProcessing moves the record into processing and stamps the attempt count.
	MarkProcessing(ctx context.Context, saveID string, attempts int) error
	// MarkDeferred returns the record to pending with a resume time, without
	// consuming a retry slot.
	MarkDeferred(ctx context.Context, saveID string, nextAttemptAt time.Time) error
	// MarkRetrying returns the record to pending after a retriable failure.
	MarkRetrying(ctx context.Context, saveID string, reason Reason, message string, nextAttemptAt time.Time) error
	// MarkTerminal finalizes the record as blocked or failed.
	MarkTerminal(ctx context.Context, saveID string, status Status, reason Reason, message string) error
	// MarkReady finalizes a successful snapshot, clearing error fields.
	MarkReady(ctx context.Context, saveID, storagePath string, fetchedAt time.Time, meta Metadata) error
}

// BlobStore writes snapshot content and returns the stored path.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Extractor is the external fetch + readability collaborator. A non-nil error
// means the extractor service itself was unreachable, which the worker treats
// as a retriable fetch error.
type Extractor interface {
	Process(ctx context.Context, url string) (ExtractResult, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces save IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
