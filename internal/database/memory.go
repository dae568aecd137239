package database

import (
	"context"
	"sync"
	"time"

	"github.com/pagekeep/pagekeep/internal/snapshot"
)

// Memory implements snapshot.RecordStore in-process for local mode and tests.
type Memory struct {
	mu      sync.Mutex
	saves   map[string]snapshot.Save
	records map[string]snapshot.Record
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		saves:   make(map[string]snapshot.Save),
		records: make(map[string]snapshot.Record),
	}
}

// CreateSave stores the parent save row.
func (m *Memory) CreateSave(_ context.Context, save snapshot.Save) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[save.ID] = save
	return nil
}

// GetSave returns a save; test helper.
func (m *Memory) GetSave(saveID string) (snapshot.Save, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	save, ok := m.saves[saveID]
	return save, ok
}

// FindSaveByCanonicalURL scans saves for a canonical URL match.
func (m *Memory) FindSaveByCanonicalURL(_ context.Context, spaceID, canonicalURL string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, save := range m.saves {
		if save.SpaceID == spaceID && save.CanonicalURL == canonicalURL {
			return id, true, nil
		}
	}
	return "", false, nil
}

// BackfillSaveDisplay fills only empty display fields.
func (m *Memory) BackfillSaveDisplay(_ context.Context, saveID string, fields snapshot.DisplayFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	save, ok := m.saves[saveID]
	if !ok {
		return ErrNotFound
	}
	if save.Title == "" {
		save.Title = fields.Title
	}
	if save.SiteName == "" {
		save.SiteName = fields.SiteName
	}
	if save.Description == "" {
		save.Description = fields.Description
	}
	if save.ImageURL == "" {
		save.ImageURL = fields.ImageURL
	}
	m.saves[saveID] = save
	return nil
}

// CreateRecord inserts the pending snapshot record.
func (m *Memory) CreateRecord(_ context.Context, saveID, spaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.records[saveID] = snapshot.Record{
		SaveID:    saveID,
		SpaceID:   spaceID,
		Status:    snapshot.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// GetRecord fetches the snapshot record.
func (m *Memory) GetRecord(_ context.Context, saveID string) (snapshot.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[saveID]
	if !ok {
		return snapshot.Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) mutate(saveID string, fn func(*snapshot.Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[saveID]
	if !ok {
		return ErrNotFound
	}
	fn(&rec)
	rec.UpdatedAt = time.Now().UTC()
	m.records[saveID] = rec
	return nil
}

// MarkProcessing transitions the record into processing.
func (m *Memory) MarkProcessing(_ context.Context, saveID string, attempts int) error {
	return m.mutate(saveID, func(rec *snapshot.Record) {
		rec.Status = snapshot.StatusProcessing
		rec.Attempts = attempts
	})
}

// MarkDeferred returns the record to pending with a resume time.
func (m *Memory) MarkDeferred(_ context.Context, saveID string, nextAttemptAt time.Time) error {
	return m.mutate(saveID, func(rec *snapshot.Record) {
		rec.Status = snapshot.StatusPending
		rec.NextAttemptAt = &nextAttemptAt
	})
}

// MarkRetrying returns the record to pending after a retriable failure.
func (m *Memory) MarkRetrying(_ context.Context, saveID string, reason snapshot.Reason, message string, nextAttemptAt time.Time) error {
	return m.mutate(saveID, func(rec *snapshot.Record) {
		rec.Status = snapshot.StatusPending
		rec.BlockedReason = ""
		rec.ErrorMessage = reasonMessage(reason, message)
		rec.NextAttemptAt = &nextAttemptAt
	})
}

// MarkTerminal finalizes the record as blocked or failed.
func (m *Memory) MarkTerminal(_ context.Context, saveID string, status snapshot.Status, reason snapshot.Reason, message string) error {
	return m.mutate(saveID, func(rec *snapshot.Record) {
		rec.Status = status
		rec.BlockedReason = reason
		rec.ErrorMessage = message
		rec.NextAttemptAt = nil
	})
}

// MarkReady finalizes a successful snapshot.
func (m *Memory) MarkReady(_ context.Context, saveID, storagePath string, fetchedAt time.Time, meta snapshot.Metadata) error {
	return m.mutate(saveID, func(rec *snapshot.Record) {
		rec.Status = snapshot.StatusReady
		rec.StoragePath = storagePath
		rec.FetchedAt = &fetchedAt
		rec.Metadata = meta
		rec.BlockedReason = ""
		rec.ErrorMessage = ""
		rec.NextAttemptAt = nil
	})
}
