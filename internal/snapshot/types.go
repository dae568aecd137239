// Package snapshot defines the snapshot job lifecycle: the persisted record,
// its status transitions, the broker job payload, and the gates consulted
// before a fetch.
package snapshot

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a snapshot record.
type Status string

// Status values persisted in the snapshot store. Ready, blocked, and an
// exhausted failed are terminal; pending and failed are retriable via a new
// delivery.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusBlocked    Status = "blocked"
	StatusFailed     Status = "failed"
)

// Job is the broker message payload for one snapshot attempt. Jobs are
// immutable; a retry is a new Job with Attempt+1.
type Job struct {
	SaveID  string `json:"saveId"`
	SpaceID string `json:"spaceId"`
	URL     string `json:"url"`
	Attempt int    `json:"attempt"`
}

// Validate checks the payload against the delivery schema.
func (j Job) Validate(maxAttempts int) error {
	if _, err := uuid.Parse(j.SaveID); err != nil {
		return fmt.Errorf("save_id is not a valid identifier: %w", err)
	}
	if _, err := uuid.Parse(j.SpaceID); err != nil {
		return fmt.Errorf("space_id is not a valid identifier: %w", err)
	}
	u, err := url.Parse(j.URL)
	if err != nil {
		return fmt.Errorf("url is malformed: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) URL")
	}
	if j.Attempt < 1 || j.Attempt > maxAttempts {
		return fmt.Errorf("attempt must be in [1, %d], got %d", maxAttempts, j.Attempt)
	}
	return nil
}

// Domain returns the lowercased host the job will fetch from.
func (j Job) Domain() (string, error) {
	u, err := url.Parse(j.URL)
	if err != nil {
		return "", fmt.Errorf("parse job url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("job url has no host")
	}
	return host, nil
}

// Metadata holds fields extracted from the fetched article.
type Metadata struct {
	CanonicalURL string `json:"canonical_url"`
	Title        string `json:"title"`
	Byline       string `json:"byline"`
	Excerpt      string `json:"excerpt"`
	SiteName     string `json:"site_name"`
	ImageURL     string `json:"image_url"`
	WordCount    int    `json:"word_count"`
	Language     string `json:"language"`
	ContentHash  string `json:"content_hash"`
}

// Record is the persisted snapshot state for one save.
// BlockedReason carries the terminal reason for both blocked and failed
// records; ready records have it cleared along with ErrorMessage.
type Record struct {
	SaveID        string     `json:"save_id"`
	SpaceID       string     `json:"space_id"`
	Status        Status     `json:"status"`
	BlockedReason Reason     `json:"blocked_reason,omitempty"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	FetchedAt     *time.Time `json:"fetched_at,omitempty"`
	StoragePath   string     `json:"storage_path,omitempty"`
	Metadata      Metadata   `json:"metadata"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Save is the parent bookmark row this subsystem reads and backfills.
type Save struct {
	ID           string    `json:"id"`
	SpaceID      string    `json:"space_id"`
	UserID       string    `json:"user_id"`
	URL          string    `json:"url"`
	CanonicalURL string    `json:"canonical_url"`
	Title        string    `json:"title,omitempty"`
	SiteName     string    `json:"site_name,omitempty"`
	Description  string    `json:"description,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayFields are the save columns opportunistically backfilled after a
// successful snapshot. Only empty columns are written; user edits win.
type DisplayFields struct {
	Title       string
	SiteName    string
	Description string
	ImageURL    string
}

// ExtractResult is the outcome of the external content extractor.
type ExtractResult struct {
	OK       bool     `json:"ok"`
	Content  []byte   `json:"content,omitempty"`
	Metadata Metadata `json:"metadata"`
	Reason   Reason   `json:"reason,omitempty"`
	Message  string   `json:"message,omitempty"`
}
