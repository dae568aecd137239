package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagekeep/pagekeep/internal/database"
	"github.com/pagekeep/pagekeep/internal/snapshot"
	"github.com/pagekeep/pagekeep/internal/worker"
)

type createSaveRequest struct {
	SpaceID string `json:"space_id"`
	UserID  string `json:"user_id"`
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
}

type createSaveResponse struct {
	SaveID       string `json:"save_id"`
	CanonicalURL string `json:"canonical_url"`
	Deduplicated bool   `json:"deduplicated"`
	Snapshot     string `json:"snapshot"`
}

// handleCreateSave registers a bookmark. Canonicalization and dedup happen
// here; the snapshot itself is enqueued best effort and never blocks the save.
func (s *Server) handleCreateSave(w http.ResponseWriter, r *http.Request) {
	var req createSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}
	if req.SpaceID == "" || req.UserID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "space_id, user_id, and url are required")
		return
	}

	canonical, ok := snapshot.CanonicalURL(req.URL)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_url", "url is not an absolute http(s) URL")
		return
	}

	decision, err := s.quota.Allow(r.Context(), req.UserID)
	if err != nil {
		s.logger.Error("quota check failed", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "quota check failed")
		return
	}
	if !decision.Allowed {
		if s.metrics != nil {
			s.metrics.QuotaRejections.Inc()
		}
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", "daily save limit reached")
		return
	}

	if existingID, found, err := s.store.FindSaveByCanonicalURL(r.Context(), req.SpaceID, canonical); err != nil {
		s.logger.Error("dedup lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "save lookup failed")
		return
	} else if found {
		writeJSON(w, http.StatusOK, createSaveResponse{
			SaveID:       existingID,
			CanonicalURL: canonical,
			Deduplicated: true,
			Snapshot:     "existing",
		})
		return
	}

	saveID, err := s.ids.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "could not allocate save id")
		return
	}

	save := snapshot.Save{
		ID:           saveID,
		SpaceID:      req.SpaceID,
		UserID:       req.UserID,
		URL:          req.URL,
		CanonicalURL: canonical,
		Title:        req.Title,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.CreateSave(r.Context(), save); err != nil {
		s.logger.Error("create save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not persist save")
		return
	}
	if err := s.store.CreateRecord(r.Context(), saveID, req.SpaceID); err != nil {
		s.logger.Error("create snapshot record failed", zap.String("save_id", saveID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not persist snapshot record")
		return
	}

	snapshotState := "queued"
	if result := s.disp.Enqueue(r.Context(), saveID, req.SpaceID, req.URL); result.Err != nil {
		snapshotState = "skipped"
		s.logger.Warn("snapshot enqueue skipped",
			zap.String("save_id", saveID), zap.Error(result.Err))
	}

	writeJSON(w, http.StatusCreated, createSaveResponse{
		SaveID:       saveID,
		CanonicalURL: canonical,
		Snapshot:     snapshotState,
	})
}

// handleGetSnapshot returns the snapshot record for a save.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	saveID := chi.URLParam(r, "save_id")

	record, err := s.store.GetRecord(r.Context(), saveID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no snapshot record for this save")
			return
		}
		s.logger.Error("get snapshot record failed", zap.String("save_id", saveID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not load snapshot record")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleDeliver is the broker push target. Every recognized job outcome maps
// to 200 so the broker does not re-deliver; only unexpected internal errors
// surface as 500 and lean on the broker's retry budget.
func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.SnapshotsEnabled {
		writeError(w, http.StatusServiceUnavailable, "disabled", "snapshotting is disabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxDeliveryBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "could not read request body")
		return
	}

	if err := s.auth.Authenticate(r, body); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "delivery credentials rejected")
		return
	}

	var job snapshot.Job
	if err := json.Unmarshal(body, &job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "payload is not a snapshot job")
		return
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	if err := job.Validate(s.worker.MaxAttempts()); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_job", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.WorkerTimeout)
	defer cancel()

	outcome := s.worker.Process(ctx, job)

	if s.metrics != nil {
		s.metrics.Deliveries.WithLabelValues(outcome.Status).Inc()
		if outcome.Status == worker.OutcomeDelayed {
			s.metrics.PolitenessDeferrals.Inc()
		}
	}

	status := http.StatusOK
	if outcome.Status == worker.OutcomeError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, outcome)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
