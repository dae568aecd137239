package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagekeep/pagekeep/internal/cache"
	"github.com/pagekeep/pagekeep/internal/database"
	"github.com/pagekeep/pagekeep/internal/dispatcher"
	"github.com/pagekeep/pagekeep/internal/events"
	hashsha256 "github.com/pagekeep/pagekeep/internal/hash/sha256"
	uuidgen "github.com/pagekeep/pagekeep/internal/id/uuid"
	"github.com/pagekeep/pagekeep/internal/queue"
	"github.com/pagekeep/pagekeep/internal/snapshot"
	"github.com/pagekeep/pagekeep/internal/storage"
	"github.com/pagekeep/pagekeep/internal/telemetry"
	"github.com/pagekeep/pagekeep/internal/worker"
)

const (
	testSaveID  = "018f3b1a-7e44-7cc1-9f6e-0242ac120002"
	testSpaceID = "018f3b1a-7e44-7cc1-9f6e-0242ac120003"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubExtractor struct {
	result snapshot.ExtractResult
}

func (s stubExtractor) Process(_ context.Context, _ string) (snapshot.ExtractResult, error) {
	return s.result, nil
}

type countingQueue struct{ published int }

func (q *countingQueue) Publish(_ context.Context, _ []byte, _ queue.PublishOptions) (string, error) {
	q.published++
	return "msg-1", nil
}

func (q *countingQueue) Close() error { return nil }

type testServer struct {
	server *Server
	router http.Handler
	store  *database.Memory
	queue  *countingQueue
}

func newTestServer(t *testing.T, extract snapshot.ExtractResult, quotaLimit int) *testServer {
	t.Helper()
	clk := fixedClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	store := database.NewMemory()
	sharedCache := cache.NewMemory()
	q := &countingQueue{}

	disp := dispatcher.New(q, dispatcher.Config{
		Enabled:     true,
		MaxAttempts: 3,
		RetryDelays: []time.Duration{5 * time.Minute, 30 * time.Minute, 2 * time.Hour},
	}, zap.NewNop())

	gate := snapshot.NewPolitenessGate(sharedCache, time.Second, time.Minute, clk, zap.NewNop())
	quota := snapshot.NewQuotaGate(sharedCache, quotaLimit, 24*time.Hour)

	wrk := worker.New(store, storage.NewMemory(), stubExtractor{result: extract}, gate, disp,
		hashsha256.New(), clk, events.NoOp{}, worker.Config{
			MaxAttempts:   3,
			ContentType:   "text/html; charset=utf-8",
			StoragePrefix: "snapshots",
		}, zap.NewNop())

	auth := worker.NewAuthenticator(worker.AuthConfig{SigningKeyCurrent: "test-key"})

	srv := NewServer(Config{
		SnapshotsEnabled: true,
		WorkerTimeout:    30 * time.Second,
		MaxDeliveryBody:  64 * 1024,
	}, store, wrk, auth, disp, quota, uuidgen.NewUUIDGenerator(), clk, telemetry.New(), zap.NewNop())

	return &testServer{server: srv, router: srv.Router(), store: store, queue: q}
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", path, bytes.NewReader(raw)))
	return rec
}

func TestCreateSaveQueuesSnapshot(t *testing.T) {
	ts := newTestServer(t, snapshot.ExtractResult{}, 100)

	rec := postJSON(t, ts.router, "/v1/saves", createSaveRequest{
		SpaceID: testSpaceID,
		UserID:  "user-1",
		URL:     "https://Example.com:443/article/?utm_source=x&id=7",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createSaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SaveID)
	require.Equal(t, "https://example.com/article?id=7", resp.CanonicalURL)
	require.False(t, resp.Deduplicated)
	require.Equal(t, "queued", resp.Snapshot)
	require.Equal(t, 1, ts.queue.published)

	record, err := ts.store.GetRecord(context.Background(), resp.SaveID)
	require.NoError(t, err)
	require.Equal(t, snapshot.StatusPending, record.Status)
}

func TestCreateSaveDeduplicates(t *testing.T) {
	ts := newTestServer(t, snapshot.ExtractResult{}, 100)

	first := postJSON(t, ts.router, "/v1/saves", createSaveRequest{
		SpaceID: testSpaceID, UserID: "user-1", URL: "https://example.com/article",
	})
	require.Equal(t, http.StatusCreated, first.Code)
	var firstResp createSaveResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	second := postJSON(t, ts.router, "/v1/saves", createSaveRequest{
		SpaceID: testSpaceID, UserID: "user-1", URL: "https://www.example.com/article/?utm_medium=social",
	})
	require.Equal(t, http.StatusOK, second.Code)
	var secondResp createSaveResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	require.Equal(t, firstResp.SaveID, secondResp.SaveID)
	require.True(t, secondResp.Deduplicated)
	require.Equal(t, 1, ts.queue.published)
}

func TestCreateSaveInvalidURL(t *testing.T) {
	ts := newTestServer(t, snapshot.ExtractResult{}, 100)

	rec := postJSON(t, ts.router, "/v1/saves", createSaveRequest{
		SpaceID: testSpaceID, UserID: "user-1", URL: "ftp://example.com/file",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_url")
}

func TestCreateSaveQuotaExceeded(t *testing.T) {
	ts := newTestServer(t, snapshot.ExtractResult{}, 1)

	first := postJSON(t, ts.router, "/v1/saves", createSaveRequest{
		SpaceID: testSpaceID, UserID: "user-1", URL: "https://example.com/a",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := postJSON(t, ts.router, "/v1/saves", createSaveRequest{
		SpaceID: testSpaceID, UserID: "user-1", URL: "https://example.com/b",
	})
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Contains(t, second.Body.String(), "quota_exceeded")
}

func TestGetSnapshotNotFound(t *testing.T) {
	ts := newTestServer(t, snapshot.ExtractResult{}, 100)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/saves/"+testSaveID+"/snapshot", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeliverUnauthenticated(t *testing.T) {
	ts := newTestServer(t, snapshot.ExtractResult{}, 100)

	body, _ := json.Marshal(snapshot.Job{
		SaveID: testSaveID, SpaceID: testSpaceID, URL: "https://example.com/a", Attempt: 1,
	})
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/snapshots/deliver", bytes.NewReader(body)))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeliverInvalidJob(t *testing.T) {
	ts := newTestServer(t, snapshot.ExtractResult{}, 100)

	body, _ := json.Marshal(snapshot.Job{
		SaveID: "not-a-uuid", SpaceID: testSpaceID, URL: "https://example.com/a", Attempt: 1,
	})
	req := httptest.NewRequest("POST", "/v1/snapshots/deliver", bytes.NewReader(body))
	req.Header.Set(worker.HeaderSignature, worker.Sign("test-key", body))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_job")
}

func TestDeliverProcessesJob(t *testing.T) {
	ts := newTestServer(t, snapshot.ExtractResult{
		OK:       true,
		Content:  []byte("<html><body>article</body></html>"),
		Metadata: snapshot.Metadata{Title: "Article"},
	}, 100)

	require.NoError(t, ts.store.CreateSave(context.Background(), snapshot.Save{
		ID: testSaveID, SpaceID: testSpaceID, URL: "https://example.com/a",
	}))
	require.NoError(t, ts.store.CreateRecord(context.Background(), testSaveID, testSpaceID))

	body, _ := json.Marshal(snapshot.Job{
		SaveID: testSaveID, SpaceID: testSpaceID, URL: "https://example.com/a", Attempt: 1,
	})
	req := httptest.NewRequest("POST", "/v1/snapshots/deliver", bytes.NewReader(body))
	req.Header.Set(worker.HeaderSignature, worker.Sign("test-key", body))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var outcome worker.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	require.Equal(t, worker.OutcomeReady, outcome.Status)

	record, err := ts.store.GetRecord(context.Background(), testSaveID)
	require.NoError(t, err)
	require.Equal(t, snapshot.StatusReady, record.Status)
}

func TestDeliverDisabled(t *testing.T) {
	ts := newTestServer(t, snapshot.ExtractResult{}, 100)
	ts.server.cfg.SnapshotsEnabled = false
	router := ts.server.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/snapshots/deliver", bytes.NewReader([]byte("{}"))))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, snapshot.ExtractResult{}, 100)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}
