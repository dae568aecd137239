// Package api exposes the HTTP surface: save submission, snapshot status,
// the broker delivery endpoint, and operational endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pagekeep/pagekeep/internal/dispatcher"
	"github.com/pagekeep/pagekeep/internal/snapshot"
	"github.com/pagekeep/pagekeep/internal/telemetry"
	"github.com/pagekeep/pagekeep/internal/worker"
)

// Config holds the request handling knobs the handlers need.
type Config struct {
	SnapshotsEnabled bool
	WorkerTimeout    time.Duration
	MaxDeliveryBody  int64
}

// Server wires the HTTP handlers to the snapshot subsystem.
type Server struct {
	cfg     Config
	store   snapshot.RecordStore
	worker  *worker.Worker
	auth    *worker.Authenticator
	disp    *dispatcher.Dispatcher
	quota   *snapshot.QuotaGate
	ids     snapshot.IDGenerator
	clock   snapshot.Clock
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// NewServer creates a Server.
func NewServer(
	cfg Config,
	store snapshot.RecordStore,
	w *worker.Worker,
	auth *worker.Authenticator,
	disp *dispatcher.Dispatcher,
	quota *snapshot.QuotaGate,
	ids snapshot.IDGenerator,
	clock snapshot.Clock,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		store:   store,
		worker:  w,
		auth:    auth,
		disp:    disp,
		quota:   quota,
		ids:     ids,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// Router assembles the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/saves", s.handleCreateSave)
		r.Get("/saves/{save_id}/snapshot", s.handleGetSnapshot)
		r.Post("/snapshots/deliver", s.handleDeliver)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
