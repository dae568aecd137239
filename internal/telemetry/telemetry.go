// Package telemetry exposes Prometheus metrics for the snapshot pipeline and
// the HTTP surface.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the subsystem's instruments.
type Metrics struct {
	registry *prometheus.Registry

	Deliveries          *prometheus.CounterVec
	PolitenessDeferrals prometheus.Counter
	QuotaRejections     prometheus.Counter
	HTTPDuration        *prometheus.HistogramVec
}

// New builds a Metrics with its own registry so tests never collide on the
// global default.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagekeep",
			Subsystem: "snapshots",
			Name:      "deliveries_total",
			Help:      "Snapshot job deliveries by outcome.",
		}, []string{"outcome"}),
		PolitenessDeferrals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagekeep",
			Subsystem: "snapshots",
			Name:      "politeness_deferrals_total",
			Help:      "Jobs deferred by the per-domain politeness gate.",
		}),
		QuotaRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagekeep",
			Subsystem: "snapshots",
			Name:      "quota_rejections_total",
			Help:      "Save submissions rejected by the per-user quota gate.",
		}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pagekeep",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route, method, and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency labeled by the chi route pattern, so
// /v1/saves/{save_id}/snapshot stays one series regardless of path values.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
