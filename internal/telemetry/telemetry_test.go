package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestCountersAppearInScrape(t *testing.T) {
	m := New()
	m.Deliveries.WithLabelValues("ready").Inc()
	m.PolitenessDeferrals.Inc()
	m.QuotaRejections.Add(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	require.Contains(t, body, `pagekeep_snapshots_deliveries_total{outcome="ready"} 1`)
	require.Contains(t, body, "pagekeep_snapshots_politeness_deferrals_total 1")
	require.Contains(t, body, "pagekeep_snapshots_quota_rejections_total 2")
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/saves/{save_id}/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/saves/abc123/snapshot", nil))

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest("GET", "/metrics", nil))

	body := scrape.Body.String()
	require.Contains(t, body, `route="/v1/saves/{save_id}/snapshot"`)
	require.Contains(t, body, `status="404"`)
	require.False(t, strings.Contains(body, "abc123"))
}
