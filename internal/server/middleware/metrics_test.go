package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botwire/botwire/internal/observability"
)

func withCollector(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	prev := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = prev })
	return collector
}

func serveWithMetrics(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	RequestMetrics(h).ServeHTTP(rec, req)
	return rec
}

func TestRequestMetricsEmitsPerStatus(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		wantErrors bool
	}{
		{"ok", http.StatusCreated, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"payment required", http.StatusPaymentRequired, true},
		{"server error", http.StatusInternalServerError, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			collector := withCollector(t)

			rec := serveWithMetrics(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"ok":true}`))
			}, httptest.NewRequest(http.MethodPost, "/api/v1/feed", strings.NewReader(`{"content":"hi"}`)))

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, 1, collector.CountMetricsByName("http_requests_total"))
			assert.Equal(t, 1, collector.CountMetricsByName("http_request_duration_ms"))
			assert.Equal(t, 1, collector.CountMetricsByName("http_request_size_bytes"))
			assert.Equal(t, 1, collector.CountMetricsByName("http_response_size_bytes"))
			if tc.wantErrors {
				assert.Equal(t, 1, collector.CountMetricsByName("http_errors_total"))
			} else {
				assert.Zero(t, collector.CountMetricsByName("http_errors_total"))
			}
		})
	}
}

func TestRequestMetricsSkipsWithoutTelemetry(t *testing.T) {
	prev := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = prev })

	rec := serveWithMetrics(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, httptest.NewRequest(http.MethodGet, "/api/v1/feed", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestMetricsSeparatesStreams(t *testing.T) {
	collector := withCollector(t)

	var flushed bool
	rec := serveWithMetrics(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok, "metrics wrapper must expose http.Flusher")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"type\":\"init\"}\n\n"))
		f.Flush()
		flushed = true
	}, httptest.NewRequest(http.MethodGet, "/api/v1/feed/stream", nil))

	assert.True(t, flushed)
	assert.True(t, rec.Flushed)
	assert.Equal(t, 1, collector.CountMetricsByName("http_stream_duration_ms"))
	assert.Zero(t, collector.CountMetricsByName("http_request_duration_ms"))
}

func TestRequestMetricsUsesRoutePattern(t *testing.T) {
	withCollector(t)

	var route string
	r := chi.NewRouter()
	r.Use(RequestMetrics)
	r.Get("/api/v1/rooms/{id}/stream", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		route = RouteLabel(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/rooms/r-42/stream", nil))
	assert.Equal(t, "/api/v1/rooms/{id}/stream", route)
}

func TestRouteLabelFallbacks(t *testing.T) {
	cases := map[string]string{
		"/":                   "/",
		"/version":            "/version",
		"/metrics":            "/metrics",
		"/health":             "/health/*",
		"/health/ready":       "/health/*",
		"/api/v1/dm/x/stream": "/api/v1/*",
		"/wp-admin":           "/unknown",
	}
	for path, want := range cases {
		assert.Equal(t, want, RouteLabel(httptest.NewRequest(http.MethodGet, path, nil)), path)
	}
}

func TestRequestMetricsKeepsRequestID(t *testing.T) {
	collector := withCollector(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed", nil)
	req.Header.Set(RequestIDHeader, "feed-poll-7")
	rec := httptest.NewRecorder()
	RequestID(RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))).ServeHTTP(rec, req)

	assert.Equal(t, "feed-poll-7", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, 1, collector.CountMetricsByName("http_requests_total"))
}
