package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/observability"
)

// statusRecorder captures what the handler wrote without hiding Flush,
// which the SSE handlers depend on.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *statusRecorder) streaming() bool {
	return strings.HasPrefix(rw.Header().Get("Content-Type"), "text/event-stream")
}

// RouteLabel returns the chi pattern when routing matched, otherwise a
// coarse bucket so raw paths never become label values.
func RouteLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch {
	case path == "/", path == "/version", path == "/metrics":
		return path
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case strings.HasPrefix(path, "/api/v1/"):
		return "/api/v1/*"
	default:
		return "/unknown"
	}
}

func errorClass(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}

// RequestMetrics emits request counters, latency, and sizes. Streams report
// their connected time under a separate histogram so they do not skew
// request latency.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tel := observability.TelemetrySystem
		if tel == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := RouteLabel(r)
		status := strconv.Itoa(rec.status)
		labels := map[string]string{"method": r.Method, "endpoint": route, "status": status}
		sizeLabels := map[string]string{"method": r.Method, "endpoint": route}

		_ = tel.Counter("http_requests_total", 1, labels)
		if rec.streaming() {
			_ = tel.Histogram("http_stream_duration_ms", elapsed, labels)
		} else {
			_ = tel.Histogram("http_request_duration_ms", elapsed, labels)
		}

		var requestSize int64
		if r.ContentLength > 0 {
			requestSize = r.ContentLength
		}
		_ = tel.Gauge("http_request_size_bytes", float64(requestSize), sizeLabels)
		_ = tel.Gauge("http_response_size_bytes", float64(rec.written), sizeLabels)

		if class := errorClass(rec.status); class != "" {
			_ = tel.Counter("http_errors_total", 1, map[string]string{
				"method":     r.Method,
				"endpoint":   route,
				"status":     status,
				"error_type": class,
			})
		}

		logger := observability.ServerLogger
		if logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
			zap.Int64("request_size", requestSize),
			zap.Int64("response_size", rec.written),
			zap.String("requestID", GetRequestID(r.Context())),
		}
		if route == "/health/*" || route == "/metrics" {
			logger.Debug("HTTP request completed", fields...)
			return
		}
		logger.Info("HTTP request completed", fields...)
	})
}
