package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/config"
	apperrors "github.com/botwire/botwire/internal/errors"
	"github.com/botwire/botwire/internal/observability"
)

const prometheusContentType = "text/plain; version=0.0.4"

var metricsProxyClient = &http.Client{Timeout: 5 * time.Second}

// Headers that describe the exporter connection, not the payload.
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// exporterURL points at the loopback Prometheus exporter, preferring the
// port it actually bound.
func exporterURL() string {
	port := observability.GetMetricsPort()
	if port == 0 {
		port = observability.DefaultMetricsPort
		if cfg := config.GetConfig(); cfg != nil && cfg.Metrics.Port > 0 {
			port = cfg.Metrics.Port
		}
	}
	return fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
}

// MetricsHandler serves the exporter's scrape output on the API listener.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	target := exporterURL()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to construct metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		envelope, _ := apperrors.NewServiceUnavailableError("Prometheus exporter unavailable").
			WithContext(map[string]interface{}{"metrics_url": target})
		if observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Metrics scrape failed", zap.String("url", target), zap.Error(err))
		}
		HandleError(w, r, envelope)
		return
	}
	defer resp.Body.Close() // nolint:errcheck // read-only body

	for key, values := range resp.Header {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(key)]; hop {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", prometheusContentType)
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write metrics response", zap.Error(err))
	}
}
