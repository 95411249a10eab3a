// Package metrics emits botwire's Prometheus series through the gofulmen
// telemetry system. Every helper is a no-op until observability.InitMetrics
// has run.
package metrics

import (
	"time"

	"github.com/botwire/botwire/internal/observability"
)

// Server lifecycle and health metrics
const (
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
	ServerUptime        = "app_server_uptime_seconds"
)

func counter(name string, tags map[string]string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(name, 1, tags)
	}
}

func gauge(name string, value float64, tags map[string]string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(name, value, tags)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	counter(HealthCheckTotal, map[string]string{"check": checkName, "status": status})
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	gauge(ServerStartTime, float64(timestamp), nil)
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	gauge(ServerUptime, float64(seconds), nil)
}
