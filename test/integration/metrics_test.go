package integration

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botwire/botwire/internal/config"
	"github.com/botwire/botwire/internal/core"
	"github.com/botwire/botwire/internal/core/ratelimit"
	"github.com/botwire/botwire/internal/observability"
	"github.com/botwire/botwire/internal/server"
	"github.com/botwire/botwire/internal/server/handlers"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
// This matters in sandboxes where lingering exporters can block future binds.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { _ = observability.StopMetrics() })
}

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// initMetricsOrSkip attempts to start the metrics exporter; if the environment
// forbids network binds we skip instead of failing the entire suite.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	cleanupMetrics(t)
}

// newTestServer binds to IPv4 loopback explicitly (avoiding IPv6-only defaults)
// and skips when the sandbox refuses to open sockets.
func newTestServer(t *testing.T, deps server.Deps) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := server.New(config.ServerConfig{Host: "127.0.0.1"}, deps)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func initLoggers() {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger(observability.ServerLoggerOptions{Service: "test", Level: "info"})
}

// searchOnly answers feed searches; every other store call panics.
type searchOnly struct {
	handlers.ContentStore
}

func (searchOnly) SearchFeed(_ context.Context, q string, _ int) ([]core.Item, error) {
	return []core.Item{{ID: "1", ResourceID: core.GlobalFeedID, Author: "scout", Body: q, CreatedAt: time.Now().UTC()}}, nil
}

func TestMetricsEndpoint_UnderAdmissionLoad(t *testing.T) {
	initLoggers()
	initMetricsOrSkip(t)

	profiles, err := ratelimit.NewProfileSet(map[string]ratelimit.Profile{
		ratelimit.Search: {Name: ratelimit.Search, MaxRequests: 10, Window: time.Minute},
	})
	require.NoError(t, err)

	ts, client := newTestServer(t, server.Deps{
		API:      &handlers.API{Store: searchOnly{}},
		Health:   handlers.NewHealthManager("test"),
		Profiles: profiles,
	})

	const numRequests = 40
	const numWorkers = 8

	requestChan := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requestChan <- i
	}
	close(requestChan)

	var (
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for reqNum := range requestChan {
				path := "/health"
				if reqNum%2 == 0 {
					path = "/api/v1/search?q=bots"
				}
				resp, err := client.Get(ts.URL + path)
				if err != nil {
					continue
				}
				_ = resp.Body.Close()
				if path != "/health" {
					mu.Lock()
					statuses[resp.StatusCode]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.Equal(t, 10, statuses[http.StatusOK], "exactly the profile limit is admitted")
	assert.Equal(t, numRequests/2-10, statuses[http.StatusTooManyRequests])

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsContent := string(body)
	assert.Contains(t, metricsContent, "test_http_requests_total", "Should have HTTP request metrics")
	assert.Contains(t, metricsContent, "test_http_request_duration_ms", "Should have duration metrics")
	assert.True(t, elapsed < 5*time.Second, "Load test should complete in reasonable time")
}

func TestMetricsEndpoint_PrometheusFormat(t *testing.T) {
	initLoggers()
	initMetricsOrSkip(t)

	ts, client := newTestServer(t, server.Deps{Health: handlers.NewHealthManager("test")})

	resp, err := client.Get(ts.URL + "/version")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain; version=0.0.4"),
		"Expected Prometheus content type, got: %s", resp.Header.Get("Content-Type"))

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)

	samples := 0
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "{") && len(strings.Fields(line)) >= 2 {
			samples++
		}
	}
	assert.Greater(t, samples, 0, "Should have labelled metric samples")
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	initLoggers()

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	ts, client := newTestServer(t, server.Deps{Health: handlers.NewHealthManager("test")})

	resp, err := client.Get(ts.URL + "/health/live")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode, "liveness does not depend on telemetry")

	resp, err = client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
