package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("127.0.0.1:9191")
	require.NoError(t, err)
	assert.Equal(t, 9191, port)

	port, err = resolvePort("[::]:9090")
	require.NoError(t, err)
	assert.Equal(t, 9090, port)

	_, err = resolvePort("no-port")
	assert.Error(t, err)
}

func TestStopMetricsWithoutExporter(t *testing.T) {
	require.NoError(t, StopMetrics())
	assert.Nil(t, TelemetrySystem)
	assert.Zero(t, GetMetricsPort())
}
