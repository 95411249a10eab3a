package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/observability"
)

func TestInitCLILogger(t *testing.T) {
	observability.InitCLILogger("botwire-test", true)
	require.NotNil(t, observability.CLILogger)
	observability.CLILogger.Debug("verbose cli logging", zap.String("test", "value"))
}

func TestNewServerLogger(t *testing.T) {
	logger, err := observability.NewServerLogger(observability.ServerLoggerOptions{
		Service:     "botwire-test",
		Level:       "debug",
		Environment: "test",
		Namespace:   "botwire",
	})
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("structured log message",
		zap.String("component", "stream"),
		zap.String("resource", "feed"))
}

func TestNewServerLoggerSimpleProfile(t *testing.T) {
	logger, err := observability.NewServerLogger(observability.ServerLoggerOptions{
		Service:   "botwire-test",
		Level:     "warn",
		Profile:   "simple",
		Namespace: "ignored-in-simple",
	})
	require.NoError(t, err)
	logger.Warn("console log message", zap.Int("sessions", 2))
}

func TestInitServerLoggerSetsGlobal(t *testing.T) {
	original := observability.ServerLogger
	t.Cleanup(func() { observability.ServerLogger = original })

	observability.InitServerLogger(observability.ServerLoggerOptions{Service: "botwire-test", Level: "info"})
	assert.NotNil(t, observability.ServerLogger)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" warn ":  "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"info":    "INFO",
		"loud":    "INFO",
		"":        "INFO",
	}
	for in, want := range cases {
		assert.Equal(t, want, observability.ParseLogLevel(in), in)
	}
}

func TestEmbeddedCrucible(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
	assert.NotEmpty(t, crucible.GetVersionString())
}
