package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used for CLI commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used by serve and everything it wires (STRUCTURED profile)
	ServerLogger *logging.Logger
)

// ServerLoggerOptions describes the logger built for serve.
type ServerLoggerOptions struct {
	Service     string
	Level       string
	Environment string
	// Profile is "structured" (JSON, correlation middleware) or "simple"
	// (console text). Empty means structured.
	Profile string
	// Namespace is attached as a static field when set.
	Namespace string
}

// InitCLILogger initializes the CLI logger with SIMPLE profile
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}

	if verbose {
		logger.SetLevel(logging.DEBUG)
	}

	CLILogger = logger
}

// InitServerLogger initializes ServerLogger, exiting the process when the
// configuration is rejected.
func InitServerLogger(opts ServerLoggerOptions) {
	logger, err := NewServerLogger(opts)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// NewServerLogger builds the serve logger writing to stderr.
func NewServerLogger(opts ServerLoggerOptions) (*logging.Logger, error) {
	env := opts.Environment
	if env == "" {
		env = "production"
	}

	cfg := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: ParseLogLevel(opts.Level),
		Service:      opts.Service,
		Environment:  env,
		Sinks:        []logging.SinkConfig{stderrSink("json")},
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
	if opts.Namespace != "" {
		cfg.StaticFields = map[string]any{"namespace": opts.Namespace}
	}

	if strings.EqualFold(strings.TrimSpace(opts.Profile), "simple") {
		cfg.Profile = logging.ProfileSimple
		cfg.Sinks = []logging.SinkConfig{stderrSink("console")}
		cfg.Middleware = nil
		cfg.StaticFields = nil
		cfg.EnableStacktrace = false
	}

	return logging.New(cfg)
}

func stderrSink(format string) logging.SinkConfig {
	return logging.SinkConfig{
		Type:    "console",
		Format:  format,
		Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
	}
}

// ParseLogLevel maps a config level to a gofulmen severity name. Unknown
// values fall back to INFO.
func ParseLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// exitWithCodeStderr exits with a semantic exit code, writing to stderr.
// Used only before a CLI logger exists.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(exitCode))
}
