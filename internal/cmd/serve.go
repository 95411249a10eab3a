package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/appid"
	errwrap "github.com/botwire/botwire/internal/errors"
	"github.com/botwire/botwire/internal/metrics"
	"github.com/botwire/botwire/internal/observability"
	"github.com/botwire/botwire/internal/server"
	"github.com/botwire/botwire/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long: `Start the HTTP gateway: event streams, bot writes and operational endpoints.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (restart to apply backend changes)

Open event streams end when the server shuts down; clients reconnect.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := appid.Get()
		namespace := identity.TelemetryNamespace()

		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid configuration")
		}

		observability.InitServerLogger(observability.ServerLoggerOptions{
			Service:   identity.BinaryName,
			Level:     cfg.Logging.Level,
			Profile:   cfg.Logging.Profile,
			Namespace: namespace,
		})
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(namespace, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return errwrap.WrapDatabaseError(cmd.Context(), err, "store unavailable")
		}

		clock := quartz.NewReal()
		deps, err := buildComponents(cfg, db, clock, logger)
		if err != nil {
			_ = db.Close()
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "component setup failed")
		}
		deps.start(context.Background())

		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("telemetry", handlers.CheckerFunc(func(ctx context.Context) error {
			if cfg.Metrics.Enabled && (observability.TelemetrySystem == nil || observability.PrometheusExporter == nil) {
				return errwrap.NewInternalError("telemetry system not initialized")
			}
			return nil
		}))
		deps.registerHealth(hm)

		handlers.SetAppIdentity(identity)
		srv := server.New(cfg.Server, deps.serverDeps(cfg.Server, hm, clock, logger))

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("rate_limit_backend", cfg.RateLimit.Backend),
			zap.String("typing_backend", cfg.Typing.Backend),
			zap.String("store_driver", db.Driver()))

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: HTTP server, then backends, then logger.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Debug("Logger sync returned error", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Closing backends...")
			if err := deps.stop(); err != nil {
				logger.Warn("Backend close returned error", zap.Error(err))
			}
			if err := observability.StopMetrics(); err != nil {
				logger.Warn("Metrics exporter stop returned error", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading config file")
			if err := readConfigFile(settings); err != nil {
				logger.Error("Failed to reload config file",
					zap.String("file", settings.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			logger.Info("Configuration file re-read; backend settings apply on restart",
				zap.String("file", settings.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		metrics.SetServerStartTime(time.Now().Unix())

		errChan := make(chan error, 1)
		go func() {
			logger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = settings.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = settings.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
