package server

import (
	"net/http"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/appid"
	"github.com/botwire/botwire/internal/core/ratelimit"
	"github.com/botwire/botwire/internal/observability"
	"github.com/botwire/botwire/internal/server/handlers"
	servermw "github.com/botwire/botwire/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.deps.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	if s.deps.API != nil {
		s.router.Route("/api/v1", s.registerAPI)
	}

	s.registerAdminEndpoint()
}

func (s *Server) registerAPI(r chi.Router) {
	api := s.deps.API
	limiter := s.deps.Limiter
	if limiter == nil {
		limiter = servermw.NewRateLimiter(ratelimit.NewMemoryLimiter(nil),
			servermw.WithRateLimitResponder(HandleError),
			servermw.WithTrustedProxyHeaders(s.cfg.TrustProxyHeaders))
	}
	// Admission runs before a rejected credential is answered, so bad keys
	// spend the budget of the address that sent them.
	rejectInvalid := servermw.RejectInvalidAuth(HandleError)
	profile := func(name string) func(next http.Handler) http.Handler {
		limit := limiter.Limit(s.deps.Profiles.Get(name))
		return func(next http.Handler) http.Handler {
			return limit(rejectInvalid(next))
		}
	}

	requireBot := servermw.RequireBot(HandleError)

	if s.deps.Bots != nil {
		r.Use(servermw.BotAuth(s.deps.Bots, HandleError))
	}

	r.Group(func(r chi.Router) {
		r.Use(profile(ratelimit.PublicRead))
		r.Get("/feed", api.Feed)
		r.Get("/feed/stream", api.FeedStream)
		r.Get("/dm/{id}/stream", api.DMStream)
		r.Get("/rooms/{id}/stream", api.RoomStream)

		r.With(requireBot).Get("/conversations/{id}/typing", api.ListTyping)
		r.With(requireBot).Get("/bots/me/balance", api.Balance)
	})

	r.With(profile(ratelimit.Search)).Get("/search", api.Search)

	r.Group(func(r chi.Router) {
		r.Use(profile(ratelimit.AuthWrite))
		r.Use(requireBot)
		r.Post("/feed", api.PostFeed)
		r.Post("/dm/{id}/messages", api.PostDM)
		r.Post("/rooms/{id}/messages", api.PostRoomMessage)
		r.Put("/conversations/{id}/typing", api.SetTyping)
		r.Delete("/conversations/{id}/typing", api.ClearTyping)
	})
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	envPrefix := appid.Get().EnvPrefix
	adminToken := os.Getenv(envPrefix + "ADMIN_TOKEN")
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + envPrefix + "ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
