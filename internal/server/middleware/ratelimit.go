package middleware

import (
	"net/http"

	"github.com/coder/quartz"
	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/core/ratelimit"
	"github.com/botwire/botwire/internal/metrics"
)

// RateLimiter gates routes by profile. The identifier is the authenticated
// bot when BotAuth ran first, otherwise the client IP.
type RateLimiter struct {
	limiter    ratelimit.Limiter
	clock      quartz.Clock
	logger     ratelimit.Logger
	respond    ErrorResponder
	trustProxy bool
}

// RateLimitOption configures a RateLimiter.
type RateLimitOption func(*RateLimiter)

func WithRateLimitClock(clock quartz.Clock) RateLimitOption {
	return func(rl *RateLimiter) { rl.clock = clock }
}

func WithRateLimitLogger(logger ratelimit.Logger) RateLimitOption {
	return func(rl *RateLimiter) { rl.logger = logger }
}

func WithRateLimitResponder(respond ErrorResponder) RateLimitOption {
	return func(rl *RateLimiter) { rl.respond = respond }
}

// WithTrustedProxyHeaders keys anonymous clients by True-Client-IP,
// X-Real-IP or X-Forwarded-For. Only enable it behind a proxy that
// overwrites those headers; otherwise any client can pick its own key.
func WithTrustedProxyHeaders(trust bool) RateLimitOption {
	return func(rl *RateLimiter) { rl.trustProxy = trust }
}

func NewRateLimiter(limiter ratelimit.Limiter, opts ...RateLimitOption) *RateLimiter {
	rl := &RateLimiter{
		limiter: limiter,
		clock:   quartz.NewReal(),
		logger:  zap.NewNop(),
		respond: fallbackResponder(http.StatusTooManyRequests),
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Identifier returns the admission key for r. Anonymous requests, including
// those carrying a credential BotAuth rejected, are keyed by the peer
// address.
func (rl *RateLimiter) Identifier(r *http.Request) string {
	if bot, ok := BotFromContext(r.Context()); ok {
		return "bot:" + bot
	}
	keyByIP := httprate.KeyByIP
	if rl.trustProxy {
		keyByIP = httprate.KeyByRealIP
	}
	ip, err := keyByIP(r)
	if err != nil || ip == "" {
		return "ip:unknown"
	}
	return "ip:" + ip
}

// Limit returns middleware enforcing profile.
func (rl *RateLimiter) Limit(profile ratelimit.Profile) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := rl.Identifier(r)
			decision, err := rl.limiter.Check(r.Context(), profile, identifier)
			if err != nil {
				rl.logger.Warn("rate limit store unavailable, admitting request",
					zap.String("profile", profile.Name),
					zap.String("identifier", identifier),
					zap.Error(err))
			}

			now := rl.clock.Now()
			ratelimit.WriteHeaders(w.Header(), decision, now)
			metrics.RecordRateLimitDecision(profile.Name, decision.Allowed)

			if !decision.Allowed {
				envelope := errors.NewErrorEnvelope("RATE_LIMITED", "rate limit exceeded").
					WithCorrelationID(GetRequestID(r.Context())).
					WithDetails(map[string]interface{}{
						"profile":     profile.Name,
						"limit":       decision.Limit,
						"retry_after": ratelimit.RetryAfterSeconds(decision, now),
					})
				rl.respond(w, r, envelope)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
