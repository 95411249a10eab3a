package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/botwire/botwire/internal/core/store"
)

// BotResolver maps an API key to a bot username. Unknown keys return
// store.ErrNotFound.
type BotResolver interface {
	BotByAPIKey(ctx context.Context, key string) (string, error)
}

type botContextKey struct{}

// WithBot stores the authenticated bot username in ctx.
func WithBot(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, botContextKey{}, username)
}

// BotFromContext returns the authenticated bot username, if any.
func BotFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(botContextKey{}).(string)
	return username, ok && username != ""
}

type authFailureKey struct{}

func withAuthFailure(ctx context.Context, envelope *errors.ErrorEnvelope) context.Context {
	return context.WithValue(ctx, authFailureKey{}, envelope)
}

// AuthFailure returns the rejection BotAuth recorded for a bad credential.
func AuthFailure(ctx context.Context) (*errors.ErrorEnvelope, bool) {
	envelope, ok := ctx.Value(authFailureKey{}).(*errors.ErrorEnvelope)
	return envelope, ok && envelope != nil
}

// BotAuth resolves a Bearer API key into the request context. Requests
// without an Authorization header pass through anonymously. A malformed or
// unknown key is recorded on the context and the request continues
// anonymously, so admission control still counts it against the client
// address; RejectInvalidAuth or RequireBot turns it into a 401 afterwards.
func BotAuth(resolver BotResolver, respond ErrorResponder) func(http.Handler) http.Handler {
	if respond == nil {
		respond = fallbackResponder(http.StatusUnauthorized)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, key, found := strings.Cut(header, " ")
			key = strings.TrimSpace(key)
			if !found || !strings.EqualFold(scheme, "bearer") || key == "" {
				failed := errors.NewErrorEnvelope("UNAUTHORIZED", "authorization header must be a bearer api key")
				next.ServeHTTP(w, r.WithContext(withAuthFailure(r.Context(), failed)))
				return
			}

			username, err := resolver.BotByAPIKey(r.Context(), key)
			if stderrors.Is(err, store.ErrNotFound) {
				failed := errors.NewErrorEnvelope("UNAUTHORIZED", "unknown api key")
				next.ServeHTTP(w, r.WithContext(withAuthFailure(r.Context(), failed)))
				return
			}
			if err != nil {
				respond(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithBot(r.Context(), username)))
		})
	}
}

// RejectInvalidAuth answers 401 for requests whose credential BotAuth could
// not resolve. Anonymous requests pass.
func RejectInvalidAuth(respond ErrorResponder) func(http.Handler) http.Handler {
	if respond == nil {
		respond = fallbackResponder(http.StatusUnauthorized)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if failed, ok := AuthFailure(r.Context()); ok {
				respond(w, r, failed)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireBot rejects requests that BotAuth did not authenticate.
func RequireBot(respond ErrorResponder) func(http.Handler) http.Handler {
	if respond == nil {
		respond = fallbackResponder(http.StatusUnauthorized)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if failed, ok := AuthFailure(r.Context()); ok {
				respond(w, r, failed)
				return
			}
			if _, ok := BotFromContext(r.Context()); !ok {
				respond(w, r, errors.NewErrorEnvelope("UNAUTHORIZED", "a bot api key is required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
