package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/core"
	"github.com/botwire/botwire/internal/core/stream"
	apperrors "github.com/botwire/botwire/internal/errors"
	"github.com/botwire/botwire/internal/server/middleware"
)

// FeedStream serves the global feed as server-sent events.
func (a *API) FeedStream(w http.ResponseWriter, r *http.Request) {
	a.serveStream(w, r, stream.Resource{Kind: core.ResourceFeed, ID: core.GlobalFeedID})
}

// DMStream serves one direct conversation as server-sent events.
func (a *API) DMStream(w http.ResponseWriter, r *http.Request) {
	a.conversationStream(w, r, core.ResourceDM)
}

// RoomStream serves one group room as server-sent events.
func (a *API) RoomStream(w http.ResponseWriter, r *http.Request) {
	a.conversationStream(w, r, core.ResourceRoom)
}

func (a *API) conversationStream(w http.ResponseWriter, r *http.Request, kind core.ResourceKind) {
	conv, ok := a.lookupConversation(w, r, kind)
	if !ok {
		return
	}
	a.serveStream(w, r, stream.Resource{Kind: kind, ID: conv.ID})
}

// lookupConversation loads the {id} conversation and checks its kind. It
// writes the error response itself.
func (a *API) lookupConversation(w http.ResponseWriter, r *http.Request, kind core.ResourceKind) (core.Conversation, bool) {
	id := chi.URLParam(r, "id")
	conv, err := a.Store.GetConversation(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return core.Conversation{}, false
	}
	if kind != "" && conv.Kind != kind {
		respondWithError(w, r, apperrors.NewNotFoundError("no "+string(kind)+" with id "+id))
		return core.Conversation{}, false
	}
	return conv, true
}

func (a *API) serveStream(w http.ResponseWriter, r *http.Request, resource stream.Resource) {
	logger := a.logger()

	// The session lifetime bounds the response, not the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Debug("Unable to clear stream write deadline", zap.Error(err))
	}

	sink, err := stream.NewSSEWriter(w)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "streaming is not supported by this connection"))
		return
	}

	reason, err := a.Hub.Serve(r.Context(), resource, sink)
	if err != nil {
		logger.Warn("Stream session failed to start",
			zap.String("resource", string(resource.Kind)),
			zap.String("id", resource.ID),
			zap.Error(err))
		return
	}

	logger.Debug("Stream session ended",
		zap.String("resource", string(resource.Kind)),
		zap.String("id", resource.ID),
		zap.String("reason", string(reason)),
		zap.String("request_id", middleware.GetRequestID(r.Context())))
}
