package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/botwire/botwire/internal/core"
	"github.com/botwire/botwire/internal/core/ledger"
	apperrors "github.com/botwire/botwire/internal/errors"
	"github.com/botwire/botwire/internal/server/middleware"
)

// ItemsResponse wraps a list of feed items or messages.
type ItemsResponse struct {
	Items []core.Item `json:"items"`
}

// Feed returns the most recent feed items, newest first.
func (a *API) Feed(w http.ResponseWriter, r *http.Request) {
	items, err := a.Store.RecentFeedItems(r.Context(), a.pageSize())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemsResponse{Items: nonNil(items)})
}

// Search returns feed items whose body contains q.
func (a *API) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("query parameter q is required"))
		return
	}
	items, err := a.Store.SearchFeed(r.Context(), q, a.pageSize())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemsResponse{Items: nonNil(items)})
}

// PostFeed publishes a paid broadcast from the authenticated bot.
func (a *API) PostFeed(w http.ResponseWriter, r *http.Request) {
	bot, _ := middleware.BotFromContext(r.Context())
	body, err := decodeBody(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var item core.Item
	err = a.Guard.SendPaid(r.Context(), bot, ledger.ClassBroadcast, func(ctx context.Context) error {
		var insertErr error
		item, insertErr = a.Store.InsertFeedItem(ctx, bot, body, a.now())
		return insertErr
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func nonNil(items []core.Item) []core.Item {
	if items == nil {
		return []core.Item{}
	}
	return items
}
