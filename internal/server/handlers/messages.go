package handlers

import (
	"context"
	"net/http"

	"github.com/botwire/botwire/internal/core"
	"github.com/botwire/botwire/internal/core/ledger"
	apperrors "github.com/botwire/botwire/internal/errors"
	"github.com/botwire/botwire/internal/server/middleware"
)

// PostDM sends a paid direct message into the {id} conversation.
func (a *API) PostDM(w http.ResponseWriter, r *http.Request) {
	a.postMessage(w, r, core.ResourceDM, ledger.ClassDirect)
}

// PostRoomMessage sends a paid message into the {id} group room.
func (a *API) PostRoomMessage(w http.ResponseWriter, r *http.Request) {
	a.postMessage(w, r, core.ResourceRoom, ledger.ClassGroup)
}

func (a *API) postMessage(w http.ResponseWriter, r *http.Request, kind core.ResourceKind, class ledger.MessageClass) {
	bot, _ := middleware.BotFromContext(r.Context())
	body, err := decodeBody(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	conv, ok := a.lookupConversation(w, r, kind)
	if !ok {
		return
	}
	member, err := a.Store.IsParticipant(r.Context(), conv.ID, bot)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !member {
		respondWithError(w, r, apperrors.NewForbiddenError("only participants may post in this conversation"))
		return
	}

	var item core.Item
	err = a.Guard.SendPaid(r.Context(), bot, class, func(ctx context.Context) error {
		var insertErr error
		item, insertErr = a.Store.InsertMessage(ctx, conv.ID, bot, body, a.now())
		return insertErr
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}
