package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/botwire/botwire/internal/core/presence"
	"github.com/botwire/botwire/internal/metrics"
	"github.com/botwire/botwire/internal/server/middleware"
)

// TypingResponse lists the participants currently typing.
type TypingResponse struct {
	ConversationID string   `json:"conversation_id"`
	Users          []string `json:"users"`
}

type typingRequest struct {
	Username string `json:"username"`
}

// SetTyping records a typing ping for the authenticated bot.
func (a *API) SetTyping(w http.ResponseWriter, r *http.Request) {
	conv, username, ok := a.authorizeTyping(w, r)
	if !ok {
		return
	}
	if err := a.Presence.Set(r.Context(), conv, username); err != nil {
		fail(w, r, err)
		return
	}
	metrics.RecordTypingPing("set")
	w.WriteHeader(http.StatusNoContent)
}

// ClearTyping removes the authenticated bot's typing row.
func (a *API) ClearTyping(w http.ResponseWriter, r *http.Request) {
	conv, username, ok := a.authorizeTyping(w, r)
	if !ok {
		return
	}
	if err := a.Presence.Clear(r.Context(), conv, username); err != nil {
		fail(w, r, err)
		return
	}
	metrics.RecordTypingPing("clear")
	w.WriteHeader(http.StatusNoContent)
}

// ListTyping returns who is typing; only participants may ask.
func (a *API) ListTyping(w http.ResponseWriter, r *http.Request) {
	conv, _, ok := a.authorizeTyping(w, r)
	if !ok {
		return
	}
	users, err := a.Presence.List(r.Context(), conv)
	if err != nil {
		fail(w, r, err)
		return
	}
	if users == nil {
		users = []string{}
	}
	metrics.RecordTypingPing("list")
	writeJSON(w, http.StatusOK, TypingResponse{ConversationID: conv, Users: users})
}

// authorizeTyping resolves the target username (the caller unless an
// optional JSON body names someone else) and checks the caller may touch it.
func (a *API) authorizeTyping(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	conv, ok := a.lookupConversation(w, r, "")
	if !ok {
		return "", "", false
	}
	actor, _ := middleware.BotFromContext(r.Context())

	username := actor
	if r.Body != nil && r.Method != http.MethodGet {
		var req typingRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err == nil {
			if name := strings.TrimSpace(req.Username); name != "" {
				username = name
			}
		}
	}

	if err := presence.Authorize(r.Context(), a.Store, conv.ID, actor, username); err != nil {
		fail(w, r, err)
		return "", "", false
	}
	return conv.ID, username, true
}
