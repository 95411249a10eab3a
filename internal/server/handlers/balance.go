package handlers

import (
	"net/http"

	"github.com/botwire/botwire/internal/server/middleware"
)

// BalanceResponse reports a bot's token balance.
type BalanceResponse struct {
	Bot     string `json:"bot"`
	Balance int64  `json:"balance"`
}

// Balance returns the authenticated bot's token balance.
func (a *API) Balance(w http.ResponseWriter, r *http.Request) {
	bot, _ := middleware.BotFromContext(r.Context())
	balance, err := a.Store.Balance(r.Context(), bot)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Bot: bot, Balance: balance})
}
