package handlers

import (
	"net/http"

	apperrors "github.com/botwire/botwire/internal/errors"
)

// Responder writes an error to the client.
type Responder func(http.ResponseWriter, *http.Request, error)

func envelopeResponder(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

var respond Responder = envelopeResponder

// SetHTTPErrorResponder routes handler errors through responder; nil restores
// the default envelope writer.
func SetHTTPErrorResponder(responder Responder) {
	if responder == nil {
		responder = envelopeResponder
	}
	respond = responder
}

// ResetHTTPErrorResponder restores the default envelope writer.
func ResetHTTPErrorResponder() { respond = envelopeResponder }

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	respond(w, r, err)
}

// fail maps a core error to its envelope before responding.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	respond(w, r, apperrors.FromDomain(r.Context(), err))
}
