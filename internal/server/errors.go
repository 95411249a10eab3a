package server

import (
	"net/http"

	apperrors "github.com/botwire/botwire/internal/errors"
)

// HandleError writes err as a JSON error envelope. Core errors that are not
// already envelopes are mapped to their API codes first.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = apperrors.NewInternalError("unknown error")
	}
	apperrors.RespondWithEnvelope(w, r, apperrors.FromDomain(r.Context(), err))
}
