package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/metrics"
	"github.com/botwire/botwire/internal/observability"
)

// ErrorResponder writes err as an HTTP error response. The server injects
// the envelope responder from internal/errors; this package cannot import
// it directly.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// Recovery middleware recovers from panics, logs the stack and answers 500.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				panicErr := errors.NewErrorEnvelope("INTERNAL_ERROR", "internal server error").
					WithCorrelationID(requestID)
				panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

				metrics.RecordPanic(RouteLabel(r))
				if observability.ServerLogger != nil {
					observability.ServerLogger.Error("panic recovered",
						zap.String("panic", fmt.Sprint(rec)),
						zap.String("stack_trace", string(debug.Stack())),
						zap.String("request_id", requestID))
				}

				writeErrorResponse(w, panicErr, http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ErrorResponse structure per API standards
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// writeErrorResponse is the fallback used when no ErrorResponder is wired.
func writeErrorResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, statusCode int) {
	response := ErrorResponse{
		Error: ErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   envelope.Details,
			RequestID: envelope.CorrelationID,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func fallbackResponder(status int) ErrorResponder {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		code := status
		envelope, ok := err.(*errors.ErrorEnvelope)
		if !ok || envelope == nil {
			envelope = errors.NewErrorEnvelope("INTERNAL_ERROR", "internal server error")
			code = http.StatusInternalServerError
		}
		if envelope.CorrelationID == "" {
			envelope = envelope.WithCorrelationID(GetRequestID(r.Context()))
		}
		writeErrorResponse(w, envelope, code)
	}
}
