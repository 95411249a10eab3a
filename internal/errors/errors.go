// Package errors converts failures into gofulmen error envelopes and writes
// them as JSON HTTP responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/core/ledger"
	"github.com/botwire/botwire/internal/core/presence"
	"github.com/botwire/botwire/internal/core/store"
	"github.com/botwire/botwire/internal/metrics"
	"github.com/botwire/botwire/internal/observability"
	"github.com/botwire/botwire/internal/server/middleware"
)

// Error codes surfaced by the HTTP API.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInsufficientTokens = "INSUFFICIENT_TOKENS"
	CodeInternal           = "INTERNAL_ERROR"
	CodeDatabase           = "DATABASE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
	CodeConfigInvalid      = "CONFIG_INVALID"
)

// Context key holding the underlying error text. It is logged, never sent.
const wrappedErrorKey = "wrapped_error"

var codeStatus = map[string]int{
	CodeInvalidInput:       http.StatusBadRequest,
	CodeValidationFailed:   http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeInsufficientTokens: http.StatusPaymentRequired,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodeConflict:           http.StatusConflict,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
}

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewUnauthorizedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeUnauthorized, message)
}

func NewForbiddenError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeForbidden, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewConflictError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConflict, message)
}

// NewRateLimitedError reports a rejected admission check.
func NewRateLimitedError(profile string, limit, retryAfterSeconds int) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeRateLimited, "rate limit exceeded").WithDetails(map[string]interface{}{
		"profile":     profile,
		"limit":       limit,
		"retry_after": retryAfterSeconds,
	})
}

// NewInsufficientTokensError reports a paid send the bot cannot afford.
func NewInsufficientTokensError(required, balance int64) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInsufficientTokens, "insufficient token balance").WithDetails(map[string]interface{}{
		"required": required,
		"balance":  balance,
	})
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

// The Wrap helpers stamp the request ID from ctx and keep err for the logs.

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

func WrapNotFound(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeNotFound, err, message)
}

func WrapForbidden(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeForbidden, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeDatabase, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConfigInvalid, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	env := EnsureCorrelationID(errors.NewErrorEnvelope(code, message), ctx)
	env = env.WithTraceID(env.CorrelationID)
	if HTTPStatusFromCode(code) >= http.StatusInternalServerError {
		env, _ = env.WithSeverity(errors.SeverityHigh)
	}
	return withWrappedError(env, err)
}

// FromDomain maps errors returned by the core packages to envelopes. Errors
// it does not recognize become database errors, since every other core
// failure originates in the store.
func FromDomain(ctx context.Context, err error) *errors.ErrorEnvelope {
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	var insufficient *ledger.InsufficientTokensError
	switch {
	case stderrors.As(err, &insufficient):
		return EnsureCorrelationID(NewInsufficientTokensError(insufficient.Required, insufficient.Balance), ctx)
	case stderrors.Is(err, presence.ErrForbidden):
		return WrapForbidden(ctx, err, "not allowed to change typing state in this conversation")
	case stderrors.Is(err, store.ErrNotFound):
		return WrapNotFound(ctx, err, "resource not found")
	case stderrors.Is(err, context.DeadlineExceeded):
		return wrap(ctx, CodeTimeout, err, "request timed out")
	default:
		return WrapDatabaseError(ctx, err, "storage operation failed")
	}
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env, _ := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error").WithSeverity(errors.SeverityCritical)
		return env
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	env, _ := errors.NewErrorEnvelope(CodeInternal, "unexpected error").WithSeverity(errors.SeverityHigh)
	return withWrappedError(env, err)
}

// EnsureCorrelationID stamps the request ID from ctx, or a generated one,
// unless the envelope already carries one.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil || envelope.CorrelationID != "" {
		return envelope
	}

	var id string
	if ctx != nil {
		id = middleware.GetRequestID(ctx)
	}
	if id == "" {
		id = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(id)
}

// HTTPStatusFromEnvelope resolves the HTTP status code for an envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code for an error code.
// Unknown codes are server errors.
func HTTPStatusFromCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}
	if updated, ctxErr := envelope.WithContext(map[string]interface{}{wrappedErrorKey: err.Error()}); ctxErr == nil {
		return updated
	}
	return envelope
}

// ResponseDetails builds the client-visible details: the envelope details,
// plus its context for client errors. Server error context and wrapped
// error text stay in the logs.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{}, len(envelope.Details))
	for key, value := range envelope.Details {
		details[key] = value
	}
	if HTTPStatusFromEnvelope(envelope) < http.StatusInternalServerError {
		for key, value := range envelope.Context {
			if _, exists := details[key]; !exists && key != wrappedErrorKey {
				details[key] = value
			}
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// HTTPErrorDetail captures the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope writes envelope with its mapped status, then logs and
// counts it.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}
	if envelope == nil {
		envelope = EnsureEnvelope(nil)
	}

	var ctx context.Context
	endpoint := "/unknown"
	if r != nil {
		ctx = r.Context()
		endpoint = middleware.RouteLabel(r)
	}
	envelope = EnsureCorrelationID(envelope, ctx)
	status := HTTPStatusFromEnvelope(envelope)

	logHTTPError(envelope, status, endpoint)
	metrics.RecordAPIError(endpoint, envelope.Code, status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   ResponseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	})
}

func logHTTPError(envelope *errors.ErrorEnvelope, status int, endpoint string) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", status),
		zap.String("endpoint", endpoint),
		zap.String("request_id", envelope.CorrelationID),
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	switch {
	case envelope.Severity == errors.SeverityCritical, envelope.Severity == errors.SeverityHigh, status >= http.StatusInternalServerError:
		logger.Error(envelope.Message, fields...)
	case envelope.Severity == errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}
