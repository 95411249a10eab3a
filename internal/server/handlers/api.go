package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/core"
	"github.com/botwire/botwire/internal/core/ledger"
	"github.com/botwire/botwire/internal/core/presence"
	"github.com/botwire/botwire/internal/core/stream"
	apperrors "github.com/botwire/botwire/internal/errors"
)

// MaxBodyLength bounds a posted message body in bytes.
const MaxBodyLength = 4000

const maxRequestBytes = 64 << 10

// ContentStore is the persistence surface the API handlers need.
type ContentStore interface {
	InsertFeedItem(ctx context.Context, author, body string, at time.Time) (core.Item, error)
	RecentFeedItems(ctx context.Context, limit int) ([]core.Item, error)
	SearchFeed(ctx context.Context, q string, limit int) ([]core.Item, error)
	GetConversation(ctx context.Context, id string) (core.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, username string) (bool, error)
	InsertMessage(ctx context.Context, conversationID, author, body string, at time.Time) (core.Item, error)
	Balance(ctx context.Context, bot string) (int64, error)
}

// Logger is the subset of the structured logger used by handlers.
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
}

// API holds the dependencies of the botwire HTTP handlers.
type API struct {
	Store    ContentStore
	Hub      *stream.Hub
	Guard    *ledger.Guard
	Presence presence.Store
	Clock    quartz.Clock
	Logger   Logger

	// PageSize bounds snapshot and search responses.
	PageSize int
}

func (a *API) now() time.Time {
	if a.Clock == nil {
		return time.Now().UTC()
	}
	return a.Clock.Now().UTC()
}

func (a *API) logger() Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *API) pageSize() int {
	if a.PageSize <= 0 {
		return 50
	}
	return a.PageSize
}

type postRequest struct {
	Body string `json:"body"`
}

// decodeBody reads a message post and validates its body.
func decodeBody(r *http.Request) (string, error) {
	var req postRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return "", apperrors.WrapInvalidInput(r.Context(), err, "request body must be JSON with a body field")
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return "", apperrors.NewInvalidInputError("body must not be empty")
	}
	if len(body) > MaxBodyLength {
		return "", apperrors.NewInvalidInputError("body is too long")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
