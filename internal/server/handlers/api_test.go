package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botwire/botwire/internal/core"
	"github.com/botwire/botwire/internal/core/ledger"
	"github.com/botwire/botwire/internal/core/presence"
	"github.com/botwire/botwire/internal/core/store"
	"github.com/botwire/botwire/internal/core/stream"
	apperrors "github.com/botwire/botwire/internal/errors"
	"github.com/botwire/botwire/internal/server/middleware"
)

type fakeStore struct {
	mu            sync.Mutex
	feed          []core.Item
	messages      map[string][]core.Item
	conversations map[string]core.Conversation
	balances      map[string]int64
	failInsert    error
	seq           int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[string][]core.Item),
		conversations: map[string]core.Conversation{
			"dm-1":   {ID: "dm-1", Kind: core.ResourceDM, Participants: []string{"alice", "bob"}},
			"room-1": {ID: "room-1", Kind: core.ResourceRoom, Participants: []string{"alice", "bob", "carol"}},
		},
		balances: map[string]int64{"alice": 2, "bob": 0, "carol": 5},
	}
}

func (f *fakeStore) nextItem(resource, author, body string, at time.Time) core.Item {
	f.seq++
	return core.Item{ID: fmt.Sprintf("item-%03d", f.seq), ResourceID: resource, Author: author, Body: body, CreatedAt: at}
}

func (f *fakeStore) InsertFeedItem(_ context.Context, author, body string, at time.Time) (core.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert != nil {
		return core.Item{}, f.failInsert
	}
	item := f.nextItem(core.GlobalFeedID, author, body, at)
	f.feed = append(f.feed, item)
	return item, nil
}

func newestFirst(items []core.Item, limit int) []core.Item {
	out := make([]core.Item, 0, len(items))
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, items[i])
	}
	return out
}

func (f *fakeStore) RecentFeedItems(_ context.Context, limit int) ([]core.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return newestFirst(f.feed, limit), nil
}

func (f *fakeStore) SearchFeed(_ context.Context, q string, limit int) ([]core.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []core.Item
	for _, item := range f.feed {
		if strings.Contains(item.Body, q) {
			hits = append(hits, item)
		}
	}
	return newestFirst(hits, limit), nil
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (core.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return core.Conversation{}, store.ErrNotFound
	}
	return conv, nil
}

func (f *fakeStore) IsParticipant(_ context.Context, conversationID, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.conversations[conversationID].Participants {
		if p == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertMessage(_ context.Context, conversationID, author, body string, at time.Time) (core.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert != nil {
		return core.Item{}, f.failInsert
	}
	item := f.nextItem(conversationID, author, body, at)
	f.messages[conversationID] = append(f.messages[conversationID], item)
	return item, nil
}

func (f *fakeStore) DebitBalance(_ context.Context, bot string, cost int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[bot] < cost {
		return false, nil
	}
	f.balances[bot] -= cost
	return true, nil
}

func (f *fakeStore) CreditBalance(_ context.Context, bot string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[bot] += amount
	return nil
}

func (f *fakeStore) Balance(_ context.Context, bot string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[bot]
	if !ok {
		return 0, store.ErrNotFound
	}
	return b, nil
}

// feedSource and convSource adapt fakeStore to stream.Source.
type feedSource struct{ *fakeStore }

func (s feedSource) FetchSnapshot(ctx context.Context, _ string, limit int) ([]core.Item, error) {
	items, _ := s.RecentFeedItems(ctx, limit)
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s feedSource) FetchRecent(ctx context.Context, _ string, limit int) ([]core.Item, error) {
	return s.RecentFeedItems(ctx, limit)
}

type testEnv struct {
	store  *fakeStore
	clock  *quartz.Mock
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ResetHTTPErrorResponder()

	fs := newFakeStore()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	typing := presence.NewMemoryStore(10*time.Second, clock)
	api := &API{
		Store:    fs,
		Hub:      stream.NewHub(stream.Sources{Feed: feedSource{fs}, Typing: typing}, stream.DefaultConfig()),
		Guard:    ledger.NewGuard(fs),
		Presence: typing,
		Clock:    clock,
	}

	r := chi.NewRouter()
	r.Use(middleware.BotAuth(botsByKey{}, apperrors.RespondWithError))
	r.Get("/api/v1/feed", api.Feed)
	r.Get("/api/v1/feed/stream", api.FeedStream)
	r.Get("/api/v1/search", api.Search)
	r.Get("/api/v1/dm/{id}/stream", api.DMStream)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireBot(apperrors.RespondWithError))
		r.Post("/api/v1/feed", api.PostFeed)
		r.Post("/api/v1/dm/{id}/messages", api.PostDM)
		r.Post("/api/v1/rooms/{id}/messages", api.PostRoomMessage)
		r.Put("/api/v1/conversations/{id}/typing", api.SetTyping)
		r.Delete("/api/v1/conversations/{id}/typing", api.ClearTyping)
		r.Get("/api/v1/conversations/{id}/typing", api.ListTyping)
		r.Get("/api/v1/bots/me/balance", api.Balance)
	})

	return &testEnv{store: fs, clock: clock, router: r}
}

// botsByKey treats "bw_<name>" as the key of bot <name>.
type botsByKey struct{}

func (botsByKey) BotByAPIKey(_ context.Context, key string) (string, error) {
	name, ok := strings.CutPrefix(key, "bw_")
	if !ok || name == "" {
		return "", store.ErrNotFound
	}
	return name, nil
}

func (e *testEnv) do(method, path, bot, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bot != "" {
		req.Header.Set("Authorization", "Bearer bw_"+bot)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestPostFeedDebitsAndPersists(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/feed", "alice", `{"body":"hello world"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var item core.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "alice", item.Author)
	assert.Equal(t, "hello world", item.Body)
	assert.EqualValues(t, 1, env.store.balances["alice"])

	rec = env.do(http.MethodGet, "/api/v1/feed", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var feed ItemsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	require.Len(t, feed.Items, 1)
}

func TestPostFeedInsufficientTokens(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/feed", "bob", `{"body":"broke"}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeInsufficientTokens, body.Error.Code)
	assert.EqualValues(t, 1, body.Error.Details["required"])
	assert.EqualValues(t, 0, body.Error.Details["balance"])
	assert.Empty(t, env.store.feed)
}

func TestPostFeedRefundsWhenPersistFails(t *testing.T) {
	env := newTestEnv(t)
	env.store.failInsert = fmt.Errorf("disk I/O error")

	rec := env.do(http.MethodPost, "/api/v1/feed", "alice", `{"body":"lost"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.EqualValues(t, 2, env.store.balances["alice"])
}

func TestPostValidation(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/v1/feed", "", `{"body":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/feed", "alice", `{"body":"   "}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/feed", "alice", `not json`).Code)
	long := `{"body":"` + strings.Repeat("a", MaxBodyLength+1) + `"}`
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/feed", "alice", long).Code)
}

func TestPostConversationMessages(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/dm/dm-1/messages", "alice", `{"body":"hi bob"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, env.store.messages["dm-1"], 1)

	rec = env.do(http.MethodPost, "/api/v1/rooms/room-1/messages", "carol", `{"body":"hi all"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 4, env.store.balances["carol"])

	rec = env.do(http.MethodPost, "/api/v1/dm/dm-1/messages", "carol", `{"body":"let me in"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/dm/room-1/messages", "alice", `{"body":"wrong kind"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/rooms/nope/messages", "alice", `{"body":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNotFound, errorCode(t, rec))
}

func TestTypingLifecycle(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusNoContent, env.do(http.MethodPut, "/api/v1/conversations/room-1/typing", "alice", "").Code)
	require.Equal(t, http.StatusNoContent, env.do(http.MethodPut, "/api/v1/conversations/room-1/typing", "bob", "").Code)

	list := func() []string {
		rec := env.do(http.MethodGet, "/api/v1/conversations/room-1/typing", "carol", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp TypingResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp.Users
	}
	assert.Equal(t, []string{"alice", "bob"}, list())

	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/v1/conversations/room-1/typing", "bob", "").Code)
	assert.Equal(t, []string{"alice"}, list())

	env.clock.Advance(10 * time.Second)
	assert.Empty(t, list())
}

func TestTypingForbidden(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/api/v1/conversations/dm-1/typing", "carol", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperrors.CodeForbidden, errorCode(t, rec))

	rec = env.do(http.MethodPut, "/api/v1/conversations/dm-1/typing", "alice", `{"username":"bob"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code, "bots cannot mark someone else as typing")
}

func TestSearchAndBalance(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/feed", "carol", `{"body":"gopher news"}`).Code)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/feed", "carol", `{"body":"other"}`).Code)

	rec := env.do(http.MethodGet, "/api/v1/search?q=gopher", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hits ItemsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.Len(t, hits.Items, 1)
	assert.Equal(t, "gopher news", hits.Items[0].Body)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/search", "", "").Code)

	rec = env.do(http.MethodGet, "/api/v1/bots/me/balance", "carol", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bal BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, BalanceResponse{Bot: "carol", Balance: 3}, bal)
}

func TestStreamUnknownConversation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/dm/nope/stream", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedStreamSendsInitSnapshot(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/feed", "carol", `{"body":"first"}`).Code)

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/feed/stream", nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), line)

	var event struct {
		Type     string      `json:"type"`
		Messages []core.Item `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
	assert.Equal(t, "init", event.Type)
	require.Len(t, event.Messages, 1)
	assert.Equal(t, "first", event.Messages[0].Body)
}
