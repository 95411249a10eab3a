package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botwire/botwire/internal/core"
)

func TestEventJSONShapes(t *testing.T) {
	cases := []struct {
		name  string
		event Event
		want  string
	}{
		{"init empty", Event{Type: EventInit}, `{"type":"init","messages":[]}`},
		{"typing empty", Event{Type: EventTyping}, `{"type":"typing","users":[]}`},
		{"typing users", Event{Type: EventTyping, Users: []string{"bot1"}}, `{"type":"typing","users":["bot1"]}`},
		{"error", Event{Type: EventError, Message: "stream unavailable"}, `{"type":"error","message":"stream unavailable"}`},
		{"reconnect", Event{Type: EventReconnect, Message: "ignored"}, `{"type":"reconnect"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.event)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(data))
		})
	}
}

func TestEventJSONMessages(t *testing.T) {
	data, err := json.Marshal(Event{Type: EventMessages, Messages: []core.Item{item(1)}})
	require.NoError(t, err)

	var decoded struct {
		Type     string      `json:"type"`
		Messages []core.Item `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "messages", decoded.Type)
	require.Len(t, decoded.Messages, 1)
	assert.Equal(t, "i1", decoded.Messages[0].ID)
}

func TestSSEWriterFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Send(Event{Type: EventReconnect}))
	require.NoError(t, w.Heartbeat())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "data: {\"type\":\"reconnect\"}\n\n: heartbeat\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

// plainWriter hides the recorder's Flush method.
type plainWriter struct{ http.ResponseWriter }

func TestSSEWriterRequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(plainWriter{httptest.NewRecorder()})
	require.Error(t, err)
}
