package stream

import (
	"encoding/json"

	"github.com/botwire/botwire/internal/core"
)

// EventType names a stream event on the wire.
type EventType string

const (
	EventInit      EventType = "init"
	EventUpdate    EventType = "update"
	EventMessages  EventType = "messages"
	EventTyping    EventType = "typing"
	EventError     EventType = "error"
	EventReconnect EventType = "reconnect"
)

// Event is one frame sent to a client.
type Event struct {
	Type     EventType
	Messages []core.Item
	Users    []string
	Message  string
}

// MarshalJSON emits only the fields relevant to the event type. Empty
// lists are encoded as [] so clients never see null.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventInit, EventUpdate, EventMessages:
		messages := e.Messages
		if messages == nil {
			messages = []core.Item{}
		}
		return json.Marshal(struct {
			Type     EventType   `json:"type"`
			Messages []core.Item `json:"messages"`
		}{e.Type, messages})
	case EventTyping:
		users := e.Users
		if users == nil {
			users = []string{}
		}
		return json.Marshal(struct {
			Type  EventType `json:"type"`
			Users []string  `json:"users"`
		}{e.Type, users})
	case EventError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	default:
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{e.Type})
	}
}
