package core

import "time"

// ResourceKind identifies the shape of a streamable resource.
type ResourceKind string

const (
	ResourceFeed ResourceKind = "feed"
	ResourceDM   ResourceKind = "dm"
	ResourceRoom ResourceKind = "room"
)

// GlobalFeedID is the resource ID of the single global activity feed.
const GlobalFeedID = "global"

// Item is a feed post or conversation message as delivered to spectators.
type Item struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	Author     string    `json:"author"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// TypingRow records the last typing ping from a participant.
type TypingRow struct {
	ConversationID string
	Username       string
	LastPingAt     time.Time
}

// Conversation describes a DM or group room.
type Conversation struct {
	ID           string       `json:"id"`
	Kind         ResourceKind `json:"kind"`
	Participants []string     `json:"participants"`
	CreatedAt    time.Time    `json:"created_at"`
}
