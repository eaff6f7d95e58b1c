package models

import (
	"time"

	"github.com/lib/pq"
)

// ChatMessage represents a persisted exchange chat message.
// TempID is a wire-only echo of the client correlation id used to resolve
// the sender's optimistic entry; it is never stored.
type ChatMessage struct {
	ID         int            `db:"id" json:"id"`
	ExchangeID int            `db:"exchange_id" json:"exchange_id"`
	SenderID   int            `db:"sender_id" json:"sender_id"`
	Content    string         `db:"content" json:"content"`
	Images     pq.StringArray `db:"images" json:"images"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	TempID     string         `db:"-" json:"temp_id,omitempty"`
}

// Event types carried over the websocket.
const (
	EventMessageReceived = "message_received"
	EventTypingChanged   = "typing_changed"
	EventHistory         = "history"
	EventError           = "error"

	EventSendMessage = "send_message"
	EventTyping      = "typing"
)

// Error codes returned in error events and HTTP bodies.
const (
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeInvalidArgument  = "invalid_argument"
	CodeStoreUnavailable = "store_unavailable"
)

// ChatEvent is broadcasted through websockets.
type ChatEvent struct {
	Type     string        `json:"type"`
	Message  *ChatMessage  `json:"message,omitempty"`
	Messages []ChatMessage `json:"messages,omitempty"`
	Typing   *TypingChange `json:"typing,omitempty"`
	Error    *EventErr     `json:"error,omitempty"`
}

// TypingChange is the payload of a typing_changed event.
type TypingChange struct {
	ExchangeID int  `json:"exchange_id"`
	UserID     int  `json:"user_id"`
	IsTyping   bool `json:"is_typing"`
}

// EventErr is the payload of an error event. TempID identifies the failed
// optimistic send when the error acknowledges a send_message.
type EventErr struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
	TempID string `json:"temp_id,omitempty"`
}

// ClientEvent is what a connected session sends to the gateway.
type ClientEvent struct {
	Type    string   `json:"type"`
	Content string   `json:"content,omitempty"`
	Images  []string `json:"images,omitempty"`
	TempID  string   `json:"temp_id,omitempty"`
}
