package ws

import (
	"encoding/json"
	"log"
	"sort"
	"sync"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/observability"
)

// Hub is the room registry: it maps an exchange id to the sessions currently
// joined to that room. Rooms are created on first join and pruned when the
// last session leaves, so membership state never outlives its connections.
type Hub struct {
	rooms map[int]map[string]*Client
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[int]map[string]*Client)}
}

// Join registers a session in an exchange room. Rejoining with the same
// session id is a no-op. Authorization happens before Join; the hub only
// tracks membership.
func (h *Hub) Join(exchangeID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[exchangeID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[exchangeID] = room
	}
	if _, ok := room[client.SessionID()]; ok {
		return
	}
	room[client.SessionID()] = client
}

// Leave removes a session from a room; it is a no-op for unknown sessions.
func (h *Hub) Leave(exchangeID int, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[exchangeID]; ok {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(h.rooms, exchangeID)
		}
	}
}

// MembersOf returns the session ids currently joined to the room. An empty
// room is not an error; messages are persisted regardless of who is online.
func (h *Hub) MembersOf(exchangeID int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[exchangeID]
	members := make([]string, 0, len(room))
	for sessionID := range room {
		members = append(members, sessionID)
	}
	sort.Strings(members)
	return members
}

// BroadcastMessage fans a persisted message out to every session in the
// room, including all of the sender's own sessions, so a second open tab
// observes its own messages.
func (h *Hub) BroadcastMessage(exchangeID int, msg models.ChatMessage) {
	event := models.ChatEvent{Type: models.EventMessageReceived, Message: &msg}
	h.broadcast(exchangeID, event, func(*Client) bool { return true })
}

// BroadcastTyping fans a typing change out to every room member except the
// typing user's own sessions.
func (h *Hub) BroadcastTyping(exchangeID int, change models.TypingChange) {
	event := models.ChatEvent{Type: models.EventTypingChanged, Typing: &change}
	h.broadcast(exchangeID, event, func(c *Client) bool {
		return c.UserID() != change.UserID
	})
	observability.IncTypingEvent()
}

func (h *Hub) broadcast(exchangeID int, event models.ChatEvent, include func(*Client) bool) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws marshal error: %v", err)
		return
	}

	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.rooms[exchangeID]))
	for _, client := range h.rooms[exchangeID] {
		if include(client) {
			recipients = append(recipients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range recipients {
		client.Enqueue(payload)
	}
}
