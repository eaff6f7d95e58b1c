package ws

import (
	"context"
	"sync"
	"time"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
)

type typingKey struct {
	exchangeID int
	userID     int
}

type typingState struct {
	deadline      time.Time
	lastBroadcast time.Time
}

// Presence tracks ephemeral per-room typing state. Entries expire on their
// own after the TTL, so a lost "stopped typing" signal can never leave an
// indicator stuck; clients apply the same decay window locally.
type Presence struct {
	hub      *Hub
	ttl      time.Duration
	debounce time.Duration
	now      func() time.Time

	mu     sync.Mutex
	states map[typingKey]*typingState
}

// NewPresence builds a typing broadcaster fanning out through the hub.
func NewPresence(hub *Hub, ttl, debounce time.Duration) *Presence {
	return &Presence{
		hub:      hub,
		ttl:      ttl,
		debounce: debounce,
		now:      time.Now,
		states:   make(map[typingKey]*typingState),
	}
}

// SetTyping refreshes the user's typing deadline and broadcasts the change
// to the other room members. Repeated calls inside the debounce window only
// extend the deadline; they do not re-broadcast.
func (p *Presence) SetTyping(exchangeID, userID int) {
	now := p.now()
	key := typingKey{exchangeID: exchangeID, userID: userID}

	p.mu.Lock()
	state, ok := p.states[key]
	if !ok {
		state = &typingState{}
		p.states[key] = state
	}
	state.deadline = now.Add(p.ttl)
	shouldBroadcast := state.lastBroadcast.IsZero() || now.Sub(state.lastBroadcast) >= p.debounce
	if shouldBroadcast {
		state.lastBroadcast = now
	}
	p.mu.Unlock()

	if shouldBroadcast {
		p.hub.BroadcastTyping(exchangeID, models.TypingChange{
			ExchangeID: exchangeID,
			UserID:     userID,
			IsTyping:   true,
		})
	}
}

// IsTyping reports whether the user's typing state is still live. Expiry is
// lazy; no sweep is needed for correctness.
func (p *Presence) IsTyping(exchangeID, userID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[typingKey{exchangeID: exchangeID, userID: userID}]
	return ok && p.now().Before(state.deadline)
}

// Run sweeps expired entries until the context ends. The sweep only bounds
// memory; readers already treat an elapsed deadline as not typing.
func (p *Presence) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Presence) sweep() {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, state := range p.states {
		if !now.Before(state.deadline) {
			delete(p.states, key)
		}
	}
}
