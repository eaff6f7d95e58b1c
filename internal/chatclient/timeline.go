package chatclient

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
)

// Entry is one render-ready timeline item: either a confirmed message or a
// locally echoed optimistic one awaiting confirmation.
type Entry struct {
	Message    models.ChatMessage
	Optimistic bool
	TempID     string
}

// Timeline merges history replay, live confirmed messages, and local
// optimistic entries into one ordered, duplicate-free sequence. A confirmed
// message retracts its optimistic placeholder in the same critical section,
// so no snapshot ever shows both.
type Timeline struct {
	localUserID int
	now         func() time.Time

	mu        sync.Mutex
	confirmed []models.ChatMessage
	seen      map[int]struct{}
	pending   []Entry
}

// NewTimeline builds an empty timeline for the local user.
func NewTimeline(localUserID int) *Timeline {
	return &Timeline{
		localUserID: localUserID,
		now:         time.Now,
		seen:        make(map[int]struct{}),
	}
}

// AddOptimistic records a locally echoed message before the server confirms
// it and returns the entry carrying its temporary id. The client-local
// timestamp may be slightly off the eventual server time; the entry is
// replaced by the authoritative record on confirmation.
func (t *Timeline) AddOptimistic(content string, images []string) Entry {
	entry := Entry{
		Message: models.ChatMessage{
			SenderID:  t.localUserID,
			Content:   content,
			Images:    append([]string(nil), images...),
			CreatedAt: t.now(),
		},
		Optimistic: true,
		TempID:     uuid.NewString(),
	}

	t.mu.Lock()
	t.pending = append(t.pending, entry)
	t.mu.Unlock()
	return entry
}

// ApplyConfirmed folds a server-confirmed message into the timeline. It is
// idempotent per message id, so a message seen in both the history snapshot
// and the live stream appears once. A matching optimistic entry is removed
// atomically with the insert: first by echoed temp id, otherwise the oldest
// pending entry from the same sender with equal content and images.
func (t *Timeline) ApplyConfirmed(msg models.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[msg.ID]; ok {
		return
	}
	t.seen[msg.ID] = struct{}{}

	t.resolvePending(msg)

	idx := sort.Search(len(t.confirmed), func(i int) bool {
		if t.confirmed[i].CreatedAt.Equal(msg.CreatedAt) {
			return t.confirmed[i].ID > msg.ID
		}
		return t.confirmed[i].CreatedAt.After(msg.CreatedAt)
	})
	t.confirmed = append(t.confirmed, models.ChatMessage{})
	copy(t.confirmed[idx+1:], t.confirmed[idx:])
	t.confirmed[idx] = msg
}

func (t *Timeline) resolvePending(msg models.ChatMessage) {
	if msg.TempID != "" {
		for i, entry := range t.pending {
			if entry.TempID == msg.TempID {
				t.pending = append(t.pending[:i], t.pending[i+1:]...)
				return
			}
		}
	}
	if msg.SenderID != t.localUserID {
		return
	}
	for i, entry := range t.pending {
		if entry.Message.Content == msg.Content && equalImages(entry.Message.Images, msg.Images) {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return
		}
	}
}

// Fail retracts the optimistic entry for a failed send. It reports whether
// an entry was outstanding so callers can surface the failure exactly once.
func (t *Timeline) Fail(tempID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, entry := range t.pending {
		if entry.TempID == tempID {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns the render-ready sequence: confirmed and outstanding
// optimistic entries merged ascending by creation time.
func (t *Timeline) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]Entry, 0, len(t.confirmed)+len(t.pending))
	for _, msg := range t.confirmed {
		entries = append(entries, Entry{Message: msg})
	}
	entries = append(entries, t.pending...)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Message.CreatedAt.Before(entries[j].Message.CreatedAt)
	})
	return entries
}

// LastConfirmedID returns the highest confirmed message id, used as the
// history cursor on reconnect.
func (t *Timeline) LastConfirmedID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	last := 0
	for _, msg := range t.confirmed {
		if msg.ID > last {
			last = msg.ID
		}
	}
	return last
}

func equalImages(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
