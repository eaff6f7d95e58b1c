package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
)

func confirmed(id, senderID int, content string, at time.Time) models.ChatMessage {
	return models.ChatMessage{ID: id, ExchangeID: 1, SenderID: senderID, Content: content, CreatedAt: at}
}

func contents(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message.Content)
	}
	return out
}

func TestOptimisticEntryResolvedByTempID(t *testing.T) {
	tl := NewTimeline(10)
	entry := tl.AddOptimistic("hello", nil)
	require.NotEmpty(t, entry.TempID)

	echo := confirmed(1, 10, "hello", time.Now())
	echo.TempID = entry.TempID
	tl.ApplyConfirmed(echo)

	snapshot := tl.Snapshot()
	require.Len(t, snapshot, 1)
	assert.False(t, snapshot[0].Optimistic)
	assert.Equal(t, "hello", snapshot[0].Message.Content)
}

func TestOptimisticEntryResolvedByContentFallback(t *testing.T) {
	tl := NewTimeline(10)
	tl.AddOptimistic("hello", nil)

	// Confirmation from another device of the same user carries no temp id.
	tl.ApplyConfirmed(confirmed(1, 10, "hello", time.Now()))

	snapshot := tl.Snapshot()
	require.Len(t, snapshot, 1)
	assert.False(t, snapshot[0].Optimistic)
}

func TestIdenticalContentResolvesOldestPendingFirst(t *testing.T) {
	tl := NewTimeline(10)
	first := tl.AddOptimistic("ok", nil)
	second := tl.AddOptimistic("ok", nil)

	tl.ApplyConfirmed(confirmed(1, 10, "ok", time.Now()))

	snapshot := tl.Snapshot()
	require.Len(t, snapshot, 2)
	var stillPending []string
	for _, e := range snapshot {
		if e.Optimistic {
			stillPending = append(stillPending, e.TempID)
		}
	}
	require.Len(t, stillPending, 1)
	assert.Equal(t, second.TempID, stillPending[0])
	assert.NotEqual(t, first.TempID, stillPending[0])
}

func TestPeerMessageNeverResolvesLocalPending(t *testing.T) {
	tl := NewTimeline(10)
	tl.AddOptimistic("hello", nil)

	tl.ApplyConfirmed(confirmed(1, 20, "hello", time.Now()))

	snapshot := tl.Snapshot()
	require.Len(t, snapshot, 2)
}

func TestHistoryAndLiveOverlapAppearsOnce(t *testing.T) {
	tl := NewTimeline(10)
	base := time.Now()
	msg := confirmed(3, 20, "hello", base)

	// Live delivery first, then the same message in the history snapshot.
	tl.ApplyConfirmed(msg)
	for _, m := range []models.ChatMessage{
		confirmed(1, 10, "hey", base.Add(-2*time.Second)),
		confirmed(2, 20, "hi", base.Add(-time.Second)),
		msg,
	} {
		tl.ApplyConfirmed(m)
	}

	snapshot := tl.Snapshot()
	assert.Equal(t, []string{"hey", "hi", "hello"}, contents(snapshot))
}

func TestFailRetractsPendingEntry(t *testing.T) {
	tl := NewTimeline(10)
	entry := tl.AddOptimistic("doomed", nil)

	assert.True(t, tl.Fail(entry.TempID))
	assert.Empty(t, tl.Snapshot())
	assert.False(t, tl.Fail(entry.TempID), "second retraction reports nothing outstanding")
}

func TestConfirmedOrderedByCreationTimeThenID(t *testing.T) {
	tl := NewTimeline(10)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tl.ApplyConfirmed(confirmed(5, 20, "c", base.Add(2*time.Second)))
	tl.ApplyConfirmed(confirmed(2, 10, "b", base.Add(time.Second)))
	tl.ApplyConfirmed(confirmed(1, 10, "a", base))
	// Same timestamp as "b": id breaks the tie.
	tl.ApplyConfirmed(confirmed(4, 20, "b2", base.Add(time.Second)))

	assert.Equal(t, []string{"a", "b", "b2", "c"}, contents(tl.Snapshot()))
}

func TestSnapshotInterleavesPendingByTime(t *testing.T) {
	tl := NewTimeline(10)
	base := time.Now()
	tl.ApplyConfirmed(confirmed(1, 20, "old", base.Add(-time.Minute)))

	tl.AddOptimistic("new", nil)

	snapshot := tl.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "old", snapshot[0].Message.Content)
	assert.Equal(t, "new", snapshot[1].Message.Content)
	assert.True(t, snapshot[1].Optimistic)
}

func TestLastConfirmedID(t *testing.T) {
	tl := NewTimeline(10)
	assert.Zero(t, tl.LastConfirmedID())

	tl.ApplyConfirmed(confirmed(3, 20, "x", time.Now()))
	tl.ApplyConfirmed(confirmed(7, 10, "y", time.Now()))
	tl.AddOptimistic("pending never counts", nil)

	assert.Equal(t, 7, tl.LastConfirmedID())
}

func TestImageMismatchBlocksContentFallback(t *testing.T) {
	tl := NewTimeline(10)
	tl.AddOptimistic("look", []string{"a.jpg"})

	peerEcho := confirmed(1, 10, "look", time.Now())
	peerEcho.Images = []string{"b.jpg"}
	tl.ApplyConfirmed(peerEcho)

	snapshot := tl.Snapshot()
	require.Len(t, snapshot, 2, "differing images must not resolve the pending entry")
}
