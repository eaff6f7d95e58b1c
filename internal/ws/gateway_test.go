package ws_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/auth"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/chat"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/chatclient"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/repositories"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/ws"
)

const testSecret = "gateway-test-secret"

// memStore is an in-memory stand-in for both repositories, enough to run the
// gateway end to end without Postgres.
type memStore struct {
	mu          sync.Mutex
	exchanges   map[int]models.Exchange
	messages    []models.ChatMessage
	seq         int
	failCreates bool
}

func newMemStore(exchanges ...models.Exchange) *memStore {
	s := &memStore{exchanges: make(map[int]models.Exchange)}
	for _, ex := range exchanges {
		s.exchanges[ex.ID] = ex
	}
	return s
}

func (s *memStore) GetExchange(_ context.Context, exchangeID int) (models.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exchanges[exchangeID]
	if !ok {
		return models.Exchange{}, repositories.ErrExchangeNotFound
	}
	return ex, nil
}

func (s *memStore) Exists(ctx context.Context, exchangeID int) (bool, error) {
	_, err := s.GetExchange(ctx, exchangeID)
	if errors.Is(err, repositories.ErrExchangeNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *memStore) CreateMessage(_ context.Context, exchangeID, senderID int, content string, images []string) (models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreates {
		return models.ChatMessage{}, errors.New("store down")
	}
	s.seq++
	msg := models.ChatMessage{
		ID:         s.seq,
		ExchangeID: exchangeID,
		SenderID:   senderID,
		Content:    content,
		Images:     append([]string(nil), images...),
		CreatedAt:  time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memStore) ListMessagesSince(_ context.Context, exchangeID, sinceID int) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatMessage
	for _, msg := range s.messages {
		if msg.ExchangeID == exchangeID && msg.ID > sinceID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *memStore) setFailCreates(fail bool) {
	s.mu.Lock()
	s.failCreates = fail
	s.mu.Unlock()
}

type gatewayFixture struct {
	store   *memStore
	hub     *ws.Hub
	baseURL string
}

func newGatewayFixture(t *testing.T, exchanges ...models.Exchange) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore(exchanges...)
	hub := ws.NewHub()
	presence := ws.NewPresence(hub, 2*time.Second, 500*time.Millisecond)
	service := chat.NewService(store, store)
	verifier := auth.NewJWTVerifier(testSecret)
	handler := ws.NewChatWebSocketHandler(hub, presence, service, verifier, 64, ws.Timeouts{
		WriteWait:  5 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
	})

	router := gin.New()
	router.GET("/ws/exchanges/:exchange_id", handler.Handle)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &gatewayFixture{
		store:   store,
		hub:     hub,
		baseURL: "ws" + strings.TrimPrefix(server.URL, "http"),
	}
}

func (f *gatewayFixture) dial(t *testing.T, exchangeID, userID int) *chatclient.Session {
	t.Helper()
	token, err := auth.IssueToken(testSecret, userID, time.Minute)
	require.NoError(t, err)
	session, err := chatclient.Dial(context.Background(), f.baseURL, exchangeID, userID, token)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func (f *gatewayFixture) waitForMembers(t *testing.T, exchangeID, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.hub.MembersOf(exchangeID)) == count
	}, 2*time.Second, 10*time.Millisecond, "expected %d room members", count)
}

func snapshotContents(tl *chatclient.Timeline) []string {
	var out []string
	for _, entry := range tl.Snapshot() {
		out = append(out, entry.Message.Content)
	}
	return out
}

func TestGatewayDeliversToEverySessionOfBothUsers(t *testing.T) {
	exchange := models.Exchange{ID: 1, RequesterID: 10, ResponderID: 20, Status: "accepted"}
	f := newGatewayFixture(t, exchange)

	senderPhone := f.dial(t, 1, 10)
	senderLaptop := f.dial(t, 1, 10)
	peer := f.dial(t, 1, 20)
	f.waitForMembers(t, 1, 3)

	peerGot := make(chan models.ChatMessage, 1)
	peer.OnMessage(func(msg models.ChatMessage) { peerGot <- msg })

	tempID, err := senderPhone.SendMessage("Hi", nil)
	require.NoError(t, err)
	require.NotEmpty(t, tempID)

	select {
	case msg := <-peerGot:
		assert.Equal(t, "Hi", msg.Content)
		assert.Equal(t, 10, msg.SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the message")
	}

	// The sender's other session converges on the same confirmed message.
	require.Eventually(t, func() bool {
		contents := snapshotContents(senderLaptop.Timeline())
		return len(contents) == 1 && contents[0] == "Hi"
	}, 2*time.Second, 10*time.Millisecond)

	// The sending session resolves its optimistic entry; "Hi" appears once.
	require.Eventually(t, func() bool {
		snapshot := senderPhone.Timeline().Snapshot()
		return len(snapshot) == 1 && !snapshot[0].Optimistic && snapshot[0].Message.Content == "Hi"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayReplaysHistoryExactlyOnce(t *testing.T) {
	exchange := models.Exchange{ID: 1, RequesterID: 10, ResponderID: 20, Status: "accepted"}
	f := newGatewayFixture(t, exchange)
	for _, content := range []string{"first", "second"} {
		_, err := f.store.CreateMessage(context.Background(), 1, 10, content, nil)
		require.NoError(t, err)
	}

	session := f.dial(t, 1, 20)
	require.Eventually(t, func() bool {
		return len(session.Timeline().Snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, snapshotContents(session.Timeline()))
	require.NoError(t, session.Close())

	// A later connection replays the full history, each message once.
	rejoined := f.dial(t, 1, 20)
	require.Eventually(t, func() bool {
		return len(rejoined.Timeline().Snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, snapshotContents(rejoined.Timeline()))
}

func TestGatewayRejectsNonParticipant(t *testing.T) {
	exchange := models.Exchange{ID: 1, RequesterID: 10, ResponderID: 20, Status: "accepted"}
	f := newGatewayFixture(t, exchange)

	token, err := auth.IssueToken(testSecret, 30, time.Minute)
	require.NoError(t, err)
	_, err = chatclient.Dial(context.Background(), f.baseURL, 1, 30, token)
	require.ErrorIs(t, err, chatclient.ErrUnauthorized)
	assert.Empty(t, f.hub.MembersOf(1), "rejected user must leave no membership entry")
}

func TestGatewayRejectsUnknownExchange(t *testing.T) {
	f := newGatewayFixture(t)

	token, err := auth.IssueToken(testSecret, 10, time.Minute)
	require.NoError(t, err)
	_, err = chatclient.Dial(context.Background(), f.baseURL, 99, 10, token)
	require.ErrorIs(t, err, chatclient.ErrUnauthorized)
}

func TestGatewayRejectsForgedToken(t *testing.T) {
	exchange := models.Exchange{ID: 1, RequesterID: 10, ResponderID: 20, Status: "accepted"}
	f := newGatewayFixture(t, exchange)

	forged, err := auth.IssueToken("some-other-secret", 10, time.Minute)
	require.NoError(t, err)
	_, err = chatclient.Dial(context.Background(), f.baseURL, 1, 10, forged)
	require.ErrorIs(t, err, chatclient.ErrUnauthorized)
}

func TestGatewayTypingReachesPeerNotTypist(t *testing.T) {
	exchange := models.Exchange{ID: 1, RequesterID: 10, ResponderID: 20, Status: "accepted"}
	f := newGatewayFixture(t, exchange)

	typist := f.dial(t, 1, 10)
	peer := f.dial(t, 1, 20)
	f.waitForMembers(t, 1, 2)

	peerSaw := make(chan models.TypingChange, 1)
	peer.OnTyping(func(change models.TypingChange) { peerSaw <- change })
	typistSaw := make(chan models.TypingChange, 1)
	typist.OnTyping(func(change models.TypingChange) { typistSaw <- change })

	typist.EmitTyping()

	select {
	case change := <-peerSaw:
		assert.Equal(t, 10, change.UserID)
		assert.True(t, change.IsTyping)
	case <-time.After(2 * time.Second):
		t.Fatal("peer never saw the typing change")
	}

	select {
	case <-typistSaw:
		t.Fatal("typing user must not receive its own typing event")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestGatewayStoreFailureAcksSenderOnly(t *testing.T) {
	exchange := models.Exchange{ID: 1, RequesterID: 10, ResponderID: 20, Status: "accepted"}
	f := newGatewayFixture(t, exchange)

	sender := f.dial(t, 1, 10)
	peer := f.dial(t, 1, 20)
	f.waitForMembers(t, 1, 2)

	peerGot := make(chan models.ChatMessage, 1)
	peer.OnMessage(func(msg models.ChatMessage) { peerGot <- msg })

	type failure struct{ tempID, code string }
	failures := make(chan failure, 1)
	sender.OnSendFailure(func(tempID, code, _ string) { failures <- failure{tempID, code} })

	f.store.setFailCreates(true)
	tempID, err := sender.SendMessage("doomed", nil)
	require.NoError(t, err)

	select {
	case got := <-failures:
		assert.Equal(t, tempID, got.tempID)
		assert.Equal(t, models.CodeStoreUnavailable, got.code)
	case <-time.After(2 * time.Second):
		t.Fatal("sender never saw the failure ack")
	}
	assert.Empty(t, sender.Timeline().Snapshot(), "failed send must retract its optimistic entry")

	select {
	case <-peerGot:
		t.Fatal("peer must not observe a failed send")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestGatewayRejectsEmptySend(t *testing.T) {
	exchange := models.Exchange{ID: 1, RequesterID: 10, ResponderID: 20, Status: "accepted"}
	f := newGatewayFixture(t, exchange)

	sender := f.dial(t, 1, 10)
	f.waitForMembers(t, 1, 1)

	codes := make(chan string, 1)
	sender.OnSendFailure(func(_, code, _ string) { codes <- code })

	_, err := sender.SendMessage("", nil)
	require.NoError(t, err)

	select {
	case code := <-codes:
		assert.Equal(t, models.CodeInvalidArgument, code)
	case <-time.After(2 * time.Second):
		t.Fatal("sender never saw the rejection")
	}
}

func TestGatewayDisconnectLeavesRoom(t *testing.T) {
	exchange := models.Exchange{ID: 1, RequesterID: 10, ResponderID: 20, Status: "accepted"}
	f := newGatewayFixture(t, exchange)

	session := f.dial(t, 1, 10)
	f.waitForMembers(t, 1, 1)

	require.NoError(t, session.Close())
	f.waitForMembers(t, 1, 0)
}
