package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
)

var (
	// ErrUnauthorized is returned when the gateway rejects the session's
	// token or the user is not an exchange participant. Never retried.
	ErrUnauthorized = errors.New("chat session unauthorized")
	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("chat session closed")
	// ErrSendBufferFull is returned when an emit cannot be queued without
	// blocking the caller.
	ErrSendBufferFull = errors.New("send buffer full")
)

const (
	reconnectBase = 200 * time.Millisecond
	reconnectCap  = 5 * time.Second
	outboundSize  = 64
)

// Session is one user's live connection to an exchange chat room. It owns
// the transport lifecycle: connect-and-join, event dispatch, reconnect with
// backoff and fresh history replay after a transport drop.
type Session struct {
	baseURL    string
	exchangeID int
	token      string
	timeline   *Timeline
	dialer     *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	conn *websocket.Conn

	outbound chan models.ClientEvent

	handlersMu    sync.RWMutex
	onMessage     []func(models.ChatMessage)
	onTyping      []func(models.TypingChange)
	onSendFailure []func(tempID, code, reason string)
}

// Dial connects the user to the exchange room and starts the event
// dispatcher. Authorization failures surface immediately and are not
// retried; only transport-level drops trigger reconnection.
func Dial(ctx context.Context, baseURL string, exchangeID, userID int, token string) (*Session, error) {
	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		baseURL:    baseURL,
		exchangeID: exchangeID,
		token:      token,
		timeline:   NewTimeline(userID),
		dialer:     websocket.DefaultDialer,
		ctx:        sessionCtx,
		cancel:     cancel,
		outbound:   make(chan models.ClientEvent, outboundSize),
	}

	conn, err := s.connect(sessionCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	s.setConn(conn)

	go s.readLoop(conn)
	go s.writeLoop()
	return s, nil
}

// Timeline exposes the session's reconciled message timeline.
func (s *Session) Timeline() *Timeline { return s.timeline }

// OnMessage registers a handler for confirmed live messages.
func (s *Session) OnMessage(handler func(models.ChatMessage)) {
	s.handlersMu.Lock()
	s.onMessage = append(s.onMessage, handler)
	s.handlersMu.Unlock()
}

// OnTyping registers a handler for peer typing changes.
func (s *Session) OnTyping(handler func(models.TypingChange)) {
	s.handlersMu.Lock()
	s.onTyping = append(s.onTyping, handler)
	s.handlersMu.Unlock()
}

// OnSendFailure registers a handler invoked when a send is rejected and its
// optimistic entry retracted.
func (s *Session) OnSendFailure(handler func(tempID, code, reason string)) {
	s.handlersMu.Lock()
	s.onSendFailure = append(s.onSendFailure, handler)
	s.handlersMu.Unlock()
}

// SendMessage echoes the message locally and requests the send without
// blocking; confirmation or failure arrives through the timeline. The
// optimistic entry's temporary id is returned.
func (s *Session) SendMessage(content string, images []string) (string, error) {
	select {
	case <-s.ctx.Done():
		return "", ErrSessionClosed
	default:
	}

	entry := s.timeline.AddOptimistic(content, images)
	event := models.ClientEvent{
		Type:    models.EventSendMessage,
		Content: content,
		Images:  images,
		TempID:  entry.TempID,
	}
	select {
	case s.outbound <- event:
		return entry.TempID, nil
	default:
		s.timeline.Fail(entry.TempID)
		return "", ErrSendBufferFull
	}
}

// EmitTyping signals that the local user is typing. Best effort: a full
// buffer drops the signal.
func (s *Session) EmitTyping() {
	select {
	case s.outbound <- models.ClientEvent{Type: models.EventTyping}:
	default:
	}
}

// Close tears the session down. The server observes the disconnect as an
// implicit leave.
func (s *Session) Close() error {
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/ws/exchanges/%d?token=%s&since=%d",
		s.baseURL, s.exchangeID, s.token, s.timeline.LastConfirmedID())
	conn, resp, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
			}
		}
		return nil, fmt.Errorf("dial chat gateway: %w", err)
	}
	return conn, nil
}

func (s *Session) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Session) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		var event models.ChatEvent
		if err := conn.ReadJSON(&event); err != nil {
			conn.Close()
			if s.ctx.Err() != nil {
				return
			}
			s.reconnect()
			return
		}
		s.dispatch(event)
	}
}

// reconnect re-dials the same room with doubling backoff. The rejoin is
// idempotent server-side and replays history from the last confirmed
// message, so the gap from the dropped connection is recovered.
func (s *Session) reconnect() {
	backoff := reconnectBase
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := s.connect(s.ctx)
		if err == nil {
			s.setConn(conn)
			go s.readLoop(conn)
			return
		}
		if errors.Is(err, ErrUnauthorized) {
			log.Printf("chat session reconnect rejected: %v", err)
			s.cancel()
			return
		}

		if backoff < reconnectCap {
			backoff *= 2
			if backoff > reconnectCap {
				backoff = reconnectCap
			}
		}
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.outbound:
			conn := s.currentConn()
			if conn == nil {
				continue
			}
			if err := conn.WriteJSON(event); err != nil {
				// The read loop on the same connection handles reconnect.
				if event.Type == models.EventSendMessage {
					s.failSend(event.TempID, models.CodeStoreUnavailable, "connection lost")
				}
			}
		}
	}
}

func (s *Session) dispatch(event models.ChatEvent) {
	switch event.Type {
	case models.EventHistory:
		for _, msg := range event.Messages {
			s.timeline.ApplyConfirmed(msg)
		}
	case models.EventMessageReceived:
		if event.Message == nil {
			return
		}
		s.timeline.ApplyConfirmed(*event.Message)
		s.handlersMu.RLock()
		handlers := s.onMessage
		s.handlersMu.RUnlock()
		for _, handler := range handlers {
			handler(*event.Message)
		}
	case models.EventTypingChanged:
		if event.Typing == nil {
			return
		}
		s.handlersMu.RLock()
		handlers := s.onTyping
		s.handlersMu.RUnlock()
		for _, handler := range handlers {
			handler(*event.Typing)
		}
	case models.EventError:
		if event.Error == nil {
			return
		}
		if event.Error.TempID != "" {
			s.failSend(event.Error.TempID, event.Error.Code, event.Error.Reason)
		} else {
			log.Printf("chat session error event: code=%s reason=%s", event.Error.Code, event.Error.Reason)
		}
	}
}

func (s *Session) failSend(tempID, code, reason string) {
	if !s.timeline.Fail(tempID) {
		return
	}
	s.handlersMu.RLock()
	handlers := s.onSendFailure
	s.handlersMu.RUnlock()
	for _, handler := range handlers {
		handler(tempID, code, reason)
	}
}
