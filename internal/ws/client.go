package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/observability"
)

// Timeouts holds the websocket keepalive settings for one connection.
type Timeouts struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

// Client is one registered session inside a room. Events are delivered
// through a buffered send channel so a slow connection never blocks fan-out
// to the rest of the room.
type Client struct {
	info     ConnInfo
	conn     *websocket.Conn
	send     chan []byte
	timeouts Timeouts
	done     chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo, sendBuffer int, timeouts Timeouts) *Client {
	return &Client{
		info:     info,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		timeouts: timeouts,
		done:     make(chan struct{}),
	}
}

// SessionID returns the server-assigned session identifier.
func (c *Client) SessionID() string { return c.info.SessionID }

// UserID returns the authenticated user behind the connection.
func (c *Client) UserID() int { return c.info.UserID }

// Info returns the connection metadata.
func (c *Client) Info() ConnInfo { return c.info }

// Outbound exposes the delivery queue for inspection.
func (c *Client) Outbound() <-chan []byte { return c.send }

// Enqueue queues a marshaled event for delivery. A full buffer drops the
// event for this recipient only.
func (c *Client) Enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		observability.IncFanoutDropped()
		log.Printf("ws fanout dropped session=%s exchange=%d", c.info.SessionID, c.info.ExchangeID)
	}
}

// SendEvent marshals and queues a single event.
func (c *Client) SendEvent(event models.ChatEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws marshal error: %v", err)
		return
	}
	c.Enqueue(payload)
}

// WriteDirect writes an event on the connection synchronously. It is used
// for the history frame before the write pump starts, so the snapshot is on
// the wire ahead of any queued live event.
func (c *Client) WriteDirect(event models.ChatEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// WritePump drains the send channel onto the connection and keeps the
// connection alive with pings. It exits when the channel is closed or a
// write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.timeouts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadLoop reads inbound events and hands them to the handler. It returns
// the close reason when the connection drops; the caller owns cleanup.
func (c *Client) ReadLoop(handler func(models.ClientEvent)) error {
	c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
		return nil
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		var event models.ClientEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Printf("ws decode error session=%s: %v", c.info.SessionID, err)
			continue
		}
		handler(event)
	}
}

// Close stops the write pump and closes the connection.
func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.conn.Close()
}
