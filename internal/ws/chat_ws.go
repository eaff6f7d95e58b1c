package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/auth"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/chat"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/observability"
)

// ChatWebSocketHandler is the exchange chat gateway. A connection moves
// through token validation, participant authorization, and room join before
// it may exchange events; failures at any of those stages close the attempt.
type ChatWebSocketHandler struct {
	hub        *Hub
	presence   *Presence
	service    *chat.Service
	verifier   auth.Verifier
	sendBuffer int
	timeouts   Timeouts
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, presence *Presence, service *chat.Service, verifier auth.Verifier, sendBuffer int, timeouts Timeouts) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		hub:        hub,
		presence:   presence,
		service:    service,
		verifier:   verifier,
		sendBuffer: sendBuffer,
		timeouts:   timeouts,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle authorizes the connecting user, upgrades the connection, joins the
// room, replays history, and then serves the event loop.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	exchangeID, err := strconv.Atoi(c.Param("exchange_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exchange id"})
		return
	}

	ctx, span := otel.Tracer("exchange-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	exchange, err := h.service.Authorize(ctx, exchangeID, userID)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrExchangeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "exchange not found"})
		case errors.Is(err, chat.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not an exchange participant"})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exchange lookup failed"})
		}
		return
	}

	sinceID, _ := strconv.Atoi(c.Query("since"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		SessionID:   uuid.NewString(),
		UserID:      userID,
		ExchangeID:  exchangeID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info, h.sendBuffer, h.timeouts)

	// Join before the history snapshot: live events land in the client's
	// send buffer while the snapshot is read, and the write pump only starts
	// after the history frame is on the wire, so nothing is lost and history
	// precedes live delivery. Messages present in both are deduplicated by
	// id on the client.
	h.hub.Join(exchangeID, client)

	history, err := h.service.ListSince(ctx, exchangeID, sinceID)
	if err != nil {
		h.hub.Leave(exchangeID, client.SessionID())
		client.WriteDirect(models.ChatEvent{Type: models.EventError, Error: &models.EventErr{
			Code:   models.CodeStoreUnavailable,
			Reason: "history replay failed",
		}})
		conn.Close()
		return
	}
	if err := client.WriteDirect(models.ChatEvent{Type: models.EventHistory, Messages: history}); err != nil {
		h.hub.Leave(exchangeID, client.SessionID())
		conn.Close()
		return
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(ctx, info, "ws_connect", "")

	go client.WritePump()
	go h.serve(ctx, client, exchange)
}

func (h *ChatWebSocketHandler) serve(ctx context.Context, client *Client, exchange models.Exchange) {
	// The request context is canceled once the handshake handler returns;
	// the connection outlives it. Sends already accepted must also complete
	// even if the sender drops before the append returns.
	ctx = context.WithoutCancel(ctx)

	info := client.Info()
	var closeReason string
	defer func() {
		h.hub.Leave(exchange.ID, client.SessionID())
		client.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycle(ctx, info, "ws_disconnect", closeReason)
	}()

	err := client.ReadLoop(func(event models.ClientEvent) {
		switch event.Type {
		case models.EventSendMessage:
			h.handleSend(ctx, client, exchange, event)
		case models.EventTyping:
			h.presence.SetTyping(exchange.ID, client.UserID())
			observability.IncWSEvent("typing")
		default:
			client.SendEvent(models.ChatEvent{Type: models.EventError, Error: &models.EventErr{
				Code:   models.CodeInvalidArgument,
				Reason: "unknown event type",
			}})
		}
	})
	if err != nil {
		closeReason = err.Error()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			observability.IncWSEvent("ws_error")
			h.publishLifecycle(ctx, info, "ws_error", closeReason)
		}
	}
}

func (h *ChatWebSocketHandler) handleSend(ctx context.Context, client *Client, exchange models.Exchange, event models.ClientEvent) {
	msg, err := h.service.AppendFor(ctx, exchange, client.UserID(), event.Content, event.Images)
	if err != nil {
		// Error acknowledgments go to the sending session only; the rest of
		// the room never observes a failed send.
		client.SendEvent(models.ChatEvent{Type: models.EventError, Error: &models.EventErr{
			Code:   chat.ErrorCode(err),
			Reason: err.Error(),
			TempID: event.TempID,
		}})
		observability.IncWSEvent("message_rejected")
		return
	}

	msg.TempID = event.TempID
	h.hub.BroadcastMessage(exchange.ID, msg)
	observability.IncWSEvent("message_sent")
	_ = observability.PublishEvent(ctx, observability.RoutingKeyChatEvents, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_sent",
		Payload: map[string]interface{}{
			"exchange_id": exchange.ID,
			"message_id":  msg.ID,
			"sender_id":   msg.SenderID,
			"images":      len(msg.Images),
		},
	}, observability.BuildHeaders(client.Info().RequestID, client.Info().TraceID))
}

func (h *ChatWebSocketHandler) authenticate(c *gin.Context) (int, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}
	parts := strings.Split(token, " ")
	if len(parts) != 2 {
		return 0, auth.ErrInvalidToken
	}
	return h.verifier.UserID(parts[1])
}

func (h *ChatWebSocketHandler) publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, observability.RoutingKeyWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: observability.WSEventPayload{
			ExchangeID: info.ExchangeID,
			Event:      event,
			ConnID:     info.SessionID,
			UserID:     info.UserID,
			DeviceID:   info.DeviceID,
			IP:         info.IP,
			DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
			Reason:     reason,
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
