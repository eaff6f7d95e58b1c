package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/chat"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/telemetry"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/ws"
)

// ChatHandler exposes the REST surface of exchange chat: history listing and
// a non-websocket send path that shares the store and fan-out with the
// gateway.
type ChatHandler struct {
	service *chat.Service
	hub     *ws.Hub
	audit   *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(service *chat.Service, hub *ws.Hub, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{service: service, hub: hub, audit: audit}
}

// GetMessages returns the exchange history for a participant, ascending by
// creation time. An optional since cursor limits the replay.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	exchangeID, err := strconv.Atoi(c.Param("exchange_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exchange id"})
		return
	}

	userID := c.GetInt("userID")
	if _, err := h.service.Authorize(c.Request.Context(), exchangeID, userID); err != nil {
		respondServiceError(c, err)
		return
	}

	sinceID, _ := strconv.Atoi(c.Query("since"))
	msgs, err := h.service.ListSince(c.Request.Context(), exchangeID, sinceID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message and broadcasts it to the exchange room.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	exchangeID, err := strconv.Atoi(c.Param("exchange_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exchange id"})
		return
	}

	var req struct {
		Content string   `json:"content"`
		Images  []string `json:"images"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.service.Append(c.Request.Context(), exchangeID, userID, req.Content, req.Images)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.hub.BroadcastMessage(exchangeID, msg)
	h.audit.Emit(c.Request.Context(), "info",
		fmt.Sprintf("message %d posted to exchange %d", msg.ID, exchangeID),
		requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusCreated, msg)
}

func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrExchangeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "exchange not found"})
	case errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not an exchange participant"})
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message requires content or images"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message store unavailable"})
	}
}
