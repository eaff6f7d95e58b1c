package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/repositories"
)

var (
	// ErrForbidden marks a join or send attempt by a non-participant.
	ErrForbidden = errors.New("user is not an exchange participant")
	// ErrExchangeNotFound marks an unknown exchange id.
	ErrExchangeNotFound = errors.New("exchange not found")
	// ErrEmptyMessage marks a message with neither content nor images.
	ErrEmptyMessage = errors.New("message requires content or images")
	// ErrStoreUnavailable wraps transient persistence failures; callers may
	// retry the send, the connection stays up.
	ErrStoreUnavailable = errors.New("message store unavailable")
)

// Service implements the message store operations on top of the message and
// exchange repositories. Every append is authorized against the exchange's
// two participants before it is persisted.
type Service struct {
	messages  repositories.MessageRepository
	exchanges repositories.ExchangeRepository
}

// NewService builds a Service.
func NewService(messages repositories.MessageRepository, exchanges repositories.ExchangeRepository) *Service {
	return &Service{messages: messages, exchanges: exchanges}
}

// Authorize resolves the exchange and verifies the user is one of its two
// participants.
func (s *Service) Authorize(ctx context.Context, exchangeID, userID int) (models.Exchange, error) {
	exchange, err := s.exchanges.GetExchange(ctx, exchangeID)
	if err != nil {
		if errors.Is(err, repositories.ErrExchangeNotFound) {
			return models.Exchange{}, ErrExchangeNotFound
		}
		return models.Exchange{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !exchange.HasParticipant(userID) {
		return models.Exchange{}, ErrForbidden
	}
	return exchange, nil
}

// Append validates and persists a message, returning it with the
// server-assigned id and timestamp.
func (s *Service) Append(ctx context.Context, exchangeID, senderID int, content string, images []string) (models.ChatMessage, error) {
	if content == "" && len(images) == 0 {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if _, err := s.Authorize(ctx, exchangeID, senderID); err != nil {
		return models.ChatMessage{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, exchangeID, senderID, content, images)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msg, nil
}

// AppendFor is Append against an already-resolved exchange. The gateway
// resolves the exchange once at handshake and reuses it for every message on
// the connection, so sends do not re-fetch the participant pair.
func (s *Service) AppendFor(ctx context.Context, exchange models.Exchange, senderID int, content string, images []string) (models.ChatMessage, error) {
	if content == "" && len(images) == 0 {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if !exchange.HasParticipant(senderID) {
		return models.ChatMessage{}, ErrForbidden
	}

	msg, err := s.messages.CreateMessage(ctx, exchange.ID, senderID, content, images)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msg, nil
}

// ListSince returns the exchange history after the given message id in
// ascending creation order. A zero sinceID replays everything.
func (s *Service) ListSince(ctx context.Context, exchangeID, sinceID int) ([]models.ChatMessage, error) {
	msgs, err := s.messages.ListMessagesSince(ctx, exchangeID, sinceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msgs, nil
}

// ErrorCode maps a service error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return models.CodeForbidden
	case errors.Is(err, ErrExchangeNotFound):
		return models.CodeNotFound
	case errors.Is(err, ErrEmptyMessage):
		return models.CodeInvalidArgument
	default:
		return models.CodeStoreUnavailable
	}
}
