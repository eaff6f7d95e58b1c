package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/auth"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/repositories"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/telemetry"
)

type ExchangeRepositoryMock struct {
	mock.Mock
}

func (m *ExchangeRepositoryMock) GetExchange(ctx context.Context, exchangeID int) (models.Exchange, error) {
	args := m.Called(ctx, exchangeID)
	var exchange models.Exchange
	if val := args.Get(0); val != nil {
		exchange = val.(models.Exchange)
	}
	return exchange, args.Error(1)
}

func (m *ExchangeRepositoryMock) Exists(ctx context.Context, exchangeID int) (bool, error) {
	args := m.Called(ctx, exchangeID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, exchangeID int, senderID int, content string, images []string) (models.ChatMessage, error) {
	args := m.Called(ctx, exchangeID, senderID, content, images)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessagesSince(ctx context.Context, exchangeID int, sinceID int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, exchangeID, sinceID)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) UserID(token string) (int, error) {
	args := m.Called(token)
	return args.Int(0), args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ repositories.ExchangeRepository = (*ExchangeRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ auth.Verifier = (*VerifierMock)(nil)
var _ telemetry.Publisher = (*PublisherMock)(nil)
