package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
)

// MessageRepository defines persistence for exchange chat messages.
// Messages are append-only; there is no update or delete path.
type MessageRepository interface {
	CreateMessage(ctx context.Context, exchangeID int, senderID int, content string, images []string) (models.ChatMessage, error)
	ListMessagesSince(ctx context.Context, exchangeID int, sinceID int) ([]models.ChatMessage, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and returns it with the server-assigned id
// and timestamp, which are authoritative for ordering.
func (r *MessageRepo) CreateMessage(ctx context.Context, exchangeID int, senderID int, content string, images []string) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.QueryRowxContext(ctx, `INSERT INTO exchange_messages (exchange_id, sender_id, content, images) VALUES ($1, $2, $3, $4)
        RETURNING id, exchange_id, sender_id, content, images, created_at`, exchangeID, senderID, content, pq.Array(images)).
		Scan(&msg.ID, &msg.ExchangeID, &msg.SenderID, &msg.Content, &msg.Images, &msg.CreatedAt)
	return msg, err
}

// ListMessagesSince returns messages after the given id in ascending
// (created_at, id) order. A zero sinceID returns the full history.
func (r *MessageRepo) ListMessagesSince(ctx context.Context, exchangeID int, sinceID int) ([]models.ChatMessage, error) {
	query := `SELECT id, exchange_id, sender_id, content, images, created_at
        FROM exchange_messages
        WHERE exchange_id=$1 AND id > $2
        ORDER BY created_at ASC, id ASC`
	var msgs []models.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, query, exchangeID, sinceID)
	return msgs, err
}
