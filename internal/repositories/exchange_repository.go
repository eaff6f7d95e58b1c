package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/models"
)

var ErrExchangeNotFound = errors.New("exchange not found")

// ExchangeRepository is the read-only boundary to the exchange collaborator.
type ExchangeRepository interface {
	GetExchange(ctx context.Context, exchangeID int) (models.Exchange, error)
	Exists(ctx context.Context, exchangeID int) (bool, error)
}

// ExchangeRepo is a sqlx implementation of ExchangeRepository.
type ExchangeRepo struct {
	db *sqlx.DB
}

// NewExchangeRepo constructs an ExchangeRepo.
func NewExchangeRepo(db *sqlx.DB) *ExchangeRepo {
	return &ExchangeRepo{db: db}
}

// GetExchange fetches an exchange with its two participant ids.
func (r *ExchangeRepo) GetExchange(ctx context.Context, exchangeID int) (models.Exchange, error) {
	var exchange models.Exchange
	err := r.db.GetContext(ctx, &exchange, `SELECT id, requester_id, responder_id, status, created_at FROM exchanges WHERE id=$1`, exchangeID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Exchange{}, ErrExchangeNotFound
	}
	return exchange, err
}

// Exists checks whether the exchange is known.
func (r *ExchangeRepo) Exists(ctx context.Context, exchangeID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM exchanges WHERE id=$1)`, exchangeID)
	return exists, err
}
