package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	// The exchanges table is owned by the exchange service; it is created
	// here only so the chat service can run against an empty database.
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS exchanges (
            id SERIAL PRIMARY KEY,
            requester_id INT NOT NULL,
            responder_id INT NOT NULL,
            status TEXT NOT NULL DEFAULT 'PENDING',
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS exchange_messages (
            id SERIAL PRIMARY KEY,
            exchange_id INT NOT NULL REFERENCES exchanges(id) ON DELETE CASCADE,
            sender_id INT NOT NULL,
            content TEXT NOT NULL DEFAULT '',
            images TEXT[] NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_exchange_messages_exchange_created
            ON exchange_messages (exchange_id, created_at, id);`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
