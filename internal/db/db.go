package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("database migrations applied")
	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chat_rooms (
            id BIGSERIAL PRIMARY KEY,
            booking_id BIGINT NOT NULL UNIQUE,
            customer_id BIGINT NOT NULL,
            partner_user_id BIGINT NOT NULL,
            customer_last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            partner_last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_message_preview TEXT NOT NULL DEFAULT '',
            last_message_at TIMESTAMPTZ,
            unread_customer INT NOT NULL DEFAULT 0,
            unread_partner INT NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
            id BIGSERIAL PRIMARY KEY,
            room_id BIGINT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
            sender_id BIGINT,
            sender_role TEXT NOT NULL,
            content TEXT NOT NULL,
            msg_type TEXT NOT NULL DEFAULT 'text',
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            read_at TIMESTAMPTZ,
            attachments JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_room_created
            ON chat_messages (room_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_room_unread
            ON chat_messages (room_id) WHERE is_read = FALSE;`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
