package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect opens the database, retrying while it is unreachable, and runs migrations.
func Connect(ctx context.Context, dsn string, attempts int, logger *zap.Logger) (*sqlx.DB, error) {
	var database *sqlx.DB
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(func() error {
		conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err != nil {
			return err
		}
		database = conn
		return nil
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("database not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(10)
	database.SetConnMaxLifetime(30 * time.Minute)

	if err := runMigrations(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied", zap.Int("count", len(migrations)))

	return database, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chats (
            id BIGSERIAL PRIMARY KEY,
            participant_a BIGINT NOT NULL,
            participant_b BIGINT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_activity_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (participant_a <> participant_b)
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS chats_pair_uidx
            ON chats (LEAST(participant_a, participant_b), GREATEST(participant_a, participant_b));`,
	`CREATE INDEX IF NOT EXISTS chats_participant_b_idx ON chats (participant_b);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            chat_id BIGINT NOT NULL REFERENCES chats(id),
            sender_id BIGINT NOT NULL,
            receiver_id BIGINT NOT NULL,
            text TEXT,
            media_ref TEXT,
            thumb_ref TEXT,
            hidden BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (text IS NOT NULL OR media_ref IS NOT NULL OR thumb_ref IS NOT NULL)
        );`,
	`CREATE INDEX IF NOT EXISTS messages_chat_id_idx ON messages (chat_id, id);`,
	`CREATE TABLE IF NOT EXISTS chat_read_pointers (
            chat_id BIGINT NOT NULL REFERENCES chats(id),
            user_id BIGINT NOT NULL,
            last_read_message_id BIGINT NOT NULL DEFAULT 0,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(chat_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS chat_clear_markers (
            chat_id BIGINT NOT NULL REFERENCES chats(id),
            user_id BIGINT NOT NULL,
            boundary_message_id BIGINT NOT NULL DEFAULT 0,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(chat_id, user_id)
        );`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
