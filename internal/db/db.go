package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the Postgres pool and applies migrations.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")

	return db, nil
}

// users and rooms are owned by the REST side of the product; the realtime service only
// reads them, but creates them here so a fresh database is usable.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            avatar TEXT,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS rooms (
            id UUID PRIMARY KEY,
            name VARCHAR(50) NOT NULL,
            join_code TEXT NOT NULL UNIQUE,
            created_by UUID NOT NULL REFERENCES users(id),
            avatar TEXT,
            can_anyone_share BOOLEAN NOT NULL DEFAULT TRUE,
            is_locked BOOLEAN NOT NULL DEFAULT FALSE,
            is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
            is_archived BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS room_members (
            room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            joined_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY(room_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            user_id UUID REFERENCES users(id) ON DELETE CASCADE,
            kind TEXT NOT NULL CHECK (kind IN ('text', 'code', 'system')),
            body TEXT NOT NULL,
            code_language TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at DESC);`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
