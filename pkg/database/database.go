package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/library-reservations/pkg/config"
)

func Connect(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbCfg.URL)
	if err != nil {
		return nil, err
	}

	cfg.MinConns = int32(dbCfg.MinConns)
	cfg.MaxConns = int32(dbCfg.MaxConns)
	cfg.MaxConnLifetime = dbCfg.MaxLifetime
	cfg.HealthCheckPeriod = 30 * time.Second

	return pgxpool.NewWithConfig(ctx, cfg)
}

// Migrate creates the tables the reservations service needs. Safe to call on
// every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS reservations (
    id               UUID PRIMARY KEY,
    series_id        UUID,
    book_id          TEXT NOT NULL,
    user_id          TEXT NOT NULL,
    user_email       TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'pending'
                     CHECK (status IN ('pending', 'confirmed', 'cancelled', 'completed', 'overdue')),
    reservation_date TIMESTAMPTZ NOT NULL DEFAULT now(),
    pickup_date      TIMESTAMPTZ NOT NULL,
    return_date      TIMESTAMPTZ NOT NULL,
    notes            TEXT NOT NULL DEFAULT '',
    waitlist_position INT,
    notifications    JSONB NOT NULL DEFAULT '[]'::jsonb,
    recurrence       JSONB,
    history          JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    CHECK (return_date > pickup_date)
);

CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reservations_status_return ON reservations(status, return_date);

CREATE TABLE IF NOT EXISTS waitlist_entries (
    id         UUID PRIMARY KEY,
    book_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    user_email TEXT NOT NULL DEFAULT '',
    joined_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (book_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_waitlist_book ON waitlist_entries(book_id, joined_at, id);

CREATE TABLE IF NOT EXISTS reservation_idempotency (
    key_hash       TEXT PRIMARY KEY,
    reservation_id UUID NOT NULL,
    expires_at     TIMESTAMPTZ NOT NULL
);
`
