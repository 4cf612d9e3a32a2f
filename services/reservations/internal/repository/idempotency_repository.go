package repository

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// idempotencyTTL is how long a client's Idempotency-Key keeps replaying.
const idempotencyTTL = 24 * time.Hour

// IdempotencyRepository reads the keys written by
// ReservationRepository.CreateOnce, so a retried create returns the first
// result without doing the work again.
type IdempotencyRepository interface {
	Lookup(ctx context.Context, scope, key string) (reservationID string, err error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type idempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) IdempotencyRepository {
	return &idempotencyRepository{pool: pool}
}

func hashKey(scope, key string) string {
	// Hash the idempotency key for privacy and consistent length
	hasher := sha256.New()
	hasher.Write([]byte(scope + "|" + key))
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

func (r *idempotencyRepository) Lookup(ctx context.Context, scope, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id string
	err := r.pool.QueryRow(ctx,
		`SELECT reservation_id::text FROM reservation_idempotency WHERE key_hash = $1 AND expires_at > now()`,
		hashKey(scope, key),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (r *idempotencyRepository) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, `DELETE FROM reservation_idempotency WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
