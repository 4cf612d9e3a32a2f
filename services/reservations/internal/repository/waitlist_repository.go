package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
)

type WaitlistRepository interface {
	// Join adds the member to the book's queue. Joining twice keeps the
	// original place; created reports whether a new entry was written.
	Join(ctx context.Context, bookID, userID, userEmail string) (entry *domain.WaitlistEntry, created bool, err error)
	Position(ctx context.Context, bookID, userID string) (*domain.WaitlistEntry, error)
	Leave(ctx context.Context, bookID, userID string) (bool, error)
}

type waitlistRepository struct {
	pool *pgxpool.Pool
}

func NewWaitlistRepository(pool *pgxpool.Pool) WaitlistRepository {
	return &waitlistRepository{pool: pool}
}

func (r *waitlistRepository) Join(ctx context.Context, bookID, userID, userEmail string) (*domain.WaitlistEntry, bool, error) {
	const q = `INSERT INTO waitlist_entries (id, book_id, user_id, user_email)
	VALUES ($1,$2,$3,$4)
	ON CONFLICT (book_id, user_id) DO NOTHING`

	insertCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	tag, err := r.pool.Exec(insertCtx, q, uuid.New(), bookID, userID, userEmail)
	cancel()
	if err != nil {
		return nil, false, err
	}

	entry, err := r.Position(ctx, bookID, userID)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		// removed concurrently between insert and lookup
		return nil, false, errors.New("waitlist entry vanished after join")
	}
	return entry, tag.RowsAffected() == 1, nil
}

// Position ranks entries by join time, ties broken by ID.
func (r *waitlistRepository) Position(ctx context.Context, bookID, userID string) (*domain.WaitlistEntry, error) {
	const q = `WITH me AS (
		SELECT id, joined_at FROM waitlist_entries WHERE book_id = $1 AND user_id = $2
	)
	SELECT me.id::text, me.joined_at,
		(SELECT count(*) FROM waitlist_entries w
		 WHERE w.book_id = $1 AND (w.joined_at, w.id) <= (me.joined_at, me.id))
	FROM me`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	e := domain.WaitlistEntry{BookID: bookID, UserID: userID}
	err := r.pool.QueryRow(ctx, q, bookID, userID).Scan(&e.ID, &e.JoinedAt, &e.Position)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *waitlistRepository) Leave(ctx context.Context, bookID, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM waitlist_entries WHERE book_id = $1 AND user_id = $2`, bookID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
