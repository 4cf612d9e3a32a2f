package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
)

type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) (*domain.Reservation, error)
	CreateOnce(ctx context.Context, r *domain.Reservation, scope, key string) (*domain.Reservation, bool, error)
	CreateSeries(ctx context.Context, rs []domain.Reservation) ([]domain.Reservation, error)
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Reservation, error)
	ListOverdue(ctx context.Context, userID string, now time.Time) ([]domain.Reservation, error)
	Count(ctx context.Context, userID string) (int, error)
	CountWaitlisted(ctx context.Context, userID string) (int, error)
	CountOverdue(ctx context.Context, userID string, now time.Time) (int, error)
	CountActiveOverlapping(ctx context.Context, bookID string, pickup, ret time.Time) (int, error)
	Update(ctx context.Context, r *domain.Reservation, entry domain.HistoryEntry) (*domain.Reservation, error)
	MarkOverdue(ctx context.Context, now time.Time, note string) ([]domain.Reservation, error)
}

type reservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) ReservationRepository {
	return &reservationRepository{pool: pool}
}

const reservationCols = `id::text, book_id, user_id, user_email, status,
reservation_date, pickup_date, return_date, notes, waitlist_position,
notifications, recurrence, history, created_at, updated_at`

// activeStatuses are the states that still hold a copy of the book.
const activeStatuses = `('pending','confirmed','overdue')`

const insertReservation = `INSERT INTO reservations (
	id, series_id, book_id, user_id, user_email, status,
	reservation_date, pickup_date, return_date, notes, waitlist_position,
	notifications, recurrence, history
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING ` + reservationCols

type scanner interface {
	Scan(dest ...any) error
}

func scanReservation(row scanner) (*domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(
		&r.ID, &r.BookID, &r.UserID, &r.UserEmail, &r.Status,
		&r.ReservationDate, &r.PickupDate, &r.ReturnDate, &r.Notes, &r.WaitlistPosition,
		&r.Notifications, &r.Recurrence, &r.History, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collect(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()

	out := []domain.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// insertArgs flattens r into the insertReservation parameters. JSON columns
// travel as raw bytes.
func insertArgs(r *domain.Reservation, seriesID *uuid.UUID) ([]any, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid reservation id %q: %w", r.ID, err)
	}
	notifications, err := json.Marshal(r.Notifications)
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(r.History)
	if err != nil {
		return nil, err
	}
	var recurrence []byte
	if r.Recurrence != nil {
		if recurrence, err = json.Marshal(r.Recurrence); err != nil {
			return nil, err
		}
	}
	return []any{
		id, seriesID, r.BookID, r.UserID, r.UserEmail, string(r.Status),
		r.ReservationDate, r.PickupDate, r.ReturnDate, r.Notes, r.WaitlistPosition,
		notifications, recurrence, history,
	}, nil
}

func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	args, err := insertArgs(res, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanReservation(r.pool.QueryRow(ctx, insertReservation, args...))
}

// CreateOnce inserts res under the caller's Idempotency-Key. The key row and
// the reservation commit together. When the key already produced a
// reservation, that one is returned with created=false. A concurrent request
// holding the same key blocks on the key's primary key until it finishes.
func (r *reservationRepository) CreateOnce(ctx context.Context, res *domain.Reservation, scope, key string) (*domain.Reservation, bool, error) {
	args, err := insertArgs(res, nil)
	if err != nil {
		return nil, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	hash := hashKey(scope, key)
	if _, err := tx.Exec(ctx,
		`DELETE FROM reservation_idempotency WHERE key_hash = $1 AND expires_at <= now()`, hash,
	); err != nil {
		return nil, false, fmt.Errorf("failed to expire idempotency key: %w", err)
	}

	var claimed string
	err = tx.QueryRow(ctx, `
		INSERT INTO reservation_idempotency (key_hash, reservation_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key_hash) DO NOTHING
		RETURNING reservation_id::text`,
		hash, args[0], time.Now().Add(idempotencyTTL),
	).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.Rollback(ctx); err != nil {
			return nil, false, err
		}
		var existingID string
		if err := r.pool.QueryRow(ctx,
			`SELECT reservation_id::text FROM reservation_idempotency WHERE key_hash = $1`, hash,
		).Scan(&existingID); err != nil {
			return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
		}
		existing, err := r.GetByID(ctx, existingID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	created, err := scanReservation(tx.QueryRow(ctx, insertReservation, args...))
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// CreateSeries inserts every occurrence of a recurring reservation in one
// transaction under a shared series ID.
func (r *reservationRepository) CreateSeries(ctx context.Context, rs []domain.Reservation) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	seriesID := uuid.New()
	out := make([]domain.Reservation, 0, len(rs))
	for i := range rs {
		args, err := insertArgs(&rs[i], &seriesID)
		if err != nil {
			return nil, err
		}
		created, err := scanReservation(tx.QueryRow(ctx, insertReservation, args...))
		if err != nil {
			return nil, fmt.Errorf("occurrence %d: %w", i+1, err)
		}
		out = append(out, *created)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}

	const q = `SELECT ` + reservationCols + ` FROM reservations WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := scanReservation(r.pool.QueryRow(ctx, q, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *reservationRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Reservation, error) {
	limit, offset := filter.Limit, filter.Offset
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	const q = `SELECT ` + reservationCols + ` FROM reservations
	WHERE ($1 = '' OR user_id = $1)
	  AND ($2::text IS NULL OR status = $2)
	ORDER BY pickup_date ASC, created_at DESC
	LIMIT $3 OFFSET $4`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, filter.UserID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// overdueWhere matches reservations already flagged overdue and active ones
// whose return date has passed but the sweeper has not reached yet.
const overdueWhere = `($1 = '' OR user_id = $1)
	  AND (status = 'overdue' OR (status IN ('pending','confirmed') AND return_date < $2))`

func (r *reservationRepository) ListOverdue(ctx context.Context, userID string, now time.Time) ([]domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations WHERE ` + overdueWhere + `
	ORDER BY return_date ASC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID, now)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *reservationRepository) count(ctx context.Context, q string, args ...any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	err := r.pool.QueryRow(ctx, q, args...).Scan(&n)
	return n, err
}

func (r *reservationRepository) Count(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM reservations WHERE ($1 = '' OR user_id = $1)`, userID)
}

func (r *reservationRepository) CountWaitlisted(ctx context.Context, userID string) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM reservations
	WHERE ($1 = '' OR user_id = $1) AND waitlist_position IS NOT NULL AND status IN `+activeStatuses, userID)
}

func (r *reservationRepository) CountOverdue(ctx context.Context, userID string, now time.Time) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM reservations WHERE `+overdueWhere, userID, now)
}

// CountActiveOverlapping counts reservations of bookID that hold the book at
// any point in [pickup, ret).
func (r *reservationRepository) CountActiveOverlapping(ctx context.Context, bookID string, pickup, ret time.Time) (int, error) {
	return r.count(ctx, `SELECT count(*) FROM reservations
	WHERE book_id = $1 AND status IN `+activeStatuses+`
	  AND pickup_date < $3 AND return_date > $2`, bookID, pickup, ret)
}

// Update writes the mutable fields of res and appends entry to its history.
func (r *reservationRepository) Update(ctx context.Context, res *domain.Reservation, entry domain.HistoryEntry) (*domain.Reservation, error) {
	uid, err := uuid.Parse(res.ID)
	if err != nil {
		return nil, nil
	}
	notifications, err := json.Marshal(res.Notifications)
	if err != nil {
		return nil, err
	}
	historyEntry, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	const q = `UPDATE reservations SET
		status = $2,
		pickup_date = $3,
		return_date = $4,
		notes = $5,
		waitlist_position = $6,
		notifications = $7,
		history = history || jsonb_build_array($8::jsonb),
		updated_at = now()
	WHERE id = $1
	RETURNING ` + reservationCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	updated, err := scanReservation(r.pool.QueryRow(ctx, q, uid,
		string(res.Status), res.PickupDate, res.ReturnDate, res.Notes, res.WaitlistPosition,
		notifications, historyEntry,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return updated, err
}

// MarkOverdue flags every active reservation past its return date and
// returns the rows it changed.
func (r *reservationRepository) MarkOverdue(ctx context.Context, now time.Time, note string) ([]domain.Reservation, error) {
	entry, err := json.Marshal(domain.HistoryEntry{Timestamp: now, Status: domain.StatusOverdue, Note: note})
	if err != nil {
		return nil, err
	}

	const q = `UPDATE reservations SET
		status = 'overdue',
		history = history || jsonb_build_array($2::jsonb),
		updated_at = now()
	WHERE status IN ('pending','confirmed') AND return_date < $1
	RETURNING ` + reservationCols

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, now, entry)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}
