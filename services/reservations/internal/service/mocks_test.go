package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/diagnosis/library-reservations/internal/platform/payments"
	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
	"github.com/diagnosis/library-reservations/services/reservations/internal/rules"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testValidator() *rules.Validator {
	return rules.NewValidator(rules.DefaultPolicy(), func() time.Time { return fixedNow })
}

var (
	member    = Actor{UserID: "member-1", Email: "ada@example.com"}
	other     = Actor{UserID: "member-2", Email: "bob@example.com"}
	librarian = Actor{UserID: "lib-1", Email: "desk@example.com", Librarian: true}
)

type mockReservationRepo struct {
	mu      sync.Mutex
	rows    map[string]*domain.Reservation
	order   []string
	keys    map[string]string
	creates int
	failOn  string
}

func newMockReservationRepo() *mockReservationRepo {
	return &mockReservationRepo{rows: map[string]*domain.Reservation{}, keys: map[string]string{}}
}

func clone(r *domain.Reservation) *domain.Reservation {
	c := *r
	c.History = append([]domain.HistoryEntry(nil), r.History...)
	c.Notifications = append([]domain.NotificationPreference(nil), r.Notifications...)
	return &c
}

func (m *mockReservationRepo) fail(op string) error {
	if m.failOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (m *mockReservationRepo) Create(_ context.Context, r *domain.Reservation) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(r)
}

func (m *mockReservationRepo) insert(r *domain.Reservation) (*domain.Reservation, error) {
	if err := m.fail("create"); err != nil {
		return nil, err
	}
	m.creates++
	c := clone(r)
	c.CreatedAt, c.UpdatedAt = fixedNow, fixedNow
	m.rows[c.ID] = c
	m.order = append(m.order, c.ID)
	return clone(c), nil
}

// CreateOnce claims the key and inserts under one lock, like the key row and
// reservation sharing a transaction.
func (m *mockReservationRepo) CreateOnce(_ context.Context, r *domain.Reservation, scope, key string) (*domain.Reservation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[scope+"|"+key]; ok {
		return clone(m.rows[id]), false, nil
	}
	created, err := m.insert(r)
	if err != nil {
		return nil, false, err
	}
	m.keys[scope+"|"+key] = created.ID
	return created, true, nil
}

func (m *mockReservationRepo) CreateSeries(ctx context.Context, rs []domain.Reservation) ([]domain.Reservation, error) {
	out := make([]domain.Reservation, 0, len(rs))
	for i := range rs {
		c, err := m.Create(ctx, &rs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockReservationRepo) GetByID(_ context.Context, id string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		return clone(r), nil
	}
	return nil, nil
}

func (m *mockReservationRepo) each(fn func(r *domain.Reservation)) {
	for _, id := range m.order {
		fn(m.rows[id])
	}
}

func (m *mockReservationRepo) List(_ context.Context, f domain.ListFilter) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list"); err != nil {
		return nil, err
	}
	out := []domain.Reservation{}
	m.each(func(r *domain.Reservation) {
		if f.UserID != "" && r.UserID != f.UserID {
			return
		}
		if f.Status != nil && r.Status != *f.Status {
			return
		}
		out = append(out, *clone(r))
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].PickupDate.Before(out[j].PickupDate) })
	return out, nil
}

func isOverdue(r *domain.Reservation, now time.Time) bool {
	return r.Status == domain.StatusOverdue ||
		((r.Status == domain.StatusPending || r.Status == domain.StatusConfirmed) && r.ReturnDate.Before(now))
}

func isActive(r *domain.Reservation) bool {
	return r.Status == domain.StatusPending || r.Status == domain.StatusConfirmed || r.Status == domain.StatusOverdue
}

func (m *mockReservationRepo) ListOverdue(_ context.Context, userID string, now time.Time) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Reservation{}
	m.each(func(r *domain.Reservation) {
		if (userID == "" || r.UserID == userID) && isOverdue(r, now) {
			out = append(out, *clone(r))
		}
	})
	return out, nil
}

func (m *mockReservationRepo) countWhere(fn func(r *domain.Reservation) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	m.each(func(r *domain.Reservation) {
		if fn(r) {
			n++
		}
	})
	return n
}

func (m *mockReservationRepo) Count(_ context.Context, userID string) (int, error) {
	return m.countWhere(func(r *domain.Reservation) bool { return userID == "" || r.UserID == userID }), nil
}

func (m *mockReservationRepo) CountWaitlisted(_ context.Context, userID string) (int, error) {
	return m.countWhere(func(r *domain.Reservation) bool {
		return (userID == "" || r.UserID == userID) && r.WaitlistPosition != nil && isActive(r)
	}), nil
}

func (m *mockReservationRepo) CountOverdue(_ context.Context, userID string, now time.Time) (int, error) {
	return m.countWhere(func(r *domain.Reservation) bool {
		return (userID == "" || r.UserID == userID) && isOverdue(r, now)
	}), nil
}

func (m *mockReservationRepo) CountActiveOverlapping(_ context.Context, bookID string, pickup, ret time.Time) (int, error) {
	return m.countWhere(func(r *domain.Reservation) bool {
		return r.BookID == bookID && isActive(r) && r.PickupDate.Before(ret) && r.ReturnDate.After(pickup)
	}), nil
}

func (m *mockReservationRepo) Update(_ context.Context, r *domain.Reservation, entry domain.HistoryEntry) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update"); err != nil {
		return nil, err
	}
	cur, ok := m.rows[r.ID]
	if !ok {
		return nil, nil
	}
	history := append(cur.History, entry)
	c := clone(r)
	c.History = history
	c.UpdatedAt = fixedNow
	m.rows[r.ID] = c
	return clone(c), nil
}

func (m *mockReservationRepo) MarkOverdue(_ context.Context, now time.Time, note string) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Reservation{}
	m.each(func(r *domain.Reservation) {
		if (r.Status == domain.StatusPending || r.Status == domain.StatusConfirmed) && r.ReturnDate.Before(now) {
			r.Status = domain.StatusOverdue
			r.History = append(r.History, domain.HistoryEntry{Timestamp: now, Status: domain.StatusOverdue, Note: note})
			out = append(out, *clone(r))
		}
	})
	return out, nil
}

type mockIdempotencyRepo struct {
	repo        *mockReservationRepo
	afterLookup func()
	purged      int64
}

func newMockIdempotencyRepo(repo *mockReservationRepo) *mockIdempotencyRepo {
	return &mockIdempotencyRepo{repo: repo}
}

func (m *mockIdempotencyRepo) Lookup(_ context.Context, scope, key string) (string, error) {
	m.repo.mu.Lock()
	id := m.repo.keys[scope+"|"+key]
	m.repo.mu.Unlock()
	if m.afterLookup != nil {
		m.afterLookup()
	}
	return id, nil
}

func (m *mockIdempotencyRepo) CleanupExpired(context.Context) (int64, error) {
	return m.purged, nil
}

type mockWaitlistRepo struct {
	queues map[string][]string
	emails map[string]string
}

func newMockWaitlistRepo() *mockWaitlistRepo {
	return &mockWaitlistRepo{queues: map[string][]string{}, emails: map[string]string{}}
}

func (m *mockWaitlistRepo) Join(ctx context.Context, bookID, userID, email string) (*domain.WaitlistEntry, bool, error) {
	created := false
	if e, _ := m.Position(ctx, bookID, userID); e == nil {
		m.queues[bookID] = append(m.queues[bookID], userID)
		m.emails[userID] = email
		created = true
	}
	e, _ := m.Position(ctx, bookID, userID)
	return e, created, nil
}

func (m *mockWaitlistRepo) Position(_ context.Context, bookID, userID string) (*domain.WaitlistEntry, error) {
	for i, u := range m.queues[bookID] {
		if u == userID {
			return &domain.WaitlistEntry{BookID: bookID, UserID: userID, Position: i + 1}, nil
		}
	}
	return nil, nil
}

func (m *mockWaitlistRepo) Leave(_ context.Context, bookID, userID string) (bool, error) {
	q := m.queues[bookID]
	for i, u := range q {
		if u == userID {
			m.queues[bookID] = append(q[:i], q[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type published struct {
	subject string
	payload interface{}
}

type mockPublisher struct {
	mu     sync.Mutex
	events []published
}

func (m *mockPublisher) Publish(_ context.Context, subject string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, published{subject, data})
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.subject
	}
	return out
}

type mockGateway struct {
	fees []payments.LateFee
	err  error
}

func (m *mockGateway) ChargeLateFee(_ context.Context, fee payments.LateFee) (*payments.Charge, error) {
	m.fees = append(m.fees, fee)
	if m.err != nil {
		return nil, m.err
	}
	return &payments.Charge{IntentID: "pi_test", AmountCents: fee.AmountCents, Currency: fee.Currency, Status: "requires_payment_method"}, nil
}
