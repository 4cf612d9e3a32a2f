package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/library-reservations/pkg/auth"
	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
	"github.com/diagnosis/library-reservations/services/reservations/internal/handlers"
	"github.com/diagnosis/library-reservations/services/reservations/internal/rules"
	"github.com/diagnosis/library-reservations/services/reservations/internal/service"
)

const secret = "test-secret"

// ---------- Mocks ----------

type mockReservations struct {
	service.ReservationService

	lastActor  service.Actor
	lastFilter domain.ListFilter
	lastKey    string
	createErr  error
	getErr     error
	cancelErr  error
}

func (m *mockReservations) Create(_ context.Context, a service.Actor, req domain.CreateReservationReq, key string) (*domain.Reservation, error) {
	m.lastActor, m.lastKey = a, key
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &domain.Reservation{ID: "r-1", BookID: req.BookID, UserID: a.UserID, Status: domain.StatusPending}, nil
}

func (m *mockReservations) Get(_ context.Context, a service.Actor, id string) (*domain.Reservation, error) {
	m.lastActor = a
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &domain.Reservation{ID: id, Status: domain.StatusConfirmed}, nil
}

func (m *mockReservations) List(_ context.Context, a service.Actor, f domain.ListFilter) (*domain.ReservationsRes, error) {
	m.lastActor, m.lastFilter = a, f
	return &domain.ReservationsRes{
		Data: []domain.Reservation{{ID: "r-1"}},
		Meta: domain.ReservationsMeta{Total: 1, Waitlisted: 0, Overdue: 1},
	}, nil
}

func (m *mockReservations) Cancel(_ context.Context, a service.Actor, id string) error {
	m.lastActor = a
	return m.cancelErr
}

func (m *mockReservations) Complete(_ context.Context, a service.Actor, id, returnDate string) (*service.Completion, error) {
	return &service.Completion{Reservation: &domain.Reservation{ID: id, Status: domain.StatusCompleted}}, nil
}

type mockWaitlist struct {
	service.WaitlistService
	err error
}

func (m *mockWaitlist) Position(_ context.Context, a service.Actor, bookID string) (*domain.WaitlistEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.WaitlistEntry{BookID: bookID, Position: 3, EstimatedAvailability: "2025-04-21T12:00:00.000Z"}, nil
}

func (m *mockWaitlist) Leave(context.Context, service.Actor, string) error {
	return m.err
}

// ---------- Helpers ----------

func setup(res *mockReservations, wl *mockWaitlist) http.Handler {
	return handlers.New(res, wl, handlers.Options{JWTSecret: secret}).Routes()
}

func do(t *testing.T, h http.Handler, method, path, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		tok, err := auth.NewAccessToken("member-1", "ada@example.com", role, secret, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------- Tests ----------

func TestRequiresAuthentication(t *testing.T) {
	h := setup(&mockReservations{}, &mockWaitlist{})
	rec := do(t, h, http.MethodGet, "/reservations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateReservation(t *testing.T) {
	res := &mockReservations{}
	h := setup(res, &mockWaitlist{})

	req := httptest.NewRequest(http.MethodPost, "/reservations", bytes.NewBufferString(`{"bookId":"b-1","pickupDate":"2025-03-12","returnDate":"2025-03-19"}`))
	tok, _ := auth.NewAccessToken("member-1", "ada@example.com", auth.RoleMember, secret, time.Minute)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body domain.ReservationRes
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "r-1", body.Data.ID)
	assert.Equal(t, "b-1", body.Data.BookID)
	assert.Equal(t, "abc", res.lastKey)
	assert.Equal(t, service.Actor{UserID: "member-1", Email: "ada@example.com"}, res.lastActor)
}

func TestCreateReservation_ValidationErrors(t *testing.T) {
	res := &mockReservations{createErr: &service.ValidationFailedError{Errors: []rules.ValidationError{
		{Field: rules.FieldPickupDate, Message: "Pickup date must be at least 1 day from now"},
		{Field: rules.FieldReturnDate, Message: "Maximum reservation period is 30 days"},
	}}}
	h := setup(res, &mockWaitlist{})

	rec := do(t, h, http.MethodPost, "/reservations", auth.RoleMember, map[string]string{"bookId": "b-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"errors":[
		{"field":"pickupDate","message":"Pickup date must be at least 1 day from now"},
		{"field":"returnDate","message":"Maximum reservation period is 30 days"}
	]}`, rec.Body.String())
}

func TestCreateReservation_BadJSON(t *testing.T) {
	h := setup(&mockReservations{}, &mockWaitlist{})
	rec := do(t, h, http.MethodPost, "/reservations", auth.RoleMember, "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReservations(t *testing.T) {
	res := &mockReservations{}
	h := setup(res, &mockWaitlist{})

	rec := do(t, h, http.MethodGet, "/reservations?status=confirmed&limit=5&offset=10&userId=member-9", auth.RoleLibrarian, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":1,"waitlisted":0,"overdue":1}`, string(mustField(t, rec.Body.Bytes(), "meta")))

	require.NotNil(t, res.lastFilter.Status)
	assert.Equal(t, domain.StatusConfirmed, *res.lastFilter.Status)
	assert.Equal(t, 5, res.lastFilter.Limit)
	assert.Equal(t, 10, res.lastFilter.Offset)
	assert.Equal(t, "member-9", res.lastFilter.UserID)
	assert.True(t, res.lastActor.Librarian)

	rec = do(t, h, http.MethodGet, "/reservations?status=lost", auth.RoleMember, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func mustField(t *testing.T, body []byte, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	return m[field]
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", service.ErrNotFound, http.StatusNotFound},
		{"forbidden", service.ErrForbidden, http.StatusForbidden},
		{"transition", service.ErrInvalidTransition, http.StatusConflict},
		{"unexpected", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setup(&mockReservations{getErr: tt.err}, &mockWaitlist{})
			rec := do(t, h, http.MethodGet, "/reservations/r-1", auth.RoleMember, nil)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestCancelReservation(t *testing.T) {
	h := setup(&mockReservations{}, &mockWaitlist{})
	rec := do(t, h, http.MethodDelete, "/reservations/r-1", auth.RoleMember, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	h = setup(&mockReservations{cancelErr: service.ErrInvalidTransition}, &mockWaitlist{})
	rec = do(t, h, http.MethodDelete, "/reservations/r-1", auth.RoleMember, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_STATUS_TRANSITION")
}

func TestCompleteReservation(t *testing.T) {
	h := setup(&mockReservations{}, &mockWaitlist{})
	rec := do(t, h, http.MethodPut, "/reservations/r-1/complete", auth.RoleLibrarian, map[string]string{"returnDate": "2025-03-20"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
}

func TestWaitlist(t *testing.T) {
	h := setup(&mockReservations{}, &mockWaitlist{})
	rec := do(t, h, http.MethodGet, "/books/b-7/waitlist", auth.RoleMember, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"position":3,"estimatedAvailability":"2025-04-21T12:00:00.000Z"}}`, rec.Body.String())

	h = setup(&mockReservations{}, &mockWaitlist{err: service.ErrNotOnWaitlist})
	rec = do(t, h, http.MethodDelete, "/books/b-7/waitlist", auth.RoleMember, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
