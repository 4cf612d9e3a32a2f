package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/library-reservations/internal/platform/payments"
	"github.com/diagnosis/library-reservations/internal/utils"
	"github.com/diagnosis/library-reservations/pkg/events"
	"github.com/diagnosis/library-reservations/pkg/logger"
	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
	"github.com/diagnosis/library-reservations/services/reservations/internal/repository"
	"github.com/diagnosis/library-reservations/services/reservations/internal/rules"
)

type ReservationService interface {
	Create(ctx context.Context, actor Actor, req domain.CreateReservationReq, idempotencyKey string) (*domain.Reservation, error)
	CreateRecurring(ctx context.Context, actor Actor, req domain.CreateReservationReq) ([]domain.Reservation, error)
	Get(ctx context.Context, actor Actor, id string) (*domain.Reservation, error)
	List(ctx context.Context, actor Actor, filter domain.ListFilter) (*domain.ReservationsRes, error)
	ListOverdue(ctx context.Context, actor Actor) (*domain.ReservationsRes, error)
	Update(ctx context.Context, actor Actor, id string, patch domain.ReservationPatch) (*domain.Reservation, error)
	Cancel(ctx context.Context, actor Actor, id string) error
	History(ctx context.Context, actor Actor, id string) ([]domain.HistoryEntry, error)
	UpdateNotifications(ctx context.Context, actor Actor, id string, prefs []domain.NotificationPreference) (*domain.Reservation, error)
	Complete(ctx context.Context, actor Actor, id, returnDate string) (*Completion, error)
	Extend(ctx context.Context, actor Actor, id, newReturnDate string) (*domain.Reservation, error)
	MarkOverdue(ctx context.Context) (int, error)
}

// Completion is a returned loan plus the late fee it incurred, if any.
type Completion struct {
	Reservation *domain.Reservation `json:"data"`
	LateFee     *payments.Charge    `json:"lateFee,omitempty"`
}

type reservationService struct {
	reservations repository.ReservationRepository
	idempotency  repository.IdempotencyRepository
	validator    *rules.Validator
	payments     payments.Gateway
	publisher    events.Publisher
}

func NewReservationService(
	reservations repository.ReservationRepository,
	idempotency repository.IdempotencyRepository,
	validator *rules.Validator,
	gateway payments.Gateway,
	publisher events.Publisher,
) ReservationService {
	return &reservationService{
		reservations: reservations,
		idempotency:  idempotency,
		validator:    validator,
		payments:     gateway,
		publisher:    publisher,
	}
}

func (s *reservationService) Create(ctx context.Context, actor Actor, req domain.CreateReservationReq, idempotencyKey string) (*domain.Reservation, error) {
	if err := invalid(s.validator.ValidateCreate(req)); err != nil {
		return nil, err
	}

	// plain retries are answered without touching the reservations table
	if idempotencyKey != "" {
		existingID, err := s.idempotency.Lookup(ctx, actor.UserID, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if existingID != "" {
			if existing, err := s.reservations.GetByID(ctx, existingID); err != nil || existing != nil {
				return existing, err
			}
		}
	}

	res, err := s.newReservation(ctx, actor, req, req.PickupDate, req.ReturnDate)
	if err != nil {
		return nil, err
	}

	var created *domain.Reservation
	if idempotencyKey == "" {
		created, err = s.reservations.Create(ctx, res)
	} else {
		var fresh bool
		created, fresh, err = s.reservations.CreateOnce(ctx, res, actor.UserID, idempotencyKey)
		if err == nil && !fresh {
			if created == nil {
				return nil, ErrNotFound
			}
			logger.InfoContext(ctx, "Idempotent create replayed", "reservation_id", created.ID)
			return created, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	s.publish(ctx, events.ReservationCreated, created, "Reservation created", nil)
	logger.InfoContext(ctx, "Reservation created", "reservation_id", created.ID, "book_id", created.BookID)
	return created, nil
}

// CreateRecurring books one loan per occurrence of req.Recurrence. Either all
// occurrences are stored or none.
func (s *reservationService) CreateRecurring(ctx context.Context, actor Actor, req domain.CreateReservationReq) ([]domain.Reservation, error) {
	errs := s.validator.ValidateCreate(req)
	if req.Recurrence == nil {
		errs = append(errs, rules.ValidationError{
			Field:   rules.FieldRecurrencePattern,
			Message: "Recurrence is required for recurring reservations",
		})
	}
	if err := invalid(errs); err != nil {
		return nil, err
	}

	pickup, _ := rules.ParseDate(req.PickupDate)
	ret, _ := rules.ParseDate(req.ReturnDate)
	occurrences, err := rules.ExpandRecurrence(pickup, ret, *req.Recurrence)
	if err != nil {
		return nil, err
	}

	series := make([]domain.Reservation, 0, len(occurrences))
	for _, occ := range occurrences {
		res, err := s.newReservation(ctx, actor, req, rules.FormatDate(occ.PickupDate), rules.FormatDate(occ.ReturnDate))
		if err != nil {
			return nil, err
		}
		series = append(series, *res)
	}

	created, err := s.reservations.CreateSeries(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("failed to create recurring reservations: %w", err)
	}

	for i := range created {
		s.publish(ctx, events.ReservationCreated, &created[i], "Recurring reservation created", nil)
	}
	logger.InfoContext(ctx, "Recurring reservations created", "book_id", req.BookID, "count", len(created))
	return created, nil
}

// newReservation builds a pending reservation. Dates must already be valid.
func (s *reservationService) newReservation(ctx context.Context, actor Actor, req domain.CreateReservationReq, pickupDate, returnDate string) (*domain.Reservation, error) {
	now := s.validator.Now()
	pickup, err := rules.ParseDate(pickupDate)
	if err != nil {
		return nil, err
	}
	ret, err := rules.ParseDate(returnDate)
	if err != nil {
		return nil, err
	}

	res := &domain.Reservation{
		ID:              uuid.NewString(),
		BookID:          utils.NormalizeString(req.BookID),
		UserID:          actor.UserID,
		UserEmail:       utils.NormalizeEmail(actor.Email),
		Status:          domain.StatusPending,
		ReservationDate: now,
		PickupDate:      pickup,
		ReturnDate:      ret,
		Notifications:   req.Notifications,
		Recurrence:      req.Recurrence,
		History: []domain.HistoryEntry{
			{Timestamp: now, Status: domain.StatusPending, Note: "Reservation created"},
		},
	}
	if req.Notes != nil {
		res.Notes = utils.NormalizeNotes(*req.Notes)
	}
	if len(res.Notifications) == 0 {
		res.Notifications = domain.DefaultNotifications()
	}

	ahead, err := s.reservations.CountActiveOverlapping(ctx, res.BookID, pickup, ret)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	if ahead > 0 {
		res.WaitlistPosition = &ahead
	}
	return res, nil
}

func (s *reservationService) Get(ctx context.Context, actor Actor, id string) (*domain.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	// members cannot tell someone else's reservation from a missing one
	if res == nil || (!actor.Librarian && !res.IsOwner(actor.UserID)) {
		return nil, ErrNotFound
	}
	return res, nil
}

func (s *reservationService) scope(actor Actor, requested string) string {
	if actor.Librarian {
		return requested
	}
	return actor.UserID
}

func (s *reservationService) List(ctx context.Context, actor Actor, filter domain.ListFilter) (*domain.ReservationsRes, error) {
	filter.UserID = s.scope(actor, filter.UserID)
	now := s.validator.Now()

	var (
		out  domain.ReservationsRes
		data []domain.Reservation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		data, err = s.reservations.List(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		out.Meta.Total, err = s.reservations.Count(gctx, filter.UserID)
		return err
	})
	g.Go(func() (err error) {
		out.Meta.Waitlisted, err = s.reservations.CountWaitlisted(gctx, filter.UserID)
		return err
	})
	g.Go(func() (err error) {
		out.Meta.Overdue, err = s.reservations.CountOverdue(gctx, filter.UserID, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}

	out.Data = data
	return &out, nil
}

// ListOverdue is the librarians' chase list across all members.
func (s *reservationService) ListOverdue(ctx context.Context, actor Actor) (*domain.ReservationsRes, error) {
	if !actor.Librarian {
		return nil, ErrForbidden
	}
	data, err := s.reservations.ListOverdue(ctx, "", s.validator.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue reservations: %w", err)
	}

	out := &domain.ReservationsRes{Data: data}
	out.Meta.Total = len(data)
	out.Meta.Overdue = len(data)
	for _, r := range data {
		if r.WaitlistPosition != nil {
			out.Meta.Waitlisted++
		}
	}
	return out, nil
}

// Update applies a partial change. Members may only cancel; status changes
// to completed go through the same path as Complete.
func (s *reservationService) Update(ctx context.Context, actor Actor, id string, patch domain.ReservationPatch) (*domain.Reservation, error) {
	if err := invalid(s.validator.ValidateUpdate(patch)); err != nil {
		return nil, err
	}

	res, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if res.IsTerminal() {
		return nil, ErrInvalidTransition
	}

	if patch.Status != nil && *patch.Status != res.Status {
		switch *patch.Status {
		case domain.StatusCancelled:
			if err := s.cancel(ctx, res, "Reservation cancelled"); err != nil {
				return nil, err
			}
			return res, nil
		case domain.StatusCompleted:
			c, err := s.Complete(ctx, actor, id, *patch.ReturnDate)
			if err != nil {
				return nil, err
			}
			return c.Reservation, nil
		}
		if !actor.Librarian {
			return nil, ErrForbidden
		}
		if !canTransition(res.Status, *patch.Status) {
			return nil, ErrInvalidTransition
		}
	}

	var changes []string
	if patch.PickupDate != nil || patch.ReturnDate != nil {
		pickup := rules.FormatDate(res.PickupDate)
		ret := rules.FormatDate(res.ReturnDate)
		if patch.PickupDate != nil {
			pickup = *patch.PickupDate
		}
		if patch.ReturnDate != nil {
			ret = *patch.ReturnDate
		}
		// ValidateUpdate only range-checks when both dates arrive together
		if patch.PickupDate == nil || patch.ReturnDate == nil {
			if err := invalid(s.validator.ValidateDates(pickup, ret)); err != nil {
				return nil, err
			}
		}
		p, perr := rules.ParseDate(pickup)
		r, rerr := rules.ParseDate(ret)
		if perr != nil || rerr != nil {
			return nil, invalid(s.validator.ValidateDates(pickup, ret))
		}
		res.PickupDate, res.ReturnDate = p, r
		changes = append(changes, "dates")
	}
	if patch.Status != nil && *patch.Status != res.Status {
		res.Status = *patch.Status
		changes = append(changes, "status")
	}
	note := "Reservation updated"
	if patch.Notes != nil {
		res.Notes = utils.NormalizeNotes(*patch.Notes)
		if res.Notes != "" {
			note = res.Notes
		}
		changes = append(changes, "notes")
	}
	if patch.Notifications != nil {
		res.Notifications = patch.Notifications
		changes = append(changes, "notifications")
	}

	updated, err := s.save(ctx, res, note)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.ReservationUpdated, updated, note, changes)
	return updated, nil
}

// canTransition covers the moves a librarian may make by hand. Cancel and
// complete have their own paths.
func canTransition(from, to domain.Status) bool {
	switch from {
	case domain.StatusPending:
		return to == domain.StatusConfirmed
	case domain.StatusConfirmed:
		return to == domain.StatusOverdue
	case domain.StatusOverdue:
		return to == domain.StatusConfirmed
	}
	return false
}

func (s *reservationService) Cancel(ctx context.Context, actor Actor, id string) error {
	res, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if !res.CanCancel() {
		return ErrInvalidTransition
	}
	return s.cancel(ctx, res, "Reservation cancelled")
}

func (s *reservationService) cancel(ctx context.Context, res *domain.Reservation, note string) error {
	res.Status = domain.StatusCancelled
	res.WaitlistPosition = nil

	updated, err := s.save(ctx, res, note)
	if err != nil {
		return err
	}
	*res = *updated
	s.publish(ctx, events.ReservationCancelled, updated, note, nil)
	logger.InfoContext(ctx, "Reservation cancelled", "reservation_id", updated.ID)
	return nil
}

func (s *reservationService) History(ctx context.Context, actor Actor, id string) ([]domain.HistoryEntry, error) {
	res, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return res.History, nil
}

func (s *reservationService) UpdateNotifications(ctx context.Context, actor Actor, id string, prefs []domain.NotificationPreference) (*domain.Reservation, error) {
	if err := invalid(s.validator.ValidateUpdate(domain.ReservationPatch{Notifications: prefs})); err != nil {
		return nil, err
	}

	res, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	res.Notifications = prefs
	if res.Notifications == nil {
		res.Notifications = []domain.NotificationPreference{}
	}

	updated, err := s.save(ctx, res, "Notification preferences updated")
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.ReservationUpdated, updated, "Notification preferences updated", []string{"notifications"})
	return updated, nil
}

// Complete records the book as returned on returnDate. A late return is
// charged through the payments gateway; a failed charge does not block the
// return.
func (s *reservationService) Complete(ctx context.Context, actor Actor, id, returnDate string) (*Completion, error) {
	if !actor.Librarian {
		return nil, ErrForbidden
	}
	if returnDate == "" {
		return nil, invalid([]rules.ValidationError{{Field: rules.FieldReturnDate, Message: "Return date is required"}})
	}
	returned, err := rules.ParseDate(returnDate)
	if err != nil {
		return nil, invalid([]rules.ValidationError{{Field: rules.FieldReturnDate, Message: "Return date is not a valid date"}})
	}

	res, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !res.CanComplete() {
		return nil, ErrInvalidTransition
	}
	if !returned.After(res.PickupDate) {
		return nil, invalid([]rules.ValidationError{{Field: rules.FieldReturnDate, Message: "Return date must be after pickup date"}})
	}

	out := &Completion{}
	note := "Book returned"
	if fee := res.LateFeeCents(returned); fee > 0 {
		daysLate := int((returned.Sub(res.ReturnDate) + 24*time.Hour - 1) / (24 * time.Hour))
		charge, err := s.payments.ChargeLateFee(ctx, payments.LateFee{
			ReservationID: res.ID,
			UserID:        res.UserID,
			UserEmail:     res.UserEmail,
			AmountCents:   fee,
			Currency:      domain.LateFeeCurrency,
			DaysLate:      daysLate,
		})
		switch {
		case err != nil:
			logger.WarnContext(ctx, "Late fee charge failed", "reservation_id", res.ID, "error", err)
			note = fmt.Sprintf("Book returned late, fee of %s outstanding", formatCents(fee))
		default:
			out.LateFee = charge
			note = fmt.Sprintf("Book returned late, fee of %s charged", formatCents(fee))
			s.publishRaw(ctx, events.LateFeeCharged, events.LateFeeChargedEvent{
				ReservationID: res.ID,
				UserID:        res.UserID,
				IntentID:      charge.IntentID,
				Amount:        charge.AmountCents,
				Currency:      charge.Currency,
			})
		}
	}

	res.Status = domain.StatusCompleted
	res.ReturnDate = returned
	res.WaitlistPosition = nil

	updated, err := s.save(ctx, res, note)
	if err != nil {
		return nil, err
	}
	out.Reservation = updated
	s.publish(ctx, events.ReservationCompleted, updated, note, nil)
	return out, nil
}

// Extend moves the return date out. Only a librarian may extend a loan that
// is already overdue, since that clears the overdue state.
func (s *reservationService) Extend(ctx context.Context, actor Actor, id, newReturnDate string) (*domain.Reservation, error) {
	res, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !res.CanExtend() {
		return nil, ErrInvalidTransition
	}
	if res.Status == domain.StatusOverdue && !actor.Librarian {
		return nil, ErrForbidden
	}
	if err := invalid(s.validator.ValidateExtension(res.PickupDate, res.ReturnDate, newReturnDate)); err != nil {
		return nil, err
	}

	ret, _ := rules.ParseDate(newReturnDate)
	res.ReturnDate = ret
	if res.Status == domain.StatusOverdue && ret.After(s.validator.Now()) {
		res.Status = domain.StatusConfirmed
	}

	note := "Return date extended to " + rules.FormatDate(ret)
	updated, err := s.save(ctx, res, note)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.ReservationExtended, updated, note, []string{"returnDate"})
	return updated, nil
}

func (s *reservationService) MarkOverdue(ctx context.Context) (int, error) {
	const note = "Return date passed"
	marked, err := s.reservations.MarkOverdue(ctx, s.validator.Now(), note)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue reservations: %w", err)
	}
	for i := range marked {
		s.publish(ctx, events.ReservationOverdue, &marked[i], note, nil)
	}
	return len(marked), nil
}

func (s *reservationService) save(ctx context.Context, res *domain.Reservation, note string) (*domain.Reservation, error) {
	entry := domain.HistoryEntry{Timestamp: s.validator.Now(), Status: res.Status, Note: note}
	updated, err := s.reservations.Update(ctx, res, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to update reservation: %w", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	return updated, nil
}

func (s *reservationService) publish(ctx context.Context, subject string, res *domain.Reservation, note string, changes []string) {
	prefs := make([]events.Preference, len(res.Notifications))
	for i, p := range res.Notifications {
		prefs[i] = events.Preference{Type: string(p.Type), Email: p.Email, Push: p.Push}
	}
	s.publishRaw(ctx, subject, events.ReservationEvent{
		ReservationID: res.ID,
		BookID:        res.BookID,
		UserID:        res.UserID,
		UserEmail:     res.UserEmail,
		Status:        string(res.Status),
		PickupDate:    res.PickupDate,
		ReturnDate:    res.ReturnDate,
		Notifications: prefs,
		Changes:       changes,
		Note:          note,
		OccurredAt:    s.validator.Now(),
	})
}

func (s *reservationService) publishRaw(ctx context.Context, subject string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

func formatCents(c int64) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}
