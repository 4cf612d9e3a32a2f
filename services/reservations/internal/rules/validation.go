package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
)

const (
	FieldBookID            = "bookId"
	FieldPickupDate        = "pickupDate"
	FieldReturnDate        = "returnDate"
	FieldStatus            = "status"
	FieldNotifications     = "notifications"
	FieldRecurrencePattern = "recurrence.pattern"
	FieldRecurrenceEndDate = "recurrence.endDate"
)

// ValidationError is one field problem. Results are kept as an ordered slice
// so repeated fields and display order survive.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	return e.Field + ": " + e.Message
}

func invalidDate(field, label string) ValidationError {
	return ValidationError{Field: field, Message: label + " is not a valid date"}
}

// ValidateDates checks pickup lead time, ordering and loan span. The checks
// are independent and all of them run.
func (v *Validator) ValidateDates(pickupDate, returnDate string) []ValidationError {
	var errs []ValidationError
	now := v.now()

	pickup, pickupErr := ParseDate(pickupDate)
	if pickupErr != nil {
		errs = append(errs, invalidDate(FieldPickupDate, "Pickup date"))
	}
	ret, returnErr := ParseDate(returnDate)
	if returnErr != nil {
		errs = append(errs, invalidDate(FieldReturnDate, "Return date"))
	}

	if pickupErr == nil {
		untilPickup := wholeDays(now, pickup)
		if untilPickup < v.policy.MinPickupDays {
			errs = append(errs, ValidationError{
				Field:   FieldPickupDate,
				Message: fmt.Sprintf("Pickup date must be at least %s from now", days(v.policy.MinPickupDays)),
			})
		}
		if untilPickup > v.policy.MaxAdvanceDays {
			errs = append(errs, ValidationError{
				Field:   FieldPickupDate,
				Message: fmt.Sprintf("Cannot reserve more than %s in advance", days(v.policy.MaxAdvanceDays)),
			})
		}
	}

	if pickupErr == nil && returnErr == nil {
		errs = append(errs, v.checkSpan(pickup, ret)...)
	}

	return errs
}

func (v *Validator) checkSpan(pickup, ret time.Time) []ValidationError {
	var errs []ValidationError
	if !ret.After(pickup) {
		errs = append(errs, ValidationError{
			Field:   FieldReturnDate,
			Message: "Return date must be after pickup date",
		})
	}
	if wholeDays(pickup, ret) > v.policy.MaxReservationDays {
		errs = append(errs, ValidationError{
			Field:   FieldReturnDate,
			Message: fmt.Sprintf("Maximum reservation period is %s", days(v.policy.MaxReservationDays)),
		})
	}
	return errs
}

// ValidateCreate checks a new reservation request. Date range checks only run
// when both dates were supplied.
func (v *Validator) ValidateCreate(req domain.CreateReservationReq) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(req.BookID) == "" {
		errs = append(errs, ValidationError{Field: FieldBookID, Message: "Book ID is required"})
	}
	if req.PickupDate == "" {
		errs = append(errs, ValidationError{Field: FieldPickupDate, Message: "Pickup date is required"})
	}
	if req.ReturnDate == "" {
		errs = append(errs, ValidationError{Field: FieldReturnDate, Message: "Return date is required"})
	}

	if req.PickupDate != "" && req.ReturnDate != "" {
		errs = append(errs, v.ValidateDates(req.PickupDate, req.ReturnDate)...)
	}

	if req.Recurrence != nil {
		errs = append(errs, v.validateRecurrence(req.PickupDate, *req.Recurrence)...)
	}

	errs = append(errs, validateNotifications(req.Notifications)...)

	return errs
}

func (v *Validator) validateRecurrence(pickupDate string, rec domain.Recurrence) []ValidationError {
	var errs []ValidationError

	if _, ok := domain.ParseRecurrencePattern(string(rec.Pattern)); !ok {
		errs = append(errs, ValidationError{
			Field:   FieldRecurrencePattern,
			Message: "Recurrence pattern must be weekly, biweekly, or monthly",
		})
	}

	if rec.EndDate == "" {
		return append(errs, ValidationError{Field: FieldRecurrenceEndDate, Message: "Recurrence end date is required"})
	}
	end, err := ParseDate(rec.EndDate)
	if err != nil {
		return append(errs, invalidDate(FieldRecurrenceEndDate, "Recurrence end date"))
	}

	// a missing or broken pickup date was already reported
	pickup, err := ParseDate(pickupDate)
	if err != nil {
		return errs
	}

	if !end.After(pickup) {
		errs = append(errs, ValidationError{
			Field:   FieldRecurrenceEndDate,
			Message: "Recurrence end date must be after pickup date",
		})
	}
	if wholeDays(pickup, end) > v.policy.MaxAdvanceDays {
		errs = append(errs, ValidationError{
			Field:   FieldRecurrenceEndDate,
			Message: fmt.Sprintf("Recurring reservations cannot extend beyond %s", days(v.policy.MaxAdvanceDays)),
		})
	}
	return errs
}

// ValidateUpdate checks a partial update. Dates are only range-checked when
// the patch carries both of them; a date sent empty is reported as missing.
func (v *Validator) ValidateUpdate(patch domain.ReservationPatch) []ValidationError {
	var errs []ValidationError

	pickup := deref(patch.PickupDate)
	ret := deref(patch.ReturnDate)

	// a date that is sent must carry a value; clearing one is not allowed
	if patch.PickupDate != nil && strings.TrimSpace(pickup) == "" {
		errs = append(errs, ValidationError{Field: FieldPickupDate, Message: "Pickup date is required"})
	}
	if patch.ReturnDate != nil && strings.TrimSpace(ret) == "" {
		errs = append(errs, ValidationError{Field: FieldReturnDate, Message: "Return date is required"})
	}

	if pickup != "" && ret != "" {
		errs = append(errs, v.ValidateDates(pickup, ret)...)
	}

	if patch.Status != nil {
		if _, ok := domain.ParseStatus(string(*patch.Status)); !ok {
			errs = append(errs, ValidationError{Field: FieldStatus, Message: "Invalid reservation status"})
		}
		if *patch.Status == domain.StatusCompleted && ret == "" {
			errs = append(errs, ValidationError{
				Field:   FieldStatus,
				Message: "Return date is required to complete a reservation",
			})
		}
	}

	errs = append(errs, validateNotifications(patch.Notifications)...)

	return errs
}

// ValidateExtension checks a new return date for an existing loan. The pickup
// may already lie in the past, so lead-time checks do not apply.
func (v *Validator) ValidateExtension(pickup, currentReturn time.Time, newReturnDate string) []ValidationError {
	if newReturnDate == "" {
		return []ValidationError{{Field: FieldReturnDate, Message: "Return date is required"}}
	}
	ret, err := ParseDate(newReturnDate)
	if err != nil {
		return []ValidationError{invalidDate(FieldReturnDate, "Return date")}
	}
	var errs []ValidationError
	if !ret.After(currentReturn) {
		errs = append(errs, ValidationError{
			Field:   FieldReturnDate,
			Message: "New return date must be after the current return date",
		})
	}
	return append(errs, v.checkSpan(pickup, ret)...)
}

func validateNotifications(prefs []domain.NotificationPreference) []ValidationError {
	var errs []ValidationError
	for _, p := range prefs {
		if _, ok := domain.ParseNotificationType(string(p.Type)); !ok {
			errs = append(errs, ValidationError{
				Field:   FieldNotifications,
				Message: fmt.Sprintf("Unknown notification type %q", p.Type),
			})
		}
	}
	return errs
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
