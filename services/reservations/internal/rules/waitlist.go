package rules

import (
	"fmt"
	"time"

	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
)

type WaitlistEstimate struct {
	Position      int       `json:"position"`
	EstimatedDays int       `json:"estimatedDays"`
	EstimatedDate string    `json:"estimatedDate"`
	At            time.Time `json:"-"`
}

// EstimateWaitlist assumes every member ahead keeps the book for the average
// loan. Position is 1-based.
func (v *Validator) EstimateWaitlist(position, averageLoanDays int) (WaitlistEstimate, error) {
	if position < 1 {
		return WaitlistEstimate{}, ErrInvalidPosition
	}
	if averageLoanDays < 0 {
		return WaitlistEstimate{}, ErrInvalidLoanDays
	}

	estimatedDays := position * averageLoanDays
	at := v.now().AddDate(0, 0, estimatedDays)

	return WaitlistEstimate{
		Position:      position,
		EstimatedDays: estimatedDays,
		EstimatedDate: FormatDate(at),
		At:            at,
	}, nil
}

// maxOccurrences bounds ExpandRecurrence; a validated request spans at most
// MaxAdvanceDays, so weekly is the densest case.
const maxOccurrences = 64

type Occurrence struct {
	PickupDate time.Time
	ReturnDate time.Time
}

// ExpandRecurrence lays out one loan per period starting at pickup, each with
// the original loan span, while the occurrence pickup is on or before the
// recurrence end date.
func ExpandRecurrence(pickup, ret time.Time, rec domain.Recurrence) ([]Occurrence, error) {
	end, err := ParseDate(rec.EndDate)
	if err != nil {
		return nil, fmt.Errorf("recurrence end date: %w", err)
	}
	if _, ok := domain.ParseRecurrencePattern(string(rec.Pattern)); !ok {
		return nil, fmt.Errorf("unknown recurrence pattern %q", rec.Pattern)
	}

	span := ret.Sub(pickup)
	var out []Occurrence
	for i := 0; i < maxOccurrences; i++ {
		p := step(pickup, rec.Pattern, i)
		if p.After(end) {
			break
		}
		out = append(out, Occurrence{PickupDate: p, ReturnDate: p.Add(span)})
	}
	return out, nil
}

func step(start time.Time, pattern domain.RecurrencePattern, i int) time.Time {
	switch pattern {
	case domain.RecurWeekly:
		return start.AddDate(0, 0, 7*i)
	case domain.RecurBiweekly:
		return start.AddDate(0, 0, 14*i)
	default:
		return start.AddDate(0, i, 0)
	}
}
