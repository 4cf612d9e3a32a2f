// Package rules holds the reservation validation and waitlist rules. Every
// function is pure apart from reading the injected clock, so callers get the
// complete list of problems in one pass.
package rules

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultMinPickupDays      = 1
	DefaultMaxAdvanceDays     = 90
	DefaultMaxReservationDays = 30
	DefaultAverageLoanDays    = 14
)

const day = 24 * time.Hour

// isoLayout matches what browsers produce for Date.toISOString.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	ErrInvalidPosition = errors.New("waitlist position must be at least 1")
	ErrInvalidLoanDays = errors.New("average loan days must not be negative")
)

type Policy struct {
	MinPickupDays      int
	MaxAdvanceDays     int
	MaxReservationDays int
	AverageLoanDays    int
}

func DefaultPolicy() Policy {
	return Policy{
		MinPickupDays:      DefaultMinPickupDays,
		MaxAdvanceDays:     DefaultMaxAdvanceDays,
		MaxReservationDays: DefaultMaxReservationDays,
		AverageLoanDays:    DefaultAverageLoanDays,
	}
}

// Clock returns the current time. Tests pin it to exercise day boundaries.
type Clock func() time.Time

type Validator struct {
	policy Policy
	now    Clock
}

func NewValidator(policy Policy, now Clock) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{policy: policy, now: now}
}

func (v *Validator) Policy() Policy {
	return v.policy
}

func (v *Validator) Now() time.Time {
	return v.now()
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate accepts the shapes HTML date inputs and Date.toISOString emit.
// Values without a zone are read as UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// wholeDays floors (to - from) to days, so a negative fraction counts as -1.
func wholeDays(from, to time.Time) int {
	return int(math.Floor(float64(to.Sub(from)) / float64(day)))
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
