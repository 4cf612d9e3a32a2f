package service

import (
	"errors"
	"strings"

	"github.com/diagnosis/library-reservations/services/reservations/internal/rules"
)

var (
	ErrNotFound          = errors.New("reservation not found")
	ErrForbidden         = errors.New("not allowed to perform this action")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotOnWaitlist     = errors.New("not on the waitlist for this book")
)

// ValidationFailedError carries every failed rule of a request, in order.
type ValidationFailedError struct {
	Errors []rules.ValidationError
}

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.String()
	}
	return "reservation validation failed: " + strings.Join(msgs, "; ")
}

func invalid(errs []rules.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationFailedError{Errors: errs}
}

// Actor is the authenticated caller.
type Actor struct {
	UserID    string
	Email     string
	Librarian bool
}
