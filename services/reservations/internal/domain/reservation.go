package domain

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusOverdue   Status = "overdue"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusOverdue:
		return Status(s), true
	default:
		return "", false
	}
}

type NotificationType string

const (
	NotifyConfirmation NotificationType = "confirmation"
	NotifyReminder     NotificationType = "reminder"
	NotifyOverdue      NotificationType = "overdue"
	NotifyCancellation NotificationType = "cancellation"
)

func ParseNotificationType(s string) (NotificationType, bool) {
	switch NotificationType(s) {
	case NotifyConfirmation, NotifyReminder, NotifyOverdue, NotifyCancellation:
		return NotificationType(s), true
	default:
		return "", false
	}
}

type RecurrencePattern string

const (
	RecurWeekly   RecurrencePattern = "weekly"
	RecurBiweekly RecurrencePattern = "biweekly"
	RecurMonthly  RecurrencePattern = "monthly"
)

func ParseRecurrencePattern(s string) (RecurrencePattern, bool) {
	switch RecurrencePattern(s) {
	case RecurWeekly, RecurBiweekly, RecurMonthly:
		return RecurrencePattern(s), true
	default:
		return "", false
	}
}

type NotificationPreference struct {
	Type  NotificationType `json:"type"`
	Email bool             `json:"email"`
	Push  bool             `json:"push"`
}

type Recurrence struct {
	Pattern RecurrencePattern `json:"pattern"`
	EndDate string            `json:"endDate"`
}

type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
}

type Reservation struct {
	ID               string                   `json:"id"`
	BookID           string                   `json:"bookId"`
	UserID           string                   `json:"userId"`
	UserEmail        string                   `json:"-"`
	Status           Status                   `json:"status"`
	ReservationDate  time.Time                `json:"reservationDate"`
	PickupDate       time.Time                `json:"pickupDate"`
	ReturnDate       time.Time                `json:"returnDate"`
	Notes            string                   `json:"notes,omitempty"`
	WaitlistPosition *int                     `json:"waitlistPosition,omitempty"`
	Notifications    []NotificationPreference `json:"notifications"`
	Recurrence       *Recurrence              `json:"recurrence,omitempty"`
	History          []HistoryEntry           `json:"history"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
}

// CreateReservationReq is the body of POST /reservations. Dates stay strings
// until the rules package has accepted them.
type CreateReservationReq struct {
	BookID        string                   `json:"bookId"`
	PickupDate    string                   `json:"pickupDate"`
	ReturnDate    string                   `json:"returnDate"`
	Notes         *string                  `json:"notes,omitempty"`
	Notifications []NotificationPreference `json:"notifications,omitempty"`
	Recurrence    *Recurrence              `json:"recurrence,omitempty"`
}

type ReservationPatch struct {
	Status        *Status                  `json:"status,omitempty"`
	PickupDate    *string                  `json:"pickupDate,omitempty"`
	ReturnDate    *string                  `json:"returnDate,omitempty"`
	Notes         *string                  `json:"notes,omitempty"`
	Notifications []NotificationPreference `json:"notifications,omitempty"`
}

type ReservationsMeta struct {
	Total      int `json:"total"`
	Waitlisted int `json:"waitlisted"`
	Overdue    int `json:"overdue"`
}

type ReservationsRes struct {
	Data []Reservation   `json:"data"`
	Meta ReservationsMeta `json:"meta"`
}

type ReservationRes struct {
	Data Reservation `json:"data"`
}

type SeriesRes struct {
	Data []Reservation `json:"data"`
}

type HistoryRes struct {
	Data []HistoryEntry `json:"data"`
}

// CompleteReq and ExtendReq both carry a single return date.
type CompleteReq struct {
	ReturnDate string `json:"returnDate"`
}

type ExtendReq struct {
	ReturnDate string `json:"returnDate"`
}

type NotificationsReq struct {
	Notifications []NotificationPreference `json:"notifications"`
}

type ListFilter struct {
	UserID string
	Status *Status
	Limit  int
	Offset int
}

// Business Rules
const (
	LateFeeCentsPerDay = 25
	MaxLateFeeCents    = 2000
	LateFeeCurrency    = "usd"
)

// IsTerminal reports whether no further transitions are allowed.
func (r *Reservation) IsTerminal() bool {
	return r.Status == StatusCancelled || r.Status == StatusCompleted
}

func (r *Reservation) CanCancel() bool {
	return !r.IsTerminal()
}

func (r *Reservation) CanExtend() bool {
	return !r.IsTerminal()
}

func (r *Reservation) CanComplete() bool {
	return !r.IsTerminal()
}

// IsOwner checks if the given user ID owns this reservation
func (r *Reservation) IsOwner(userID string) bool {
	return strings.EqualFold(r.UserID, userID)
}

// LateFeeCents charges per started day after the due return date, capped.
func (r *Reservation) LateFeeCents(returned time.Time) int64 {
	late := returned.Sub(r.ReturnDate)
	if late <= 0 {
		return 0
	}
	days := int64(late / (24 * time.Hour))
	if late%(24*time.Hour) != 0 {
		days++
	}
	fee := days * LateFeeCentsPerDay
	if fee > MaxLateFeeCents {
		fee = MaxLateFeeCents
	}
	return fee
}

// Preference returns the member's preference for t; missing entries mean
// email on, push off.
func (r *Reservation) Preference(t NotificationType) NotificationPreference {
	for _, p := range r.Notifications {
		if p.Type == t {
			return p
		}
	}
	return NotificationPreference{Type: t, Email: true}
}

func DefaultNotifications() []NotificationPreference {
	return []NotificationPreference{
		{Type: NotifyConfirmation, Email: true},
		{Type: NotifyReminder, Email: true},
		{Type: NotifyOverdue, Email: true},
		{Type: NotifyCancellation, Email: true},
	}
}
