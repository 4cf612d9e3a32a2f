package client

import "time"

type NotificationPreference struct {
	Type  string `json:"type"`
	Email bool   `json:"email"`
	Push  bool   `json:"push"`
}

type Recurrence struct {
	Pattern string `json:"pattern"`
	EndDate string `json:"endDate"`
}

type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
}

type Reservation struct {
	ID               string                   `json:"id"`
	BookID           string                   `json:"bookId"`
	UserID           string                   `json:"userId"`
	Status           string                   `json:"status"`
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

type Meta struct {
	Total      int `json:"total"`
	Waitlisted int `json:"waitlisted"`
	Overdue    int `json:"overdue"`
}

type ReservationList struct {
	Data []Reservation `json:"data"`
	Meta Meta          `json:"meta"`
}

type CreateRequest struct {
	BookID        string                   `json:"bookId"`
	PickupDate    string                   `json:"pickupDate"`
	ReturnDate    string                   `json:"returnDate"`
	Notes         *string                  `json:"notes,omitempty"`
	Notifications []NotificationPreference `json:"notifications,omitempty"`
	Recurrence    *Recurrence              `json:"recurrence,omitempty"`
}

type UpdateRequest struct {
	Status        *string                  `json:"status,omitempty"`
	PickupDate    *string                  `json:"pickupDate,omitempty"`
	ReturnDate    *string                  `json:"returnDate,omitempty"`
	Notes         *string                  `json:"notes,omitempty"`
	Notifications []NotificationPreference `json:"notifications,omitempty"`
}

type LateFee struct {
	IntentID string `json:"intentId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type Completion struct {
	Data    Reservation `json:"data"`
	LateFee *LateFee    `json:"lateFee,omitempty"`
}

type WaitlistEntry struct {
	Position              int    `json:"position"`
	EstimatedAvailability string `json:"estimatedAvailability,omitempty"`
}

// ListOptions filters GET /reservations.
type ListOptions struct {
	Status string `url:"status,omitempty"`
	UserID string `url:"userId,omitempty"`
	Limit  int    `url:"limit,omitempty"`
	Offset int    `url:"offset,omitempty"`
}
