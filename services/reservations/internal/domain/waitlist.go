package domain

import "time"

type WaitlistEntry struct {
	ID       string    `json:"-"`
	BookID   string    `json:"-"`
	UserID   string    `json:"-"`
	JoinedAt time.Time `json:"-"`

	Position              int    `json:"position"`
	EstimatedAvailability string `json:"estimatedAvailability,omitempty"`
}

type WaitlistRes struct {
	Data WaitlistEntry `json:"data"`
}
