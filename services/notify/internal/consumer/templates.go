package consumer

import (
	"fmt"
	"html"
	"time"

	"github.com/diagnosis/library-reservations/internal/platform/mailer"
	"github.com/diagnosis/library-reservations/pkg/events"
)

const dateFormat = "Mon, Jan 2 2006"

func reservationMessage(subject string, ev events.ReservationEvent) (mailer.Message, bool) {
	var title, body string
	pickup := ev.PickupDate.UTC().Format(dateFormat)
	ret := ev.ReturnDate.UTC().Format(dateFormat)

	switch subject {
	case events.ReservationCreated:
		title = "We received your reservation"
		body = fmt.Sprintf("Your reservation for book %s is pending. Pick it up from %s and return it by %s.", ev.BookID, pickup, ret)
	case events.ReservationUpdated:
		if ev.Status != "confirmed" || !contains(ev.Changes, "status") {
			return mailer.Message{}, false
		}
		title = "Your reservation is confirmed"
		body = fmt.Sprintf("Book %s is ready for pickup on %s. Please return it by %s.", ev.BookID, pickup, ret)
	case events.ReservationExtended:
		title = "Your loan was extended"
		body = fmt.Sprintf("Book %s is now due back on %s.", ev.BookID, ret)
	case events.ReservationCancelled:
		title = "Your reservation was cancelled"
		body = fmt.Sprintf("Your reservation for book %s (pickup %s) has been cancelled.", ev.BookID, pickup)
	case events.ReservationOverdue:
		title = "Your book is overdue"
		body = fmt.Sprintf("Book %s was due back on %s. Late fees apply from that date.", ev.BookID, ret)
	case events.ReservationCompleted:
		title = "Thanks for returning your book"
		body = fmt.Sprintf("We recorded book %s as returned.", ev.BookID)
		if ev.Note != "" {
			body += " " + ev.Note + "."
		}
	default:
		return mailer.Message{}, false
	}

	return mailer.Message{
		ToEmail: ev.UserEmail,
		Subject: title,
		Text:    body,
		HTML:    fmt.Sprintf("<h2>%s</h2><p>%s</p>", html.EscapeString(title), html.EscapeString(body)),
	}, true
}

func waitlistMessage(ev events.WaitlistEvent) mailer.Message {
	title := fmt.Sprintf("You're #%d on the waitlist", ev.Position)
	body := fmt.Sprintf("You joined the waitlist for book %s.", ev.BookID)
	if t, err := time.Parse(time.RFC3339Nano, ev.EstimatedAvailability); err == nil {
		body += fmt.Sprintf(" We expect a copy to be available around %s.", t.UTC().Format(dateFormat))
	}
	return mailer.Message{
		ToEmail: ev.UserEmail,
		Subject: title,
		Text:    body,
		HTML:    fmt.Sprintf("<h2>%s</h2><p>%s</p>", html.EscapeString(title), html.EscapeString(body)),
		Tags:    []string{"waitlist"},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
