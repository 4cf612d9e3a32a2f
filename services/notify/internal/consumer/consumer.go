// Package consumer turns reservation events into member emails.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/library-reservations/internal/platform/mailer"
	"github.com/diagnosis/library-reservations/pkg/events"
	"github.com/diagnosis/library-reservations/pkg/logger"
)

// notificationType maps an event subject to the preference that gates it.
var notificationType = map[string]string{
	events.ReservationCreated:   "confirmation",
	events.ReservationUpdated:   "confirmation",
	events.ReservationCompleted: "confirmation",
	events.ReservationExtended:  "reminder",
	events.ReservationOverdue:   "overdue",
	events.ReservationCancelled: "cancellation",
}

type Consumer struct {
	mailer  mailer.Service
	timeout time.Duration
}

func New(m mailer.Service) *Consumer {
	return &Consumer{mailer: m, timeout: 15 * time.Second}
}

// Subscribe registers the consumer on the bus. Every notify replica joins the
// same queue group so each event is mailed once.
func (c *Consumer) Subscribe(bus events.Subscriber, queue string) error {
	if err := bus.QueueSubscribe(events.AllReservations, queue, c.handle(c.HandleReservation)); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.AllReservations, err)
	}
	if err := bus.QueueSubscribe(events.WaitlistJoined, queue, c.handle(c.HandleWaitlist)); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.WaitlistJoined, err)
	}
	return nil
}

func (c *Consumer) handle(fn func(ctx context.Context, msg *events.Message) error) func(*events.Message) {
	return func(msg *events.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		ctx = context.WithValue(ctx, logger.RequestIDKey, msg.ID)

		if err := fn(ctx, msg); err != nil {
			logger.ErrorContext(ctx, "Failed to handle event", "subject", msg.Subject, "error", err)
		}
	}
}

// HandleReservation mails the member when the matching preference has email
// switched on. Missing preferences count as on.
func (c *Consumer) HandleReservation(ctx context.Context, msg *events.Message) error {
	var ev events.ReservationEvent
	if err := msg.Decode(&ev); err != nil {
		return err
	}
	if ev.UserEmail == "" {
		logger.DebugContext(ctx, "Event without recipient", "subject", msg.Subject, "reservation_id", ev.ReservationID)
		return nil
	}

	kind, ok := notificationType[msg.Subject]
	if !ok || !emailEnabled(ev.Notifications, kind) {
		return nil
	}

	out, ok := reservationMessage(msg.Subject, ev)
	if !ok {
		return nil
	}
	out.Tags = []string{"reservation", kind}
	return c.send(ctx, out, "reservation_id", ev.ReservationID)
}

func (c *Consumer) HandleWaitlist(ctx context.Context, msg *events.Message) error {
	var ev events.WaitlistEvent
	if err := msg.Decode(&ev); err != nil {
		return err
	}
	if ev.UserEmail == "" {
		return nil
	}
	return c.send(ctx, waitlistMessage(ev), "book_id", ev.BookID)
}

func (c *Consumer) send(ctx context.Context, msg mailer.Message, args ...any) error {
	id, err := c.mailer.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send %q: %w", msg.Subject, err)
	}
	logger.InfoContext(ctx, "Notification sent", append(args, "subject", msg.Subject, "message_id", id)...)
	return nil
}

func emailEnabled(prefs []events.Preference, kind string) bool {
	for _, p := range prefs {
		if p.Type == kind {
			return p.Email
		}
	}
	return true
}
