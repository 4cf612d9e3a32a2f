package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diagnosis/library-reservations/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

// Decode unmarshals the JSON payload into v.
func (m *Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Subject, err)
	}
	return nil
}

type NATSEventBus struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(wrap(msg))
	})
	if err != nil {
		return err
	}
	n.subs = append(n.subs, sub)
	return nil
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	sub, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(wrap(msg))
	})
	if err != nil {
		return err
	}
	n.subs = append(n.subs, sub)
	return nil
}

// Close drains subscriptions so in-flight handlers finish before the
// connection goes away.
func (n *NATSEventBus) Close() error {
	for _, sub := range n.subs {
		_ = sub.Drain()
	}
	n.conn.Close()
	return nil
}

func wrap(msg *nats.Msg) *Message {
	now := time.Now()
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: now,
		ID:        fmt.Sprintf("%d", now.UnixNano()),
	}
}

// Event types and subjects
const (
	// Reservation events
	ReservationCreated   = "reservation.created"
	ReservationUpdated   = "reservation.updated"
	ReservationCancelled = "reservation.cancelled"
	ReservationCompleted = "reservation.completed"
	ReservationExtended  = "reservation.extended"
	ReservationOverdue   = "reservation.overdue"

	// Waitlist events
	WaitlistJoined = "waitlist.joined"
	WaitlistLeft   = "waitlist.left"

	// Payment events
	LateFeeCharged = "payment.late_fee.charged"

	// AllReservations matches every reservation subject
	AllReservations = "reservation.>"
)

// Preference is the member's per-event delivery choice.
type Preference struct {
	Type  string `json:"type"`
	Email bool   `json:"email"`
	Push  bool   `json:"push"`
}

// Event payloads
type ReservationEvent struct {
	ReservationID string       `json:"reservation_id"`
	BookID        string       `json:"book_id"`
	UserID        string       `json:"user_id"`
	UserEmail     string       `json:"user_email"`
	Status        string       `json:"status"`
	PickupDate    time.Time    `json:"pickup_date"`
	ReturnDate    time.Time    `json:"return_date"`
	Notifications []Preference `json:"notifications"`
	Changes       []string     `json:"changes,omitempty"`
	Note          string       `json:"note,omitempty"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

type WaitlistEvent struct {
	BookID                string    `json:"book_id"`
	UserID                string    `json:"user_id"`
	UserEmail             string    `json:"user_email"`
	Position              int       `json:"position"`
	EstimatedAvailability string    `json:"estimated_availability,omitempty"`
	OccurredAt            time.Time `json:"occurred_at"`
}

type LateFeeChargedEvent struct {
	ReservationID string `json:"reservation_id"`
	UserID        string `json:"user_id"`
	IntentID      string `json:"intent_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}
