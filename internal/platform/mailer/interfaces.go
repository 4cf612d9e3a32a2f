package mailer

import "context"

// Message is a single outbound email.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
	// Tags label the message in the provider's analytics, e.g. "overdue".
	Tags []string
}

type Service interface {
	// Send delivers msg and returns the provider's message ID, if any.
	Send(ctx context.Context, msg Message) (string, error)
}
