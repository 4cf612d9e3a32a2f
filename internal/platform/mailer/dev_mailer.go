package mailer

import (
	"context"
	"sync"

	"github.com/diagnosis/library-reservations/pkg/logger"
)

// DevMailer logs messages instead of sending them and keeps the last few
// for inspection.
type DevMailer struct {
	mu   sync.Mutex
	sent []Message
}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(ctx context.Context, msg Message) (string, error) {
	logger.InfoContext(ctx, "[DEV MAIL] "+msg.Subject,
		"to", msg.ToEmail,
		"text", msg.Text,
	)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	if len(d.sent) > 100 {
		d.sent = d.sent[len(d.sent)-100:]
	}
	return "", nil
}

func (d *DevMailer) Sent() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.sent))
	copy(out, d.sent)
	return out
}
