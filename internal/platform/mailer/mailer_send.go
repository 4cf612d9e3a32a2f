package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

// baseTag marks every message sent by the library, so it can be filtered
// from other traffic on a shared MailerSend domain.
const baseTag = "library"

// maxTags is the most tags MailerSend accepts on one message.
const maxTags = 5

type Mailer struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	replyTo string
	Enabled bool
}

// NewMailer sends through MailerSend. Replies go to replyTo, usually the
// circulation desk, when it is set; otherwise to the sender.
func NewMailer(apiKey, fromName, fromEmail, replyTo string) *Mailer {
	m := &Mailer{
		Enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
		replyTo: strings.TrimSpace(replyTo),
	}
	if m.Enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *Mailer) Send(ctx context.Context, in Message) (string, error) {
	if !m.Enabled {
		return "", errors.New("mailer disabled (missing MAILERSEND_API_KEY or MAILER_FROM)")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := m.client.Email.Send(ctx, m.compose(in))
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	// MailerSend uses X-Message-Id
	return res.Header.Get("X-Message-Id"), nil
}

func (m *Mailer) compose(in Message) *mailersend.Message {
	msg := &mailersend.Message{}
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: in.ToName, Email: in.ToEmail}})
	msg.SetSubject(in.Subject)
	if strings.TrimSpace(in.Text) != "" {
		msg.SetText(in.Text)
	}
	if strings.TrimSpace(in.HTML) != "" {
		msg.SetHTML(in.HTML)
	}
	if m.replyTo != "" {
		msg.SetReplyTo(mailersend.ReplyTo{Name: m.from.Name, Email: m.replyTo})
	}
	msg.SetTags(tags(in.Tags))
	return msg
}

// tags prefixes the base tag and drops blanks and duplicates.
func tags(extra []string) []string {
	out := []string{baseTag}
	for _, t := range extra {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		if len(out) == maxTags {
			break
		}
		out = append(out, t)
	}
	return out
}
