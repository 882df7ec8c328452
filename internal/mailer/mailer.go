// Package mailer delivers alert notifications. Dispatchers must claim the
// entity's mail-sent flag before calling Send so retries and concurrent
// workers cannot produce duplicate mail.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// SMTP sends plain-text mail to a fixed alert recipient list.
type SMTP struct {
	Addr string
	From string
	To   []string
}

func (m *SMTP) Send(_ context.Context, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.From, strings.Join(m.To, ", "), subject, body)
	if err := smtp.SendMail(m.Addr, nil, m.From, m.To, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
