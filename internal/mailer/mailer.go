// Package mailer is the outbound email collaborator. The auth service only
// depends on the Mailer interface; deployments without SMTP configured get
// the log-only implementation, which keeps local development working.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages. Delivery failure is the caller's problem to
// log and surface — it must not roll back whatever the caller persisted
// (an issued reset token stays valid regardless of mail delivery).
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTP sends mail through a plain SMTP relay.
type SMTP struct {
	addr string // host:port
	from string
}

// NewSMTP creates a Mailer that relays through addr ("host:port") with the
// given From address. No auth — intended for a local relay or a sidecar
// like postfix; swap the implementation if a provider API is needed.
func NewSMTP(addr, from string) *SMTP {
	return &SMTP{addr: addr, from: from}
}

// Send implements Mailer.
func (m *SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mailer: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(m.addr, nil, m.from, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("mailer: sending to %s: %w", msg.To, err)
	}
	return nil
}

// Log is a Mailer that only logs. Used when SMTP_ADDR is unset, so the
// forgot-password flow stays usable in development — the reset link appears
// in the server log instead of an inbox.
type Log struct {
	logger *slog.Logger
}

// NewLog creates the log-only Mailer.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Send implements Mailer.
func (m *Log) Send(_ context.Context, msg Message) error {
	m.logger.Info("mail (not sent, SMTP unconfigured)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
