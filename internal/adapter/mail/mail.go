// Package mail delivers report e-mails over SMTP.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
)

// Mailer sends plain-text mail through one SMTP relay without auth.
type Mailer struct {
	Addr    string
	Host    string
	Timeout time.Duration

	obs *obsctx.ObservableClient
}

// New builds a Mailer for addr. A bare host gets port 25. host is shown as
// the sender display name.
func New(addr, host string) *Mailer {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "25")
	}
	return &Mailer{
		Addr:    addr,
		Host:    host,
		Timeout: 30 * time.Second,
		obs:     obsctx.NewObservableClient(obsctx.ConnectionTypeMail, addr, 0),
	}
}

// Send delivers one message to all recipients in a single transaction.
func (m *Mailer) Send(ctx domain.Context, from string, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	return m.obs.ExecuteWithTimeout(ctx, "send", m.Timeout, func(ctx context.Context) error {
		return m.send(ctx, from, to, subject, body)
	})
}

func (m *Mailer) send(ctx context.Context, from string, to []string, subject, body string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", m.Addr)
	if err != nil {
		return fmt.Errorf("op=mail.Send: %w", &domain.TransportError{Op: "smtp dial", Err: err})
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	host, _, _ := net.SplitHostPort(m.Addr)
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("op=mail.Send: %w", &domain.TransportError{Op: "smtp greeting", Err: err})
	}
	defer func() { _ = c.Close() }()

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("op=mail.Send: MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("op=mail.Send: RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("op=mail.Send: DATA: %w", err)
	}
	if _, err := w.Write(Message(m.Host, from, to, subject, body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("op=mail.Send: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("op=mail.Send: DATA: %w", err)
	}
	if err := c.Quit(); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("smtp quit", slog.Any("error", err))
	}
	obsctx.LoggerFromContext(ctx).Info("report mailed", slog.Int("recipients", len(to)), slog.String("subject", subject))
	return nil
}

// Message renders the RFC 5322 message with CRLF line endings.
func Message(host, from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %q <%s>\r\n", host, from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}
