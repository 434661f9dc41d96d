// Package notify delivers composed alerts over SMTP.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/diskwatch/diskwatch/internal/config"
	dwerrors "github.com/diskwatch/diskwatch/internal/errors"
)

// Mailer accepts a composed message and reports success or failure. The
// dispatcher decides whether and what to send; this layer only moves bytes.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// Dial indirection for tests.
var (
	smtpDialWithDialer = func(dialer *net.Dialer, ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	smtpTLSDialWithDialer = func(dialer *net.Dialer, network, addr string, cfg *tls.Config) (net.Conn, error) {
		return tls.DialWithDialer(dialer, network, addr, cfg)
	}
)

// SMTPMailer sends plain-text mail through a configured SMTP relay with
// optional implicit TLS or STARTTLS.
type SMTPMailer struct {
	cfg config.EmailSettings
}

// NewSMTPMailer creates a mailer for the given settings.
func NewSMTPMailer(cfg config.EmailSettings) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send composes the RFC 5322 message and delivers it to every configured
// recipient. Failure is returned to the caller, never swallowed.
func (m *SMTPMailer) Send(ctx context.Context, subject, body string) error {
	recipients := m.cfg.To
	if len(recipients) == 0 && m.cfg.From != "" {
		recipients = []string{m.cfg.From}
		log.Info().Str("from", m.cfg.From).Msg("Using From address as recipient since To is empty")
	}
	if len(recipients) == 0 {
		return dwerrors.WrapTransportError("send_mail", fmt.Errorf("no recipients configured"))
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	log.Info().
		Str("smtp", addr).
		Str("from", m.cfg.From).
		Strs("to", recipients).
		Bool("hasAuth", m.cfg.Username != "" && m.cfg.Password != "").
		Bool("startTLS", m.cfg.StartTLS).
		Msg("Attempting to send email via SMTP")

	if err := m.send(ctx, addr, recipients, subject, body); err != nil {
		log.Error().
			Err(err).
			Str("smtp", addr).
			Strs("recipients", recipients).
			Msg("Failed to send email notification")
		return dwerrors.WrapTransportError("send_mail", err)
	}

	log.Info().
		Strs("recipients", recipients).
		Msg("Email notification sent successfully")
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, addr string, recipients []string, subject, body string) error {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	var (
		conn net.Conn
		err  error
	)
	if m.cfg.TLS {
		conn, err = smtpTLSDialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: m.cfg.SMTPHost})
	} else {
		conn, err = smtpDialWithDialer(dialer, ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, m.cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if !m.cfg.TLS && m.cfg.StartTLS {
		// Never fall back to plaintext when STARTTLS was asked for; the
		// credentials would go over the wire unencrypted.
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("starttls required but not offered by %s", m.cfg.SMTPHost)
		}
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.SMTPHost}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := writer.Write(buildMessage(m.cfg.From, recipients, subject, body)); err != nil {
		writer.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	return client.Quit()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
