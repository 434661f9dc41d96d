package notify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/diskwatch/diskwatch/internal/config"
	dwerrors "github.com/diskwatch/diskwatch/internal/errors"
)

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("diskwatch@example.com",
		[]string{"ops@example.com", "oncall@example.com"},
		"Disk health alert", "line one\nline two\n"))

	for _, want := range []string{
		"From: diskwatch@example.com\r\n",
		"To: ops@example.com, oncall@example.com\r\n",
		"Subject: Disk health alert\r\n",
		"Content-Type: text/plain; charset=UTF-8\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing header %q:\n%s", want, msg)
		}
	}

	headerEnd := strings.Index(msg, "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatal("message lacks header/body separator")
	}
	body := msg[headerEnd+4:]
	if body != "line one\r\nline two\r\n" {
		t.Errorf("body not CRLF normalized: %q", body)
	}
}

func TestSendNoRecipients(t *testing.T) {
	mailer := NewSMTPMailer(config.EmailSettings{
		SMTPHost: "mail.example.com",
		SMTPPort: 587,
	})

	err := mailer.Send(context.Background(), "subject", "body")
	if !errors.Is(err, dwerrors.ErrTransport) {
		t.Fatalf("expected transport error without recipients, got %v", err)
	}
}

// scriptedSMTPServer speaks just enough SMTP on the far end of a pipe to get
// the client past the handshake. It never advertises STARTTLS.
func scriptedSMTPServer(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	fmt.Fprintf(conn, "220 test ESMTP\r\n")
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		switch {
		case strings.HasPrefix(line, "EHLO"):
			fmt.Fprintf(conn, "250-test\r\n250 AUTH PLAIN\r\n")
		case strings.HasPrefix(line, "HELO"):
			fmt.Fprintf(conn, "250 test\r\n")
		case strings.HasPrefix(line, "QUIT"):
			fmt.Fprintf(conn, "221 bye\r\n")
			return
		default:
			fmt.Fprintf(conn, "250 ok\r\n")
		}
	}
}

func TestSendRefusesPlaintextWhenStartTLSNotOffered(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	go scriptedSMTPServer(serverConn)

	origDial := smtpDialWithDialer
	smtpDialWithDialer = func(dialer *net.Dialer, ctx context.Context, network, addr string) (net.Conn, error) {
		return clientConn, nil
	}
	defer func() { smtpDialWithDialer = origDial }()

	mailer := NewSMTPMailer(config.EmailSettings{
		SMTPHost: "mail.example.com",
		SMTPPort: 587,
		From:     "diskwatch@example.com",
		To:       []string{"ops@example.com"},
		StartTLS: true,
	})

	err := mailer.Send(context.Background(), "subject", "body")
	if err == nil {
		t.Fatal("send must fail when STARTTLS is required but not offered")
	}
	if !errors.Is(err, dwerrors.ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
	if !strings.Contains(err.Error(), "starttls") {
		t.Errorf("error should name the missing extension: %v", err)
	}
}

func TestSendDialFailureIsTransportError(t *testing.T) {
	origDial := smtpDialWithDialer
	smtpDialWithDialer = func(dialer *net.Dialer, ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	defer func() { smtpDialWithDialer = origDial }()

	mailer := NewSMTPMailer(config.EmailSettings{
		SMTPHost: "mail.example.com",
		SMTPPort: 587,
		From:     "diskwatch@example.com",
		To:       []string{"ops@example.com"},
	})

	err := mailer.Send(context.Background(), "subject", "body")
	if !errors.Is(err, dwerrors.ErrTransport) {
		t.Fatalf("expected transport error on dial failure, got %v", err)
	}
	if !dwerrors.IsRetryableError(err) {
		t.Error("dial failures must be retryable")
	}
}
