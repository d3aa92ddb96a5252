package mailer

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/outboxlab/eventgate/internal/apperr"
)

// Message is one outbound email, fully rendered.
type Message struct {
	FromAddress string
	FromName    string
	To          string
	ToName      string
	Subject     string
	HTMLBody    string
	TextBody    string
}

// Transport performs the actual network send. Failures it returns are
// transient from the caller's point of view; the processor owns the attempt
// cap that turns repeated transience into a terminal failure.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// SMTPTransport delivers through a plain SMTP relay.
type SMTPTransport struct {
	addr string
	auth smtp.Auth
}

// NewSMTPTransport builds a transport for host:port. Username may be empty
// for unauthenticated relays (local dev, internal relays).
func NewSMTPTransport(host, port, username, password string) *SMTPTransport {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPTransport{
		addr: fmt.Sprintf("%s:%s", strings.TrimSpace(host), strings.TrimSpace(port)),
		auth: auth,
	}
}

func (t *SMTPTransport) Name() string { return "smtp" }

// Send blocks until the relay accepts the message or ctx expires. smtp has no
// context support, so the dial+send runs in a goroutine and a ctx deadline is
// surfaced as a transient failure.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	raw := buildMIME(msg)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(t.addr, t.auth, msg.FromAddress, []string{msg.To}, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			return apperr.Wrap(err, apperr.KindTransientSend, "smtp send failed",
				"to", msg.To, "relay", t.addr)
		}
		return nil
	case <-ctx.Done():
		return apperr.Wrap(ctx.Err(), apperr.KindTransientSend, "smtp send timed out",
			"to", msg.To, "relay", t.addr)
	}
}

const mimeBoundary = "=_eventgate_alt"

// buildMIME assembles a multipart/alternative RFC 5322 message with the text
// part first so clients prefer the HTML part.
func buildMIME(msg Message) []byte {
	var sb strings.Builder

	fmt.Fprintf(&sb, "From: %s\r\n", formatAddress(msg.FromName, msg.FromAddress))
	fmt.Fprintf(&sb, "To: %s\r\n", formatAddress(msg.ToName, msg.To))
	fmt.Fprintf(&sb, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	sb.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&sb, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mimeBoundary)

	fmt.Fprintf(&sb, "--%s\r\n", mimeBoundary)
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(msg.TextBody)
	sb.WriteString("\r\n")

	fmt.Fprintf(&sb, "--%s\r\n", mimeBoundary)
	sb.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	sb.WriteString(msg.HTMLBody)
	sb.WriteString("\r\n")

	fmt.Fprintf(&sb, "--%s--\r\n", mimeBoundary)
	return []byte(sb.String())
}

func formatAddress(name, addr string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), addr)
}
