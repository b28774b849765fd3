package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
)

// SMTPSenderConfig configures the SMTP transport.
type SMTPSenderConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers rendered emails over plain SMTP with optional AUTH.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender constructs an SMTP-backed EmailSender.
func NewSMTPSender(cfg SMTPSenderConfig) (*SMTPSender, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("smtp sender: host is required")
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return nil, errors.New("smtp sender: from address is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}

	var auth smtp.Auth
	if user := strings.TrimSpace(cfg.Username); user != "" {
		auth = smtp.PlainAuth("", user, cfg.Password, host)
	}

	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
		send: smtp.SendMail,
	}, nil
}

// Send transmits the message as multipart/alternative.
func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.send == nil {
		return errors.New("smtp sender: not initialised")
	}
	if len(msg.To) == 0 {
		return errors.New("smtp sender: at least one recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload := buildMIMEMessage(s.from, msg)
	if err := s.send(s.addr, s.auth, s.from, msg.To, payload); err != nil {
		return fmt.Errorf("smtp sender: %w", err)
	}
	return nil
}

const mimeBoundary = "oakmart-alt-boundary"

func buildMIMEMessage(from string, msg EmailMessage) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mimeBoundary)
		fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.TextBody)
		fmt.Fprintf(&b, "\r\n--%s\r\n", mimeBoundary)
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(msg.HTMLBody)
		fmt.Fprintf(&b, "\r\n--%s--\r\n", mimeBoundary)
	case msg.HTMLBody != "":
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(msg.HTMLBody)
	default:
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.TextBody)
	}

	return []byte(b.String())
}
