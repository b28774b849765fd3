package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
)

func TestNewSMTPSenderValidatesConfig(t *testing.T) {
	if _, err := NewSMTPSender(SMTPSenderConfig{From: "no-reply@example.com"}); err == nil {
		t.Fatal("expected error without host")
	}
	if _, err := NewSMTPSender(SMTPSenderConfig{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error without from address")
	}
}

func TestSMTPSenderDefaultsPortAndSendsMIME(t *testing.T) {
	sender, err := NewSMTPSender(SMTPSenderConfig{
		Host:     "smtp.example.com",
		Username: "mailer",
		Password: "secret",
		From:     "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}

	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  []byte
	)
	sender.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotFrom = from
		gotTo = to
		gotMsg = msg
		return nil
	}

	err = sender.Send(context.Background(), EmailMessage{
		To:       []string{"alex@example.com"},
		Subject:  "Order ORD-2501-0001 paid",
		TextBody: "Payment verified.",
		HTMLBody: "<p>Payment verified.</p>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("expected default port 587, got %q", gotAddr)
	}
	if gotFrom != "no-reply@example.com" {
		t.Fatalf("unexpected from %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "alex@example.com" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}

	payload := string(gotMsg)
	if !strings.Contains(payload, "Content-Type: multipart/alternative") {
		t.Fatalf("expected multipart message, got %q", payload)
	}
	if !strings.Contains(payload, "Payment verified.") || !strings.Contains(payload, "<p>Payment verified.</p>") {
		t.Fatalf("expected both bodies in payload, got %q", payload)
	}
	if !strings.Contains(payload, "MIME-Version: 1.0") {
		t.Fatalf("expected MIME header, got %q", payload)
	}
}

func TestSMTPSenderTextOnlyMessage(t *testing.T) {
	sender, err := NewSMTPSender(SMTPSenderConfig{
		Host: "smtp.example.com",
		Port: 2525,
		From: "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}

	var gotAddr string
	var gotMsg []byte
	sender.send = func(addr string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		return nil
	}

	err = sender.Send(context.Background(), EmailMessage{
		To:       []string{"alex@example.com"},
		Subject:  "Hello",
		TextBody: "plain only",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.example.com:2525" {
		t.Fatalf("expected configured port, got %q", gotAddr)
	}
	if !strings.Contains(string(gotMsg), "Content-Type: text/plain; charset=utf-8") {
		t.Fatalf("expected plain text content type, got %q", gotMsg)
	}
}

func TestSMTPSenderRequiresRecipients(t *testing.T) {
	sender, err := NewSMTPSender(SMTPSenderConfig{
		Host: "smtp.example.com",
		From: "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	if err := sender.Send(context.Background(), EmailMessage{Subject: "x"}); err == nil {
		t.Fatal("expected error without recipients")
	}
}

func TestSMTPSenderHonoursCancelledContext(t *testing.T) {
	sender, err := NewSMTPSender(SMTPSenderConfig{
		Host: "smtp.example.com",
		From: "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	called := false
	sender.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sender.Send(ctx, EmailMessage{To: []string{"a@example.com"}}); err == nil {
		t.Fatal("expected context error")
	}
	if called {
		t.Fatal("expected transport not invoked after cancellation")
	}
}
