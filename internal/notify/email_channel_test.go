package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/oakmart/api/internal/domain"
)

type stubEmailSender struct {
	sent []EmailMessage
	err  error
}

func (s *stubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestEmailChannelMailsCustomerAndAdmins(t *testing.T) {
	sender := &stubEmailSender{}
	channel, err := NewEmailChannel(EmailChannelDeps{
		Sender:          sender,
		AdminRecipients: []string{" shop@example.com ", ""},
	})
	if err != nil {
		t.Fatalf("NewEmailChannel: %v", err)
	}

	event := domain.OrderEvent{
		ID:          "evt_1",
		Type:        domain.OrderEventPlaced,
		OrderNumber: "ORD-2501-0009",
		Snapshot: map[string]any{
			"email":         "alex@example.com",
			"recipientName": "Alex",
			"currency":      "EUR",
			"total":         int64(2700),
			"items": []map[string]any{
				{"sku": "SKU-BREAD", "name": "Sourdough Loaf", "quantity": 2},
				{"sku": "SKU-CAKE", "name": "Carrot Cake", "quantity": 1},
			},
			"deliveryDate": "2025-01-18T00:00:00Z",
			"deliverySlot": "morning",
		},
	}
	if err := channel.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if len(msg.To) != 2 || msg.To[0] != "alex@example.com" || msg.To[1] != "shop@example.com" {
		t.Fatalf("unexpected recipients %v", msg.To)
	}
	if msg.Subject != "New order ORD-2501-0009" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, "Hello Alex,") {
		t.Fatalf("expected greeting in text body, got %q", msg.TextBody)
	}
	if !strings.Contains(msg.TextBody, "Order total: EUR 2700") {
		t.Fatalf("expected total in text body, got %q", msg.TextBody)
	}
	if !strings.Contains(msg.TextBody, "- 2 x Sourdough Loaf (SKU-BREAD)") {
		t.Fatalf("expected item line in text body, got %q", msg.TextBody)
	}
	if !strings.Contains(msg.TextBody, "Delivery: 18 January 2025 (morning)") {
		t.Fatalf("expected delivery details in text body, got %q", msg.TextBody)
	}
	if !strings.Contains(msg.HTMLBody, "<strong>ORD-2501-0009</strong>") {
		t.Fatalf("expected order number in html body, got %q", msg.HTMLBody)
	}
	if !strings.Contains(msg.HTMLBody, "<li>1 x Carrot Cake (SKU-CAKE)</li>") {
		t.Fatalf("expected item line in html body, got %q", msg.HTMLBody)
	}
	if !strings.Contains(msg.HTMLBody, "<li>Delivery: 18 January 2025 (morning)</li>") {
		t.Fatalf("expected delivery details in html body, got %q", msg.HTMLBody)
	}
}

func TestEmailChannelRendersReplayedSnapshotItems(t *testing.T) {
	sender := &stubEmailSender{}
	channel, err := NewEmailChannel(EmailChannelDeps{Sender: sender})
	if err != nil {
		t.Fatalf("NewEmailChannel: %v", err)
	}

	// Snapshots replayed from the event log come back as []any with float64
	// quantities.
	event := domain.OrderEvent{
		ID:          "evt_2",
		Type:        domain.OrderEventStatusChanged,
		OrderNumber: "ORD-2501-0011",
		NewStatus:   domain.OrderStatusConfirmed,
		Snapshot: map[string]any{
			"email": "alex@example.com",
			"items": []any{
				map[string]any{"sku": "SKU-BREAD", "name": "Sourdough Loaf", "quantity": float64(3)},
			},
			"deliverySlot": "afternoon",
		},
	}
	if err := channel.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	msg := sender.sent[0]
	if !strings.Contains(msg.TextBody, "- 3 x Sourdough Loaf (SKU-BREAD)") {
		t.Fatalf("expected item line in text body, got %q", msg.TextBody)
	}
	if !strings.Contains(msg.TextBody, "Delivery: afternoon") {
		t.Fatalf("expected delivery slot in text body, got %q", msg.TextBody)
	}
}

func TestEmailChannelSkipsWithoutRecipients(t *testing.T) {
	sender := &stubEmailSender{}
	channel, err := NewEmailChannel(EmailChannelDeps{Sender: sender})
	if err != nil {
		t.Fatalf("NewEmailChannel: %v", err)
	}

	event := domain.OrderEvent{ID: "evt_1", Snapshot: map[string]any{}}
	if err := channel.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("expected no email without recipients")
	}
}

func TestEmailChannelEscapesHTML(t *testing.T) {
	sender := &stubEmailSender{}
	channel, err := NewEmailChannel(EmailChannelDeps{Sender: sender})
	if err != nil {
		t.Fatalf("NewEmailChannel: %v", err)
	}

	event := domain.OrderEvent{
		ID:          "evt_1",
		Type:        domain.OrderEventPlaced,
		OrderNumber: "ORD-2501-0010",
		Snapshot: map[string]any{
			"email":         "alex@example.com",
			"recipientName": "<script>alert(1)</script>",
		},
	}
	if err := channel.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	html := sender.sent[0].HTMLBody
	if strings.Contains(html, "<script>") {
		t.Fatalf("expected recipient name escaped, got %q", html)
	}
}

func TestEmailChannelPropagatesSendFailure(t *testing.T) {
	sender := &stubEmailSender{err: errors.New("smtp unavailable")}
	channel, err := NewEmailChannel(EmailChannelDeps{
		Sender:          sender,
		AdminRecipients: []string{"shop@example.com"},
	})
	if err != nil {
		t.Fatalf("NewEmailChannel: %v", err)
	}

	if err := channel.Deliver(context.Background(), domain.OrderEvent{ID: "evt_1"}); err == nil {
		t.Fatal("expected send failure to propagate")
	}
}
