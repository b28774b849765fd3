package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/oakmart/api/internal/domain"
)

// EmailMessage is a rendered email ready for transport.
type EmailMessage struct {
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

// EmailSender delivers a rendered message over some transport.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailChannelDeps bundles collaborators for the email channel.
type EmailChannelDeps struct {
	Sender EmailSender
	// AdminRecipients always receive a copy alongside the customer.
	AdminRecipients []string
	Logger          *zap.Logger
}

// EmailChannel renders order events into customer-facing emails.
type EmailChannel struct {
	sender EmailSender
	admins []string
	logger *zap.Logger
}

// NewEmailChannel constructs the email channel.
func NewEmailChannel(deps EmailChannelDeps) (*EmailChannel, error) {
	if deps.Sender == nil {
		return nil, errors.New("email channel: sender is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	admins := make([]string, 0, len(deps.AdminRecipients))
	for _, addr := range deps.AdminRecipients {
		if addr = strings.TrimSpace(addr); addr != "" {
			admins = append(admins, addr)
		}
	}

	return &EmailChannel{
		sender: deps.Sender,
		admins: admins,
		logger: logger,
	}, nil
}

// Name identifies the channel in logs and failure reports.
func (c *EmailChannel) Name() string { return "email" }

// Deliver emails the customer (when the event carries an address) and any
// configured admin recipients.
func (c *EmailChannel) Deliver(ctx context.Context, event domain.OrderEvent) error {
	if c == nil || c.sender == nil {
		return errors.New("email channel: not initialised")
	}

	recipients := make([]string, 0, len(c.admins)+1)
	if email, ok := event.Snapshot["email"].(string); ok {
		if email = strings.TrimSpace(email); email != "" {
			recipients = append(recipients, email)
		}
	}
	recipients = append(recipients, c.admins...)
	if len(recipients) == 0 {
		c.logger.Debug("email skipped, no recipients",
			zap.String("eventId", event.ID),
		)
		return nil
	}

	msg := EmailMessage{
		To:       recipients,
		Subject:  eventTitle(event),
		TextBody: renderEmailText(event),
		HTMLBody: renderEmailHTML(event),
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("email channel: send: %w", err)
	}
	return nil
}

func renderEmailText(event domain.OrderEvent) string {
	var b strings.Builder
	if name, ok := event.Snapshot["recipientName"].(string); ok && name != "" {
		fmt.Fprintf(&b, "Hello %s,\n\n", name)
	}
	b.WriteString(eventBody(event))
	b.WriteString("\n\n")
	if items := snapshotItems(event.Snapshot); len(items) > 0 {
		for _, item := range items {
			fmt.Fprintf(&b, "- %d x %s (%s)\n", item.quantity, item.name, item.sku)
		}
		b.WriteString("\n")
	}
	if total, ok := snapshotInt(event.Snapshot, "total"); ok {
		currency, _ := event.Snapshot["currency"].(string)
		fmt.Fprintf(&b, "Order total: %s %d\n", currency, total)
	}
	if delivery := snapshotDelivery(event.Snapshot); delivery != "" {
		fmt.Fprintf(&b, "Delivery: %s\n", delivery)
	}
	fmt.Fprintf(&b, "Order number: %s\n", event.OrderNumber)
	return b.String()
}

func renderEmailHTML(event domain.OrderEvent) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if name, ok := event.Snapshot["recipientName"].(string); ok && name != "" {
		fmt.Fprintf(&b, "<p>Hello %s,</p>", html.EscapeString(name))
	}
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(eventBody(event)))
	if items := snapshotItems(event.Snapshot); len(items) > 0 {
		b.WriteString("<ul>")
		for _, item := range items {
			fmt.Fprintf(&b, "<li>%d x %s (%s)</li>",
				item.quantity, html.EscapeString(item.name), html.EscapeString(item.sku))
		}
		b.WriteString("</ul>")
	}
	b.WriteString("<ul>")
	fmt.Fprintf(&b, "<li>Order number: <strong>%s</strong></li>", html.EscapeString(event.OrderNumber))
	if total, ok := snapshotInt(event.Snapshot, "total"); ok {
		currency, _ := event.Snapshot["currency"].(string)
		fmt.Fprintf(&b, "<li>Total: %s %d</li>", html.EscapeString(currency), total)
	}
	if delivery := snapshotDelivery(event.Snapshot); delivery != "" {
		fmt.Fprintf(&b, "<li>Delivery: %s</li>", html.EscapeString(delivery))
	}
	fmt.Fprintf(&b, "<li>Status: %s</li>", html.EscapeString(string(event.NewStatus)))
	b.WriteString("</ul></body></html>")
	return b.String()
}

type emailLineItem struct {
	sku      string
	name     string
	quantity int64
}

// snapshotItems decodes the order line items from an event snapshot. The
// snapshot is stored and replayed through the event log, so both the
// in-process []map[string]any and the decoded []any shapes are accepted.
func snapshotItems(snapshot map[string]any) []emailLineItem {
	var entries []map[string]any
	switch raw := snapshot["items"].(type) {
	case []map[string]any:
		entries = raw
	case []any:
		for _, v := range raw {
			if entry, ok := v.(map[string]any); ok {
				entries = append(entries, entry)
			}
		}
	default:
		return nil
	}

	items := make([]emailLineItem, 0, len(entries))
	for _, entry := range entries {
		sku, _ := entry["sku"].(string)
		name, _ := entry["name"].(string)
		quantity, _ := snapshotInt(entry, "quantity")
		if sku == "" && name == "" {
			continue
		}
		items = append(items, emailLineItem{sku: sku, name: name, quantity: quantity})
	}
	return items
}

// snapshotDelivery formats the delivery date and slot, either of which may be
// absent for pickup orders.
func snapshotDelivery(snapshot map[string]any) string {
	date, _ := snapshot["deliveryDate"].(string)
	slot, _ := snapshot["deliverySlot"].(string)
	if parsed, err := time.Parse(time.RFC3339, date); err == nil {
		date = parsed.Format("2 January 2006")
	}
	switch {
	case date != "" && slot != "":
		return fmt.Sprintf("%s (%s)", date, slot)
	case date != "":
		return date
	case slot != "":
		return slot
	default:
		return ""
	}
}

// snapshotInt tolerates the numeric widenings JSON round-trips introduce.
func snapshotInt(snapshot map[string]any, key string) (int64, bool) {
	switch v := snapshot[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
