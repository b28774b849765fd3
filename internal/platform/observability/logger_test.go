package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewEventLoggerWritesFieldsToFallback(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	eventLogger := NewEventLogger(zap.New(core))

	eventLogger(context.Background(), "order.placed", map[string]any{
		"orderNumber": "ORD-2501-0001",
		"total":       int64(2700),
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].Message != "order.placed" {
		t.Fatalf("unexpected message %q", entries[0].Message)
	}
	fields := entries[0].ContextMap()
	if fields["orderNumber"] != "ORD-2501-0001" {
		t.Fatalf("expected orderNumber field, got %v", fields)
	}
	if fields["total"] != int64(2700) {
		t.Fatalf("expected total field, got %v", fields)
	}
}

func TestNewEventLoggerPrefersContextLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zap.InfoLevel)
	requestCore, requestLogs := observer.New(zap.InfoLevel)

	eventLogger := NewEventLogger(zap.New(fallbackCore))
	ctx := WithLogger(context.Background(), zap.New(requestCore))

	eventLogger(ctx, "stock.reserved", map[string]any{"sku": "SKU-BREAD"})

	if fallbackLogs.Len() != 0 {
		t.Fatalf("expected fallback logger untouched, got %d entries", fallbackLogs.Len())
	}
	if requestLogs.Len() != 1 {
		t.Fatalf("expected request logger to receive the event, got %d entries", requestLogs.Len())
	}
}

func TestNewEventLoggerNilFallbackDoesNotPanic(t *testing.T) {
	eventLogger := NewEventLogger(nil)
	eventLogger(context.Background(), "noop.event", nil)
}
