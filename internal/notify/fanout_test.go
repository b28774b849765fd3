package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	domain "github.com/oakmart/api/internal/domain"
)

type stubChannel struct {
	name      string
	err       error
	mu        sync.Mutex
	delivered []string
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Deliver(_ context.Context, event domain.OrderEvent) error {
	c.mu.Lock()
	c.delivered = append(c.delivered, event.ID)
	c.mu.Unlock()
	return c.err
}

func (c *stubChannel) deliveries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.delivered)
}

func TestFanoutDeliversToEveryChannel(t *testing.T) {
	admin := &stubChannel{name: "admin"}
	push := &stubChannel{name: "push"}
	email := &stubChannel{name: "email"}

	fanout, err := NewFanout([]Channel{admin, push, email})
	if err != nil {
		t.Fatalf("NewFanout: %v", err)
	}

	event := domain.OrderEvent{ID: "evt_1", Type: domain.OrderEventPlaced}
	if err := fanout.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	for _, channel := range []*stubChannel{admin, push, email} {
		if channel.deliveries() != 1 {
			t.Fatalf("expected channel %s to receive the event", channel.name)
		}
	}
}

func TestFanoutChannelFailureDoesNotBlockSiblings(t *testing.T) {
	admin := &stubChannel{name: "admin"}
	push := &stubChannel{name: "push", err: errors.New("fcm unavailable")}

	fanout, err := NewFanout([]Channel{admin, push})
	if err != nil {
		t.Fatalf("NewFanout: %v", err)
	}

	event := domain.OrderEvent{ID: "evt_1"}
	if err := fanout.Deliver(context.Background(), event); err != nil {
		t.Fatalf("expected delivery to succeed when one channel fails, got %v", err)
	}
	if admin.deliveries() != 1 {
		t.Fatal("expected admin channel to still receive the event")
	}
}

func TestFanoutAllChannelsFailingReturnsError(t *testing.T) {
	admin := &stubChannel{name: "admin", err: errors.New("feed write failed")}
	push := &stubChannel{name: "push", err: errors.New("fcm unavailable")}

	fanout, err := NewFanout([]Channel{admin, push})
	if err != nil {
		t.Fatalf("NewFanout: %v", err)
	}

	err = fanout.Deliver(context.Background(), domain.OrderEvent{ID: "evt_1"})
	if err == nil {
		t.Fatal("expected error when every channel fails")
	}
	if !strings.Contains(err.Error(), "evt_1") {
		t.Fatalf("expected event id in error, got %v", err)
	}
}

func TestNewFanoutRejectsEmptyOrNilChannels(t *testing.T) {
	if _, err := NewFanout(nil); err == nil {
		t.Fatal("expected error for empty channel list")
	}
	if _, err := NewFanout([]Channel{nil}); err == nil {
		t.Fatal("expected error for nil channel")
	}
}
