package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"

	domain "github.com/oakmart/api/internal/domain"
)

type stubMulticastSender struct {
	sendFn   func(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	messages []*messaging.MulticastMessage
}

func (s *stubMulticastSender) SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	s.messages = append(s.messages, message)
	if s.sendFn == nil {
		responses := make([]*messaging.SendResponse, len(message.Tokens))
		for i := range responses {
			responses[i] = &messaging.SendResponse{Success: true, MessageID: "msg"}
		}
		return &messaging.BatchResponse{SuccessCount: len(message.Tokens), Responses: responses}, nil
	}
	return s.sendFn(ctx, message)
}

type stubDeviceStore struct {
	active      []domain.DeviceToken
	listErr     error
	listedRole  domain.DeviceRole
	deactivated []string
}

func (s *stubDeviceStore) Upsert(_ context.Context, token domain.DeviceToken) (domain.DeviceToken, error) {
	return token, nil
}

func (s *stubDeviceStore) Delete(context.Context, string, string) error { return nil }

func (s *stubDeviceStore) ListActive(_ context.Context, role domain.DeviceRole) ([]domain.DeviceToken, error) {
	s.listedRole = role
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.active, nil
}

func (s *stubDeviceStore) Deactivate(_ context.Context, tokens []string, _ time.Time) error {
	s.deactivated = append(s.deactivated, tokens...)
	return nil
}

func activeDevices(tokens ...string) []domain.DeviceToken {
	devices := make([]domain.DeviceToken, 0, len(tokens))
	for _, token := range tokens {
		devices = append(devices, domain.DeviceToken{Token: token, Role: domain.DeviceRoleAdmin, IsActive: true})
	}
	return devices
}

func TestPushChannelSendsToActiveTokens(t *testing.T) {
	sender := &stubMulticastSender{}
	devices := &stubDeviceStore{active: activeDevices("tok-a", "tok-b")}

	channel, err := NewPushChannel(PushChannelDeps{Messaging: sender, Devices: devices})
	if err != nil {
		t.Fatalf("NewPushChannel: %v", err)
	}

	event := domain.OrderEvent{
		ID:          "evt_1",
		Type:        domain.OrderEventStatusChanged,
		OrderID:     "ord_1",
		OrderNumber: "ORD-2501-0003",
		NewStatus:   domain.OrderStatusConfirmed,
	}
	if err := channel.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if devices.listedRole != domain.DeviceRoleAdmin {
		t.Fatalf("expected admin-scoped token listing, got %q", devices.listedRole)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected single multicast batch, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	if len(msg.Tokens) != 2 {
		t.Fatalf("expected both tokens, got %v", msg.Tokens)
	}
	if msg.Notification == nil || msg.Notification.Title != "Order ORD-2501-0003 updated" {
		t.Fatalf("unexpected notification %+v", msg.Notification)
	}
	if msg.Data["status"] != "confirmed" || msg.Data["orderId"] != "ord_1" {
		t.Fatalf("unexpected data payload %v", msg.Data)
	}
	if len(devices.deactivated) != 0 {
		t.Fatalf("expected no deactivations, got %v", devices.deactivated)
	}
}

func TestPushChannelNoActiveTokensIsNoop(t *testing.T) {
	sender := &stubMulticastSender{}
	channel, err := NewPushChannel(PushChannelDeps{Messaging: sender, Devices: &stubDeviceStore{}})
	if err != nil {
		t.Fatalf("NewPushChannel: %v", err)
	}

	if err := channel.Deliver(context.Background(), domain.OrderEvent{ID: "evt_1"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(sender.messages) != 0 {
		t.Fatal("expected no multicast call without tokens")
	}
}

func TestPushChannelPropagatesListError(t *testing.T) {
	devices := &stubDeviceStore{listErr: errors.New("firestore unavailable")}
	channel, err := NewPushChannel(PushChannelDeps{Messaging: &stubMulticastSender{}, Devices: devices})
	if err != nil {
		t.Fatalf("NewPushChannel: %v", err)
	}

	if err := channel.Deliver(context.Background(), domain.OrderEvent{ID: "evt_1"}); err == nil {
		t.Fatal("expected list failure to propagate")
	}
}

func TestPushChannelAllDeliveriesFailing(t *testing.T) {
	sender := &stubMulticastSender{
		sendFn: func(_ context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
			responses := make([]*messaging.SendResponse, len(message.Tokens))
			for i := range responses {
				responses[i] = &messaging.SendResponse{Error: errors.New("internal error")}
			}
			return &messaging.BatchResponse{FailureCount: len(message.Tokens), Responses: responses}, nil
		},
	}
	devices := &stubDeviceStore{active: activeDevices("tok-a")}

	channel, err := NewPushChannel(PushChannelDeps{Messaging: sender, Devices: devices})
	if err != nil {
		t.Fatalf("NewPushChannel: %v", err)
	}

	if err := channel.Deliver(context.Background(), domain.OrderEvent{ID: "evt_1"}); err == nil {
		t.Fatal("expected error when nothing was delivered")
	}
	if len(devices.deactivated) != 0 {
		t.Fatalf("generic failures must not deactivate tokens, got %v", devices.deactivated)
	}
}

func TestPushChannelPartialFailureStillSucceeds(t *testing.T) {
	sender := &stubMulticastSender{
		sendFn: func(context.Context, *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
			return &messaging.BatchResponse{
				SuccessCount: 1,
				FailureCount: 1,
				Responses: []*messaging.SendResponse{
					{Success: true, MessageID: "msg-1"},
					{Error: errors.New("quota exceeded")},
				},
			}, nil
		},
	}
	devices := &stubDeviceStore{active: activeDevices("tok-a", "tok-b")}

	channel, err := NewPushChannel(PushChannelDeps{Messaging: sender, Devices: devices})
	if err != nil {
		t.Fatalf("NewPushChannel: %v", err)
	}

	if err := channel.Deliver(context.Background(), domain.OrderEvent{ID: "evt_1"}); err != nil {
		t.Fatalf("expected partial success to count as delivered, got %v", err)
	}
}
