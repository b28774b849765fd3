package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/oakmart/api/internal/domain"
)

type stubEventRepository struct {
	pending      []domain.OrderEvent
	listErr      error
	limit        int
	dispatched   []string
	failed       map[string]string
	dispatchErr  error
	failedMarkAt time.Time
}

func (s *stubEventRepository) ListPending(_ context.Context, limit int) ([]domain.OrderEvent, error) {
	s.limit = limit
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.pending, nil
}

func (s *stubEventRepository) MarkDispatched(_ context.Context, eventID string, _ time.Time) error {
	if s.dispatchErr != nil {
		return s.dispatchErr
	}
	s.dispatched = append(s.dispatched, eventID)
	return nil
}

func (s *stubEventRepository) MarkFailed(_ context.Context, eventID string, reason string, now time.Time) error {
	if s.failed == nil {
		s.failed = map[string]string{}
	}
	s.failed[eventID] = reason
	s.failedMarkAt = now
	return nil
}

type stubDeliverer struct {
	deliverFn func(ctx context.Context, event domain.OrderEvent) error
	delivered []string
}

func (s *stubDeliverer) Deliver(ctx context.Context, event domain.OrderEvent) error {
	s.delivered = append(s.delivered, event.ID)
	if s.deliverFn == nil {
		return nil
	}
	return s.deliverFn(ctx, event)
}

type stubMirror struct {
	published []string
	err       error
}

func (s *stubMirror) PublishOrderEvent(_ context.Context, event domain.OrderEvent) (string, error) {
	s.published = append(s.published, event.ID)
	if s.err != nil {
		return "", s.err
	}
	return "msg-" + event.ID, nil
}

func pendingEvents(ids ...string) []domain.OrderEvent {
	events := make([]domain.OrderEvent, 0, len(ids))
	for _, id := range ids {
		events = append(events, domain.OrderEvent{
			ID:          id,
			Type:        domain.OrderEventPlaced,
			OrderNumber: "ORD-2501-0001",
			Status:      domain.OrderEventPending,
		})
	}
	return events
}

func TestDispatcherDrainSettlesDeliveredEvents(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	repo := &stubEventRepository{pending: pendingEvents("evt_1", "evt_2")}
	fanout := &stubDeliverer{}
	mirror := &stubMirror{}

	dispatcher, err := NewDispatcher(DispatcherDeps{
		Events: repo,
		Fanout: fanout,
		Mirror: mirror,
		Batch:  10,
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	settled, err := dispatcher.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if settled != 2 {
		t.Fatalf("expected 2 settled, got %d", settled)
	}
	if repo.limit != 10 {
		t.Fatalf("expected batch limit 10, got %d", repo.limit)
	}
	if len(repo.dispatched) != 2 {
		t.Fatalf("expected both events dispatched, got %v", repo.dispatched)
	}
	if len(mirror.published) != 2 {
		t.Fatalf("expected both events mirrored, got %v", mirror.published)
	}
}

func TestDispatcherDrainMarksFailedAndContinues(t *testing.T) {
	repo := &stubEventRepository{pending: pendingEvents("evt_bad", "evt_good")}
	fanout := &stubDeliverer{
		deliverFn: func(_ context.Context, event domain.OrderEvent) error {
			if event.ID == "evt_bad" {
				return errors.New("all channels failed")
			}
			return nil
		},
	}

	dispatcher, err := NewDispatcher(DispatcherDeps{Events: repo, Fanout: fanout})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	settled, err := dispatcher.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected 1 settled, got %d", settled)
	}
	if reason := repo.failed["evt_bad"]; reason != "all channels failed" {
		t.Fatalf("expected failure reason recorded, got %q", reason)
	}
	if len(repo.dispatched) != 1 || repo.dispatched[0] != "evt_good" {
		t.Fatalf("expected evt_good dispatched, got %v", repo.dispatched)
	}
}

func TestDispatcherDrainMirrorFailureIsBestEffort(t *testing.T) {
	repo := &stubEventRepository{pending: pendingEvents("evt_1")}
	fanout := &stubDeliverer{}
	mirror := &stubMirror{err: errors.New("broker unavailable")}

	dispatcher, err := NewDispatcher(DispatcherDeps{Events: repo, Fanout: fanout, Mirror: mirror})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	settled, err := dispatcher.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected event settled despite mirror failure, got %d", settled)
	}
	if len(repo.dispatched) != 1 {
		t.Fatalf("expected event dispatched, got %v", repo.dispatched)
	}
}

func TestDispatcherDrainPropagatesListError(t *testing.T) {
	expected := errors.New("firestore unavailable")
	repo := &stubEventRepository{listErr: expected}

	dispatcher, err := NewDispatcher(DispatcherDeps{Events: repo, Fanout: &stubDeliverer{}})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	if _, err := dispatcher.Drain(context.Background()); !errors.Is(err, expected) {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestDispatcherDrainStopsOnCancelledContext(t *testing.T) {
	repo := &stubEventRepository{pending: pendingEvents("evt_1", "evt_2")}
	ctx, cancel := context.WithCancel(context.Background())
	fanout := &stubDeliverer{
		deliverFn: func(context.Context, domain.OrderEvent) error {
			cancel()
			return nil
		},
	}

	dispatcher, err := NewDispatcher(DispatcherDeps{Events: repo, Fanout: fanout})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	settled, err := dispatcher.Drain(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected first event settled before cancellation, got %d", settled)
	}
	if len(fanout.delivered) != 1 {
		t.Fatalf("expected delivery to stop after cancellation, got %v", fanout.delivered)
	}
}

func TestNewDispatcherValidatesDeps(t *testing.T) {
	if _, err := NewDispatcher(DispatcherDeps{Fanout: &stubDeliverer{}}); err == nil {
		t.Fatal("expected error without event repository")
	}
	if _, err := NewDispatcher(DispatcherDeps{Events: &stubEventRepository{}}); err == nil {
		t.Fatal("expected error without fanout")
	}
}
