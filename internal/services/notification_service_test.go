package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

type stubNotificationRepository struct {
	insertFn   func(ctx context.Context, notification domain.Notification) error
	listFn     func(ctx context.Context, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error)
	markReadFn func(ctx context.Context, notificationID string, readAt time.Time) (domain.Notification, error)
}

func (s *stubNotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, notification)
}

func (s *stubNotificationRepository) List(ctx context.Context, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Notification]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubNotificationRepository) MarkRead(ctx context.Context, notificationID string, readAt time.Time) (domain.Notification, error) {
	if s.markReadFn == nil {
		return domain.Notification{}, errors.New("markReadFn not configured")
	}
	return s.markReadFn(ctx, notificationID, readAt)
}

type stubDeviceTokenRepository struct {
	upsertFn     func(ctx context.Context, token domain.DeviceToken) (domain.DeviceToken, error)
	deleteFn     func(ctx context.Context, userID string, token string) error
	listActiveFn func(ctx context.Context, role domain.DeviceRole) ([]domain.DeviceToken, error)
	deactivateFn func(ctx context.Context, tokens []string, now time.Time) error
}

func (s *stubDeviceTokenRepository) Upsert(ctx context.Context, token domain.DeviceToken) (domain.DeviceToken, error) {
	if s.upsertFn == nil {
		return token, nil
	}
	return s.upsertFn(ctx, token)
}

func (s *stubDeviceTokenRepository) Delete(ctx context.Context, userID string, token string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID, token)
}

func (s *stubDeviceTokenRepository) ListActive(ctx context.Context, role domain.DeviceRole) ([]domain.DeviceToken, error) {
	if s.listActiveFn == nil {
		return nil, nil
	}
	return s.listActiveFn(ctx, role)
}

func (s *stubDeviceTokenRepository) Deactivate(ctx context.Context, tokens []string, now time.Time) error {
	if s.deactivateFn == nil {
		return nil
	}
	return s.deactivateFn(ctx, tokens, now)
}

func newTestNotificationService(t *testing.T, deps NotificationServiceDeps) NotificationService {
	t.Helper()
	if deps.Notifications == nil {
		deps.Notifications = &stubNotificationRepository{}
	}
	if deps.Devices == nil {
		deps.Devices = &stubDeviceTokenRepository{}
	}
	svc, err := NewNotificationService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing notification service: %v", err)
	}
	return svc
}

func TestNotificationServiceListNormalisesTypes(t *testing.T) {
	var captured repositories.NotificationListFilter
	repo := &stubNotificationRepository{
		listFn: func(_ context.Context, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
			captured = filter
			return domain.CursorPage[domain.Notification]{
				Items: []domain.Notification{{ID: "ntf_1", Type: domain.NotificationTypeOrder}},
			}, nil
		},
	}
	svc := newTestNotificationService(t, NotificationServiceDeps{Notifications: repo})

	page, err := svc.List(context.Background(), NotificationFeedFilter{
		TargetUser: " admin ",
		UnreadOnly: true,
		Types:      []string{" Order ", "SYSTEM", ""},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.TargetUser != "admin" || !captured.UnreadOnly {
		t.Fatalf("unexpected filter %+v", captured)
	}
	if len(captured.Types) != 2 || captured.Types[0] != "order" || captured.Types[1] != "system" {
		t.Fatalf("expected normalised types, got %v", captured.Types)
	}
	if len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestNotificationServiceListRejectsUnknownType(t *testing.T) {
	svc := newTestNotificationService(t, NotificationServiceDeps{})
	_, err := svc.List(context.Background(), NotificationFeedFilter{Types: []string{"marketing"}})
	if !errors.Is(err, ErrNotificationInvalidInput) {
		t.Fatalf("expected ErrNotificationInvalidInput, got %v", err)
	}
}

func TestNotificationServiceMarkReadStampsClock(t *testing.T) {
	now := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	repo := &stubNotificationRepository{
		markReadFn: func(_ context.Context, id string, readAt time.Time) (domain.Notification, error) {
			if id != "ntf_1" {
				t.Fatalf("unexpected id %q", id)
			}
			if !readAt.Equal(now) {
				t.Fatalf("expected read at %v, got %v", now, readAt)
			}
			return domain.Notification{ID: id, Read: true}, nil
		},
	}
	svc := newTestNotificationService(t, NotificationServiceDeps{
		Notifications: repo,
		Clock:         func() time.Time { return now },
	})

	notification, err := svc.MarkRead(context.Background(), MarkNotificationReadCommand{
		NotificationID: " ntf_1 ",
		ActorID:        "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !notification.Read {
		t.Fatal("expected notification marked read")
	}
}

func TestNotificationServiceMarkReadMapsNotFound(t *testing.T) {
	repo := &stubNotificationRepository{
		markReadFn: func(context.Context, string, time.Time) (domain.Notification, error) {
			return domain.Notification{}, orderRepoError{msg: "missing", notFound: true}
		},
	}
	svc := newTestNotificationService(t, NotificationServiceDeps{Notifications: repo})

	_, err := svc.MarkRead(context.Background(), MarkNotificationReadCommand{NotificationID: "ntf_gone"})
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound, got %v", err)
	}
}

func TestNotificationServiceRegisterDeviceUpsertsActiveToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	var stored domain.DeviceToken
	devices := &stubDeviceTokenRepository{
		upsertFn: func(_ context.Context, token domain.DeviceToken) (domain.DeviceToken, error) {
			stored = token
			return token, nil
		},
	}
	svc := newTestNotificationService(t, NotificationServiceDeps{
		Devices: devices,
		Clock:   func() time.Time { return now },
	})

	token, err := svc.RegisterDevice(context.Background(), RegisterDeviceCommand{
		UserID:   " user-1 ",
		Token:    " fcm-token-abc ",
		Platform: "Android",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.UserID != "user-1" || stored.Token != "fcm-token-abc" {
		t.Fatalf("expected trimmed fields, got %+v", stored)
	}
	if stored.Platform != domain.DevicePlatformAndroid {
		t.Fatalf("expected android platform, got %q", stored.Platform)
	}
	if !stored.IsActive {
		t.Fatal("expected token registered active")
	}
	if stored.Role != domain.DeviceRoleUser {
		t.Fatalf("expected default user role, got %q", stored.Role)
	}
	if !token.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated at %v, got %v", now, token.UpdatedAt)
	}
}

func TestNotificationServiceRegisterDeviceKeepsAdminRole(t *testing.T) {
	now := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	var stored domain.DeviceToken
	devices := &stubDeviceTokenRepository{
		upsertFn: func(_ context.Context, token domain.DeviceToken) (domain.DeviceToken, error) {
			stored = token
			return token, nil
		},
	}
	svc := newTestNotificationService(t, NotificationServiceDeps{
		Devices: devices,
		Clock:   func() time.Time { return now },
	})

	if _, err := svc.RegisterDevice(context.Background(), RegisterDeviceCommand{
		UserID:   "staff-1",
		Token:    "fcm-token-xyz",
		Platform: "ios",
		Role:     " Admin ",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Role != domain.DeviceRoleAdmin {
		t.Fatalf("expected admin role preserved, got %q", stored.Role)
	}
}

func TestNotificationServiceRegisterDeviceRejectsUnknownPlatform(t *testing.T) {
	svc := newTestNotificationService(t, NotificationServiceDeps{})
	_, err := svc.RegisterDevice(context.Background(), RegisterDeviceCommand{
		UserID:   "user-1",
		Token:    "fcm-token-abc",
		Platform: "blackberry",
	})
	if !errors.Is(err, ErrNotificationInvalidInput) {
		t.Fatalf("expected ErrNotificationInvalidInput, got %v", err)
	}
}

func TestNotificationServiceUnregisterDevice(t *testing.T) {
	deleted := false
	devices := &stubDeviceTokenRepository{
		deleteFn: func(_ context.Context, userID string, token string) error {
			deleted = true
			if userID != "user-1" || token != "fcm-token-abc" {
				t.Fatalf("unexpected delete args %q %q", userID, token)
			}
			return nil
		},
	}
	svc := newTestNotificationService(t, NotificationServiceDeps{Devices: devices})

	if err := svc.UnregisterDevice(context.Background(), UnregisterDeviceCommand{
		UserID: " user-1 ",
		Token:  " fcm-token-abc ",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete call")
	}
}

func TestNotificationServiceUnregisterDeviceRequiresOwnerAndToken(t *testing.T) {
	svc := newTestNotificationService(t, NotificationServiceDeps{})
	if err := svc.UnregisterDevice(context.Background(), UnregisterDeviceCommand{UserID: "user-1"}); !errors.Is(err, ErrNotificationInvalidInput) {
		t.Fatalf("expected ErrNotificationInvalidInput, got %v", err)
	}
}
