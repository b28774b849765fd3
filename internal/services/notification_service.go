package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

var (
	// ErrNotificationInvalidInput signals the caller provided invalid arguments.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the feed entry or token could not be located.
	ErrNotificationNotFound = errors.New("notification: not found")
	// ErrNotificationForbidden indicates the actor does not own the resource.
	ErrNotificationForbidden = errors.New("notification: forbidden")
)

// NotificationServiceDeps bundles collaborators required to construct a notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Devices       repositories.DeviceTokenRepository
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	notifications repositories.NotificationRepository
	devices       repositories.DeviceTokenRepository
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a concrete NotificationService implementation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}
	if deps.Devices == nil {
		return nil, errors.New("notification service: device token repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		notifications: deps.Notifications,
		devices:       deps.Devices,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *notificationService) List(ctx context.Context, filter NotificationFeedFilter) (domain.CursorPage[Notification], error) {
	types := make([]string, 0, len(filter.Types))
	for _, raw := range filter.Types {
		t := strings.ToLower(strings.TrimSpace(raw))
		if t == "" {
			continue
		}
		switch domain.NotificationType(t) {
		case domain.NotificationTypeOrder, domain.NotificationTypeAdmin, domain.NotificationTypeSystem:
			types = append(types, t)
		default:
			return domain.CursorPage[Notification]{}, fmt.Errorf("%w: unknown type %q", ErrNotificationInvalidInput, raw)
		}
	}

	page, err := s.notifications.List(ctx, repositories.NotificationListFilter{
		TargetUser: strings.TrimSpace(filter.TargetUser),
		UnreadOnly: filter.UnreadOnly,
		Types:      types,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Notification]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *notificationService) MarkRead(ctx context.Context, cmd MarkNotificationReadCommand) (Notification, error) {
	id := strings.TrimSpace(cmd.NotificationID)
	if id == "" {
		return Notification{}, fmt.Errorf("%w: notification id is required", ErrNotificationInvalidInput)
	}

	notification, err := s.notifications.MarkRead(ctx, id, s.now())
	if err != nil {
		return Notification{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "notification.read", map[string]any{
		"notificationId": id,
		"actorId":        strings.TrimSpace(cmd.ActorID),
	})
	return notification, nil
}

func (s *notificationService) RegisterDevice(ctx context.Context, cmd RegisterDeviceCommand) (DeviceToken, error) {
	userID := strings.TrimSpace(cmd.UserID)
	token := strings.TrimSpace(cmd.Token)
	if userID == "" || token == "" {
		return DeviceToken{}, fmt.Errorf("%w: user id and token are required", ErrNotificationInvalidInput)
	}
	platform := domain.DevicePlatform(strings.ToLower(strings.TrimSpace(string(cmd.Platform))))
	switch platform {
	case domain.DevicePlatformAndroid, domain.DevicePlatformIOS, domain.DevicePlatformWeb:
	default:
		return DeviceToken{}, fmt.Errorf("%w: unknown platform %q", ErrNotificationInvalidInput, cmd.Platform)
	}
	role := domain.DeviceRole(strings.ToLower(strings.TrimSpace(string(cmd.Role))))
	switch role {
	case domain.DeviceRoleAdmin:
	default:
		role = domain.DeviceRoleUser
	}

	now := s.now()
	stored, err := s.devices.Upsert(ctx, domain.DeviceToken{
		Token:     token,
		UserID:    userID,
		Platform:  platform,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return DeviceToken{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "notification.device.registered", map[string]any{
		"userId":   userID,
		"platform": string(platform),
		"role":     string(role),
	})
	return stored, nil
}

func (s *notificationService) UnregisterDevice(ctx context.Context, cmd UnregisterDeviceCommand) error {
	userID := strings.TrimSpace(cmd.UserID)
	token := strings.TrimSpace(cmd.Token)
	if userID == "" || token == "" {
		return fmt.Errorf("%w: user id and token are required", ErrNotificationInvalidInput)
	}

	if err := s.devices.Delete(ctx, userID, token); err != nil {
		return s.mapRepositoryError(err)
	}

	s.logger(ctx, "notification.device.unregistered", map[string]any{
		"userId": userID,
	})
	return nil
}

func (s *notificationService) now() time.Time {
	return s.clock()
}

func (s *notificationService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotificationNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrNotificationForbidden, err)
		}
	}

	return err
}
