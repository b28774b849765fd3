package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/oakmart/api/internal/domain"
	pfirestore "github.com/oakmart/api/internal/platform/firestore"
	"github.com/oakmart/api/internal/repositories"
)

const notificationsCollection = "notifications"

type notificationDocument struct {
	Type       string         `firestore:"type"`
	Title      string         `firestore:"title"`
	Message    string         `firestore:"message"`
	TargetUser string         `firestore:"targetUser,omitempty"`
	Read       bool           `firestore:"read"`
	Metadata   map[string]any `firestore:"metadata,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt"`
}

func (d notificationDocument) toDomain(id string) domain.Notification {
	return domain.Notification{
		ID:         id,
		Type:       domain.NotificationType(d.Type),
		Title:      d.Title,
		Message:    d.Message,
		TargetUser: d.TargetUser,
		Read:       d.Read,
		Metadata:   d.Metadata,
		CreatedAt:  d.CreatedAt,
	}
}

// NotificationRepository persists the admin panel feed in Firestore.
type NotificationRepository struct {
	provider      *pfirestore.Provider
	notifications *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil)
	return &NotificationRepository{provider: provider, notifications: base}, nil
}

// Insert stores a feed entry.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.notifications == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return errors.New("notification insert: id is required")
	}

	doc := notificationDocument{
		Type:       string(notification.Type),
		Title:      strings.TrimSpace(notification.Title),
		Message:    strings.TrimSpace(notification.Message),
		TargetUser: strings.TrimSpace(notification.TargetUser),
		Read:       notification.Read,
		Metadata:   notification.Metadata,
		CreatedAt:  notification.CreatedAt.UTC(),
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := r.notifications.Set(ctx, notification.ID, doc); err != nil {
		return err
	}
	return nil
}

// List pages feed entries newest first.
func (r *NotificationRepository) List(ctx context.Context, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
	}

	query := client.Collection(notificationsCollection).Query
	if target := strings.TrimSpace(filter.TargetUser); target != "" {
		query = query.Where("targetUser", "==", target)
	}
	if filter.UnreadOnly {
		query = query.Where("read", "==", false)
	}
	if len(filter.Types) > 0 {
		query = query.Where("type", "in", filter.Types)
	}
	query = query.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeNotificationPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var notifications []domain.Notification
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		var doc notificationDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Notification]{}, fmt.Errorf("decode notification %s: %w", snap.Ref.ID, err)
		}
		notifications = append(notifications, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(notifications) > pageSize
	if hasMore {
		notifications = notifications[:pageSize]
	}
	var nextToken string
	if hasMore && len(notifications) > 0 {
		last := notifications[len(notifications)-1]
		encoded, err := encodeNotificationPageToken(notificationPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Notification]{
		Items:         notifications,
		NextPageToken: nextToken,
	}, nil
}

// MarkRead flips the read flag and returns the updated entry.
func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID string, readAt time.Time) (domain.Notification, error) {
	if r == nil || r.notifications == nil {
		return domain.Notification{}, errors.New("notification repository not initialised")
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return domain.Notification{}, errors.New("notification markRead: id is required")
	}

	updates := []firestore.Update{
		{Path: "read", Value: true},
		{Path: "metadata.readAt", Value: readAt.UTC()},
	}
	if _, err := r.notifications.Update(ctx, notificationID, updates); err != nil {
		return domain.Notification{}, err
	}
	doc, err := r.notifications.Get(ctx, notificationID)
	if err != nil {
		return domain.Notification{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type notificationPageToken struct {
	ID        string
	CreatedAt time.Time
}

func encodeNotificationPageToken(token notificationPageToken) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	if err := enc.Encode(token); err != nil {
		return "", fmt.Errorf("encode notification page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeNotificationPageToken(encoded string) (*notificationPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode notification page token: %w", err)
	}
	var token notificationPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode notification page token json: %w", err)
	}
	return &token, nil
}
