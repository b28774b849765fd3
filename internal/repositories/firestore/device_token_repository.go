package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/oakmart/api/internal/domain"
	pfirestore "github.com/oakmart/api/internal/platform/firestore"
)

const deviceTokensCollection = "deviceTokens"

type deviceTokenDocument struct {
	Token     string    `firestore:"token"`
	UserID    string    `firestore:"userId"`
	Platform  string    `firestore:"platform"`
	Role      string    `firestore:"role"`
	IsActive  bool      `firestore:"isActive"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d deviceTokenDocument) toDomain() domain.DeviceToken {
	return domain.DeviceToken{
		Token:     d.Token,
		UserID:    d.UserID,
		Platform:  domain.DevicePlatform(d.Platform),
		Role:      domain.DeviceRole(d.Role),
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// DeviceTokenRepository stores FCM registration tokens keyed by token value,
// so re-registering the same token from another session replaces the prior
// owner instead of duplicating it.
type DeviceTokenRepository struct {
	provider *pfirestore.Provider
	tokens   *pfirestore.BaseRepository[deviceTokenDocument]
}

// NewDeviceTokenRepository constructs a Firestore-backed device token repository.
func NewDeviceTokenRepository(provider *pfirestore.Provider) (*DeviceTokenRepository, error) {
	if provider == nil {
		return nil, errors.New("device token repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[deviceTokenDocument](provider, deviceTokensCollection, nil, nil)
	return &DeviceTokenRepository{provider: provider, tokens: base}, nil
}

// Upsert registers or refreshes a token.
func (r *DeviceTokenRepository) Upsert(ctx context.Context, token domain.DeviceToken) (domain.DeviceToken, error) {
	if r == nil || r.tokens == nil {
		return domain.DeviceToken{}, errors.New("device token repository not initialised")
	}
	value := strings.TrimSpace(token.Token)
	if value == "" {
		return domain.DeviceToken{}, errors.New("device token upsert: token is required")
	}

	now := token.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	doc := deviceTokenDocument{
		Token:     value,
		UserID:    strings.TrimSpace(token.UserID),
		Platform:  string(token.Platform),
		Role:      string(token.Role),
		IsActive:  true,
		CreatedAt: token.CreatedAt.UTC(),
		UpdatedAt: now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if _, err := r.tokens.Set(ctx, value, doc); err != nil {
		return domain.DeviceToken{}, err
	}
	return doc.toDomain(), nil
}

// Delete removes a token owned by the given user.
func (r *DeviceTokenRepository) Delete(ctx context.Context, userID string, token string) error {
	if r == nil || r.tokens == nil {
		return errors.New("device token repository not initialised")
	}
	value := strings.TrimSpace(token)
	if value == "" {
		return errors.New("device token delete: token is required")
	}

	doc, err := r.tokens.Get(ctx, value)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return err
	}
	if owner := strings.TrimSpace(userID); owner != "" && doc.Data.UserID != owner {
		return pfirestore.WrapError("deviceTokens.delete", status.Error(codes.FailedPrecondition, fmt.Sprintf("token %s is not owned by %s", value, owner)))
	}

	ref, err := r.tokens.DocumentRef(ctx, value)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("deviceTokens.delete", err)
	}
	return nil
}

// ListActive returns tokens still considered deliverable, optionally
// restricted to a registration role.
func (r *DeviceTokenRepository) ListActive(ctx context.Context, role domain.DeviceRole) ([]domain.DeviceToken, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("device token repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("deviceTokens.listActive", err)
	}

	query := client.Collection(deviceTokensCollection).Query.
		Where("isActive", "==", true)
	if role != "" {
		query = query.Where("role", "==", string(role))
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var tokens []domain.DeviceToken
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("deviceTokens.listActive", err)
		}
		var doc deviceTokenDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode device token %s: %w", snap.Ref.ID, err)
		}
		tokens = append(tokens, doc.toDomain())
	}
	return tokens, nil
}

// Deactivate flags tokens the push provider reported as permanently invalid.
// Missing documents are skipped so a stale report cannot fail the batch.
func (r *DeviceTokenRepository) Deactivate(ctx context.Context, tokens []string, now time.Time) error {
	if r == nil || r.tokens == nil {
		return errors.New("device token repository not initialised")
	}
	ts := now.UTC()
	for _, token := range tokens {
		value := strings.TrimSpace(token)
		if value == "" {
			continue
		}
		updates := []firestore.Update{
			{Path: "isActive", Value: false},
			{Path: "updatedAt", Value: ts},
		}
		if _, err := r.tokens.Update(ctx, value, updates); err != nil {
			var repoErr *pfirestore.Error
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return err
		}
	}
	return nil
}
