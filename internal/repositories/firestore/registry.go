package firestore

import (
	"context"
	"errors"

	firestore "cloud.google.com/go/firestore"

	pfirestore "github.com/oakmart/api/internal/platform/firestore"
	"github.com/oakmart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind a single
// construction point so wiring code builds the graph once.
type Registry struct {
	provider *pfirestore.Provider

	orders        *OrderRepository
	stocks        *StockRepository
	counters      *CounterRepository
	notifications *NotificationRepository
	deviceTokens  *DeviceTokenRepository
	orderEvents   *OrderEventRepository
	health        repositories.HealthRepository
}

// NewRegistry constructs every repository against the shared provider. The
// health repository is injected because its dependency probes span more than
// Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	if health == nil {
		return nil, errors.New("firestore registry: health repository is required")
	}

	stocks, err := NewStockRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider, stocks)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, err
	}
	deviceTokens, err := NewDeviceTokenRepository(provider)
	if err != nil {
		return nil, err
	}
	orderEvents, err := NewOrderEventRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      provider,
		orders:        orders,
		stocks:        stocks,
		counters:      counters,
		notifications: notifications,
		deviceTokens:  deviceTokens,
		orderEvents:   orderEvents,
		health:        health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Stocks returns the stock repository.
func (r *Registry) Stocks() repositories.StockRepository { return r.stocks }

// Counters returns the counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Notifications returns the notification feed repository.
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }

// DeviceTokens returns the device token repository.
func (r *Registry) DeviceTokens() repositories.DeviceTokenRepository { return r.deviceTokens }

// OrderEvents returns the outbox repository.
func (r *Registry) OrderEvents() repositories.OrderEventRepository { return r.orderEvents }

// Health returns the dependency health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx groups repository operations in a single Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		return fn(txCtx)
	})
}

var _ repositories.Registry = (*Registry)(nil)
