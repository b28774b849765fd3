package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oakmart/api/internal/payments"
	"github.com/oakmart/api/internal/platform/config"
	"github.com/oakmart/api/internal/platform/observability"
	"github.com/oakmart/api/internal/repositories"
	"github.com/oakmart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	Inventory     services.InventoryService
	Counters      services.CounterService
	Notifications services.NotificationService
	System        services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger routes service-level structured logs through the supplied logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewContainer constructs the runtime dependencies. Production wiring will provide real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	svc, err := buildServices(ctx, reg, cfg, o.logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, logger *zap.Logger) (Services, error) {
	var svc Services
	if reg == nil {
		return svc, nil
	}

	eventLogger := observability.NewEventLogger(logger)

	if stocksRepo := reg.Stocks(); stocksRepo != nil {
		inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
			Stocks: stocksRepo,
			Clock:  time.Now,
			Logger: eventLogger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build inventory service: %w", err)
		}
		svc.Inventory = inventorySvc
	}

	counterRepo := reg.Counters()
	if counterRepo != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository: counterRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	if notificationsRepo := reg.Notifications(); notificationsRepo != nil && reg.DeviceTokens() != nil {
		notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
			Notifications: notificationsRepo,
			Devices:       reg.DeviceTokens(),
			Clock:         time.Now,
			Logger:        eventLogger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification service: %w", err)
		}
		svc.Notifications = notificationSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build: services.BuildInfo{
				Environment: cfg.Security.Environment,
				StartedAt:   time.Now().UTC(),
			},
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	ordersRepo := reg.Orders()
	stocksRepo := reg.Stocks()
	if ordersRepo != nil && stocksRepo != nil && svc.Counters != nil && cfg.Payments.StripeAPIKey != "" && cfg.Payments.CallbackSecret != "" {
		gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey: cfg.Payments.StripeAPIKey,
			Clock:  time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment gateway: %w", err)
		}
		verifier, err := payments.NewSignatureVerifier(cfg.Payments.CallbackSecret)
		if err != nil {
			return Services{}, fmt.Errorf("build payment signature verifier: %w", err)
		}
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:     ordersRepo,
			Stocks:     stocksRepo,
			Counters:   svc.Counters,
			Payments:   gateway,
			Signatures: verifier,
			Clock:      time.Now,
			Logger:     eventLogger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	return svc, nil
}
