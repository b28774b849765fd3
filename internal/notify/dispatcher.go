package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

const (
	defaultDrainInterval = 5 * time.Second
	defaultDrainBatch    = 25
)

// Deliverer fans a single event out to its destinations.
type Deliverer interface {
	Deliver(ctx context.Context, event domain.OrderEvent) error
}

// EventMirror republishes dispatched events to an external broker.
type EventMirror interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) (string, error)
}

// DispatcherDeps bundles collaborators for the outbox dispatcher.
type DispatcherDeps struct {
	Events   repositories.OrderEventRepository
	Fanout   Deliverer
	Mirror   EventMirror
	Interval time.Duration
	Batch    int
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Dispatcher drains the outbox on an interval: pending and previously failed
// events are fanned out oldest-first, then settled as dispatched or failed.
// Mirroring to the broker is best-effort and never blocks settlement.
type Dispatcher struct {
	events   repositories.OrderEventRepository
	fanout   Deliverer
	mirror   EventMirror
	interval time.Duration
	batch    int
	clock    func() time.Time
	logger   *zap.Logger
}

// NewDispatcher constructs the outbox dispatcher.
func NewDispatcher(deps DispatcherDeps) (*Dispatcher, error) {
	if deps.Events == nil {
		return nil, errors.New("dispatcher: event repository is required")
	}
	if deps.Fanout == nil {
		return nil, errors.New("dispatcher: fanout is required")
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	batch := deps.Batch
	if batch <= 0 {
		batch = defaultDrainBatch
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		events:   deps.Events,
		fanout:   deps.Fanout,
		mirror:   deps.Mirror,
		interval: interval,
		batch:    batch,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Run drains the outbox until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox drain failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain processes one batch of pending events and reports how many were settled.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	events, err := d.events.ListPending(ctx, d.batch)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return settled, err
		}

		if err := d.fanout.Deliver(ctx, event); err != nil {
			if markErr := d.events.MarkFailed(ctx, event.ID, err.Error(), d.clock()); markErr != nil {
				d.logger.Error("outbox settle failed",
					zap.String("eventId", event.ID),
					zap.Error(markErr),
				)
			}
			continue
		}

		if err := d.events.MarkDispatched(ctx, event.ID, d.clock()); err != nil {
			d.logger.Error("outbox settle failed",
				zap.String("eventId", event.ID),
				zap.Error(err),
			)
			continue
		}
		settled++

		if d.mirror != nil {
			if _, err := d.mirror.PublishOrderEvent(ctx, event); err != nil {
				d.logger.Warn("event mirror failed",
					zap.String("eventId", event.ID),
					zap.Error(err),
				)
			}
		}
	}
	return settled, nil
}
