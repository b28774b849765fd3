package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "github.com/oakmart/api/internal/domain"
)

const defaultChannelTimeout = 10 * time.Second

// FanoutOption customises fanout behaviour.
type FanoutOption func(*Fanout)

// WithChannelTimeout bounds how long each channel may take per event.
func WithChannelTimeout(timeout time.Duration) FanoutOption {
	return func(f *Fanout) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithFanoutLogger injects a logger.
func WithFanoutLogger(logger *zap.Logger) FanoutOption {
	return func(f *Fanout) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Fanout delivers an event to every channel concurrently. Channel failures are
// logged and do not affect sibling channels; the event counts as delivered as
// long as at least one channel succeeded.
type Fanout struct {
	channels []Channel
	timeout  time.Duration
	logger   *zap.Logger
}

// NewFanout constructs a fanout over the given channels.
func NewFanout(channels []Channel, opts ...FanoutOption) (*Fanout, error) {
	if len(channels) == 0 {
		return nil, errors.New("fanout: at least one channel is required")
	}
	for _, channel := range channels {
		if channel == nil {
			return nil, errors.New("fanout: nil channel")
		}
	}

	fanout := &Fanout{
		channels: channels,
		timeout:  defaultChannelTimeout,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(fanout)
		}
	}
	return fanout, nil
}

// Deliver runs every channel for the event. It returns an error only when all
// channels failed, which signals the outbox to retry the event later.
func (f *Fanout) Deliver(ctx context.Context, event domain.OrderEvent) error {
	if f == nil || len(f.channels) == 0 {
		return errors.New("fanout: not initialised")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
		lastErr  error
	)

	wg.Add(len(f.channels))
	for _, channel := range f.channels {
		channel := channel
		go func() {
			defer wg.Done()

			channelCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			if err := channel.Deliver(channelCtx, event); err != nil {
				f.logger.Warn("notification channel failed",
					zap.String("channel", channel.Name()),
					zap.String("eventId", event.ID),
					zap.String("eventType", string(event.Type)),
					zap.Error(err),
				)
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if failures == len(f.channels) {
		return fmt.Errorf("fanout: all %d channels failed for event %s: %w", failures, event.ID, lastErr)
	}
	return nil
}
