package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oakmart/api/internal/repositories"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the requested counter cannot increment further due to max bounds.
	ErrCounterExhausted = errors.New("counter: exhausted")
	// ErrCounterConflict indicates concurrent allocations exhausted the bounded retry budget.
	ErrCounterConflict = errors.New("counter: conflict")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
}

type counterService struct {
	repo  repositories.CounterRepository
	clock func() time.Time
}

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &counterService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *counterService) Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error) {
	scope = strings.TrimSpace(scope)
	name = strings.TrimSpace(name)
	if scope == "" {
		return CounterValue{}, fmt.Errorf("%w: scope is required", ErrCounterInvalidInput)
	}
	if name == "" {
		return CounterValue{}, fmt.Errorf("%w: name is required", ErrCounterInvalidInput)
	}

	counterID := scope + ":" + name

	value, err := s.repo.Next(ctx, counterID, opts.Step)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			switch counterErr.Code {
			case repositories.CounterErrorInvalidInput:
				return CounterValue{}, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
			case repositories.CounterErrorExhausted:
				return CounterValue{}, fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
			case repositories.CounterErrorConflict:
				return CounterValue{}, fmt.Errorf("%w: %s", ErrCounterConflict, counterErr.Message)
			}
		}
		return CounterValue{}, err
	}

	return CounterValue{Sequence: value, Formatted: formatCounterValue(value, opts)}, nil
}

// NextOrderNumber allocates the next number in the month bucket derived from
// now. Numbers are monotonic within a bucket; buckets restart each month so
// sequences stay short and human readable.
func (s *counterService) NextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	if now.IsZero() {
		now = s.clock()
	}
	now = now.UTC()
	bucket := now.Format("0601")
	opts := CounterGenerationOptions{
		Step: 1,
		Formatter: func(seq int64) string {
			return fmt.Sprintf("ORD-%s-%04d", bucket, seq)
		},
	}
	result, err := s.Next(ctx, "orders", bucket, opts)
	if err != nil {
		return "", err
	}
	return result.Formatted, nil
}

func (s *counterService) Configure(ctx context.Context, scope, name string, cfg CounterSettings) error {
	scope = strings.TrimSpace(scope)
	name = strings.TrimSpace(name)
	if scope == "" || name == "" {
		return fmt.Errorf("%w: scope and name are required", ErrCounterInvalidInput)
	}
	return s.repo.Configure(ctx, scope+":"+name, repositories.CounterConfig{
		Step:         cfg.Step,
		MaxValue:     cfg.MaxValue,
		InitialValue: cfg.InitialValue,
	})
}

func formatCounterValue(value int64, opts CounterGenerationOptions) string {
	if opts.Formatter != nil {
		return opts.Formatter(value)
	}

	formatted := strconv.FormatInt(value, 10)
	if opts.PadLength > 0 {
		formatted = fmt.Sprintf("%0*d", opts.PadLength, value)
	}
	if opts.Prefix != "" {
		formatted = opts.Prefix + formatted
	}
	return formatted
}
