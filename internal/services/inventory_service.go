package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryInsufficientStock indicates at least one requested line exceeds availability.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryStockNotFound indicates the SKU has no stock record.
	ErrInventoryStockNotFound = errors.New("inventory: stock not found")
)

// InsufficientStockError carries the complete set of offending SKUs so callers
// can report the whole shortfall, not just the first line that failed. It
// unwraps to ErrInventoryInsufficientStock.
type InsufficientStockError struct {
	SKUs []string
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("inventory: insufficient stock for %s", strings.Join(e.SKUs, ", "))
}

// Unwrap ties the typed error into the sentinel chain.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInventoryInsufficientStock
}

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Stocks repositories.StockRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.StockRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Stocks == nil {
		return nil, errors.New("inventory service: stock repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo: deps.Stocks,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *inventoryService) GetStock(ctx context.Context, sku string) (ProductStock, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return ProductStock{}, fmt.Errorf("%w: sku is required", ErrInventoryInvalidInput)
	}
	stock, err := s.repo.Get(ctx, sku)
	if err != nil {
		return ProductStock{}, s.mapRepositoryError(err)
	}
	return stock, nil
}

func (s *inventoryService) ConfigureStock(ctx context.Context, cmd ConfigureStockCommand) (ProductStock, error) {
	sku := strings.TrimSpace(cmd.SKU)
	if sku == "" {
		return ProductStock{}, fmt.Errorf("%w: sku is required", ErrInventoryInvalidInput)
	}
	if cmd.CountInStock < 0 {
		return ProductStock{}, fmt.Errorf("%w: count for %s must be >= 0", ErrInventoryInvalidInput, sku)
	}

	stock, err := s.repo.Set(ctx, domain.ProductStock{
		SKU:          sku,
		ProductRef:   strings.TrimSpace(cmd.ProductRef),
		CountInStock: cmd.CountInStock,
		UpdatedAt:    s.now(),
	})
	if err != nil {
		return ProductStock{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "inventory.stock.configured", map[string]any{
		"sku":     sku,
		"count":   stock.CountInStock,
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	return stock, nil
}

func (s *inventoryService) ReserveStocks(ctx context.Context, cmd StockBatchCommand) (map[string]ProductStock, error) {
	lines, err := normaliseStockLines(cmd.Lines)
	if err != nil {
		return nil, err
	}
	stocks, err := s.repo.Reserve(ctx, lines, s.now())
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	s.logBatch(ctx, "inventory.stocks.reserved", lines, cmd)
	return stocks, nil
}

func (s *inventoryService) ReleaseStocks(ctx context.Context, cmd StockBatchCommand) (map[string]ProductStock, error) {
	lines, err := normaliseStockLines(cmd.Lines)
	if err != nil {
		return nil, err
	}
	stocks, err := s.repo.Release(ctx, lines, s.now())
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	s.logBatch(ctx, "inventory.stocks.released", lines, cmd)
	return stocks, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[ProductStock], error) {
	page, err := s.repo.ListLowStock(ctx, repositories.StockLowQuery{
		Threshold:  filter.Threshold,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[ProductStock]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *inventoryService) now() time.Time {
	return s.clock()
}

func (s *inventoryService) logBatch(ctx context.Context, event string, lines []StockLine, cmd StockBatchCommand) {
	skus := make([]string, 0, len(lines))
	for _, line := range lines {
		skus = append(skus, line.SKU)
	}
	fields := map[string]any{"skus": skus}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		fields["reason"] = reason
	}
	if actor := strings.TrimSpace(cmd.ActorID); actor != "" {
		fields["actorId"] = actor
	}
	s.logger(ctx, event, fields)
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return &InsufficientStockError{SKUs: invErr.SKUs}
		case repositories.InventoryErrorStockNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryStockNotFound, invErr.Error())
		case repositories.InventoryErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, invErr.Message)
		}
	}

	return err
}

// normaliseStockLines aggregates duplicate SKUs and returns lines in a
// deterministic order.
func normaliseStockLines(lines []StockLine) ([]StockLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInventoryInvalidInput)
	}

	aggregated := make(map[string]*StockLine)
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" {
			return nil, fmt.Errorf("%w: line sku is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInventoryInvalidInput, sku)
		}
		ref := strings.TrimSpace(line.ProductRef)
		agg, ok := aggregated[sku]
		if !ok {
			agg = &StockLine{SKU: sku, ProductRef: ref}
			aggregated[sku] = agg
		} else if ref != "" && agg.ProductRef != "" && agg.ProductRef != ref {
			return nil, fmt.Errorf("%w: conflicting product references for sku %s", ErrInventoryInvalidInput, sku)
		}
		agg.Quantity += line.Quantity
	}

	result := make([]StockLine, 0, len(aggregated))
	for _, line := range aggregated {
		result = append(result, *line)
	}
	if len(result) > 1 {
		sort.Slice(result, func(i, j int) bool { return result[i].SKU < result[j].SKU })
	}
	return result, nil
}
