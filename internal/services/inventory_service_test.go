package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

type stubStockRepository struct {
	getFn     func(ctx context.Context, sku string) (domain.ProductStock, error)
	setFn     func(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error)
	reserveFn func(ctx context.Context, lines []domain.StockLine, now time.Time) (map[string]domain.ProductStock, error)
	releaseFn func(ctx context.Context, lines []domain.StockLine, now time.Time) (map[string]domain.ProductStock, error)
	listFn    func(ctx context.Context, query repositories.StockLowQuery) (domain.CursorPage[domain.ProductStock], error)
}

func (s *stubStockRepository) Get(ctx context.Context, sku string) (domain.ProductStock, error) {
	if s.getFn == nil {
		return domain.ProductStock{}, errors.New("getFn not configured")
	}
	return s.getFn(ctx, sku)
}

func (s *stubStockRepository) Set(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error) {
	if s.setFn == nil {
		return stock, nil
	}
	return s.setFn(ctx, stock)
}

func (s *stubStockRepository) Reserve(ctx context.Context, lines []domain.StockLine, now time.Time) (map[string]domain.ProductStock, error) {
	if s.reserveFn == nil {
		return nil, errors.New("reserveFn not configured")
	}
	return s.reserveFn(ctx, lines, now)
}

func (s *stubStockRepository) Release(ctx context.Context, lines []domain.StockLine, now time.Time) (map[string]domain.ProductStock, error) {
	if s.releaseFn == nil {
		return nil, errors.New("releaseFn not configured")
	}
	return s.releaseFn(ctx, lines, now)
}

func (s *stubStockRepository) ListLowStock(ctx context.Context, query repositories.StockLowQuery) (domain.CursorPage[domain.ProductStock], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.ProductStock]{}, nil
	}
	return s.listFn(ctx, query)
}

func newTestInventoryService(t *testing.T, deps InventoryServiceDeps) InventoryService {
	t.Helper()
	if deps.Stocks == nil {
		deps.Stocks = &stubStockRepository{}
	}
	svc, err := NewInventoryService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing inventory service: %v", err)
	}
	return svc
}

func TestInventoryServiceGetStockTrimsSKU(t *testing.T) {
	repo := &stubStockRepository{
		getFn: func(_ context.Context, sku string) (domain.ProductStock, error) {
			if sku != "SKU-BREAD" {
				t.Fatalf("expected trimmed sku, got %q", sku)
			}
			return domain.ProductStock{SKU: sku, CountInStock: 12}, nil
		},
	}
	svc := newTestInventoryService(t, InventoryServiceDeps{Stocks: repo})

	stock, err := svc.GetStock(context.Background(), " SKU-BREAD ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stock.CountInStock != 12 {
		t.Fatalf("expected count 12, got %d", stock.CountInStock)
	}
}

func TestInventoryServiceGetStockRequiresSKU(t *testing.T) {
	svc := newTestInventoryService(t, InventoryServiceDeps{})
	if _, err := svc.GetStock(context.Background(), "  "); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
	}
}

func TestInventoryServiceGetStockMapsMissingRecord(t *testing.T) {
	repo := &stubStockRepository{
		getFn: func(context.Context, string) (domain.ProductStock, error) {
			return domain.ProductStock{}, repositories.NewInventoryError(
				repositories.InventoryErrorStockNotFound, "no record", []string{"SKU-GONE"}, nil)
		},
	}
	svc := newTestInventoryService(t, InventoryServiceDeps{Stocks: repo})

	if _, err := svc.GetStock(context.Background(), "SKU-GONE"); !errors.Is(err, ErrInventoryStockNotFound) {
		t.Fatalf("expected ErrInventoryStockNotFound, got %v", err)
	}
}

func TestInventoryServiceConfigureStockPersistsLevel(t *testing.T) {
	now := time.Date(2025, 2, 3, 7, 0, 0, 0, time.UTC)
	var saved domain.ProductStock
	repo := &stubStockRepository{
		setFn: func(_ context.Context, stock domain.ProductStock) (domain.ProductStock, error) {
			saved = stock
			return stock, nil
		},
	}
	svc := newTestInventoryService(t, InventoryServiceDeps{
		Stocks: repo,
		Clock:  func() time.Time { return now },
	})

	stock, err := svc.ConfigureStock(context.Background(), ConfigureStockCommand{
		SKU:          " SKU-CAKE ",
		ProductRef:   "products/cake-1",
		CountInStock: 25,
		ActorID:      "staff-3",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.SKU != "SKU-CAKE" || saved.ProductRef != "products/cake-1" {
		t.Fatalf("unexpected persisted stock %+v", saved)
	}
	if !saved.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated at %v, got %v", now, saved.UpdatedAt)
	}
	if stock.CountInStock != 25 {
		t.Fatalf("expected count 25, got %d", stock.CountInStock)
	}
}

func TestInventoryServiceConfigureStockRejectsNegativeCount(t *testing.T) {
	svc := newTestInventoryService(t, InventoryServiceDeps{})
	_, err := svc.ConfigureStock(context.Background(), ConfigureStockCommand{
		SKU:          "SKU-1",
		CountInStock: -1,
	})
	if !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
	}
}

func TestInventoryServiceReserveAggregatesAndSortsLines(t *testing.T) {
	now := time.Date(2025, 2, 3, 7, 0, 0, 0, time.UTC)
	var captured []domain.StockLine
	repo := &stubStockRepository{
		reserveFn: func(_ context.Context, lines []domain.StockLine, ts time.Time) (map[string]domain.ProductStock, error) {
			captured = lines
			if !ts.Equal(now) {
				t.Fatalf("expected clock time %v, got %v", now, ts)
			}
			return map[string]domain.ProductStock{
				"SKU-A": {SKU: "SKU-A", CountInStock: 1},
				"SKU-B": {SKU: "SKU-B", CountInStock: 4},
			}, nil
		},
	}
	svc := newTestInventoryService(t, InventoryServiceDeps{
		Stocks: repo,
		Clock:  func() time.Time { return now },
	})

	stocks, err := svc.ReserveStocks(context.Background(), StockBatchCommand{
		Lines: []domain.StockLine{
			{SKU: "SKU-B", Quantity: 1},
			{SKU: " SKU-A ", Quantity: 2},
			{SKU: "SKU-B", Quantity: 3},
		},
		Reason:  "order ord_1 confirmed",
		ActorID: "staff-3",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(captured) != 2 {
		t.Fatalf("expected duplicate lines aggregated, got %v", captured)
	}
	if captured[0].SKU != "SKU-A" || captured[0].Quantity != 2 {
		t.Fatalf("unexpected first line %+v", captured[0])
	}
	if captured[1].SKU != "SKU-B" || captured[1].Quantity != 4 {
		t.Fatalf("unexpected second line %+v", captured[1])
	}
	if len(stocks) != 2 {
		t.Fatalf("expected 2 projections, got %d", len(stocks))
	}
}

func TestInventoryServiceReserveValidatesLines(t *testing.T) {
	cases := map[string]StockBatchCommand{
		"no lines":      {},
		"blank sku":     {Lines: []domain.StockLine{{Quantity: 1}}},
		"zero quantity": {Lines: []domain.StockLine{{SKU: "SKU-1", Quantity: 0}}},
		"conflicting product refs": {Lines: []domain.StockLine{
			{SKU: "SKU-1", ProductRef: "products/a", Quantity: 1},
			{SKU: "SKU-1", ProductRef: "products/b", Quantity: 1},
		}},
	}

	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			svc := newTestInventoryService(t, InventoryServiceDeps{})
			if _, err := svc.ReserveStocks(context.Background(), cmd); !errors.Is(err, ErrInventoryInvalidInput) {
				t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
			}
		})
	}
}

func TestInventoryServiceReserveSurfacesEveryShortSKU(t *testing.T) {
	repo := &stubStockRepository{
		reserveFn: func(context.Context, []domain.StockLine, time.Time) (map[string]domain.ProductStock, error) {
			return nil, repositories.NewInventoryError(
				repositories.InventoryErrorInsufficientStock,
				"insufficient stock",
				[]string{"SKU-A", "SKU-C"},
				nil,
			)
		},
	}
	svc := newTestInventoryService(t, InventoryServiceDeps{Stocks: repo})

	_, err := svc.ReserveStocks(context.Background(), StockBatchCommand{
		Lines: []domain.StockLine{
			{SKU: "SKU-A", Quantity: 5},
			{SKU: "SKU-B", Quantity: 1},
			{SKU: "SKU-C", Quantity: 2},
		},
	})

	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(stockErr.SKUs) != 2 || stockErr.SKUs[0] != "SKU-A" || stockErr.SKUs[1] != "SKU-C" {
		t.Fatalf("expected both offending SKUs, got %v", stockErr.SKUs)
	}
}

func TestInventoryServiceReleaseRestoresCounts(t *testing.T) {
	now := time.Date(2025, 2, 3, 7, 0, 0, 0, time.UTC)
	var captured []domain.StockLine
	repo := &stubStockRepository{
		releaseFn: func(_ context.Context, lines []domain.StockLine, _ time.Time) (map[string]domain.ProductStock, error) {
			captured = lines
			return map[string]domain.ProductStock{
				"SKU-A": {SKU: "SKU-A", CountInStock: 7},
			}, nil
		},
	}
	svc := newTestInventoryService(t, InventoryServiceDeps{
		Stocks: repo,
		Clock:  func() time.Time { return now },
	})

	stocks, err := svc.ReleaseStocks(context.Background(), StockBatchCommand{
		Lines:  []domain.StockLine{{SKU: "SKU-A", Quantity: 2}},
		Reason: "order ord_1 cancelled",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured) != 1 || captured[0].SKU != "SKU-A" || captured[0].Quantity != 2 {
		t.Fatalf("unexpected lines %v", captured)
	}
	if stocks["SKU-A"].CountInStock != 7 {
		t.Fatalf("expected restored count 7, got %d", stocks["SKU-A"].CountInStock)
	}
}

func TestInventoryServiceListLowStockForwardsQuery(t *testing.T) {
	var captured repositories.StockLowQuery
	repo := &stubStockRepository{
		listFn: func(_ context.Context, query repositories.StockLowQuery) (domain.CursorPage[domain.ProductStock], error) {
			captured = query
			return domain.CursorPage[domain.ProductStock]{
				Items:         []domain.ProductStock{{SKU: "SKU-A", CountInStock: 2}},
				NextPageToken: "next",
			}, nil
		},
	}
	svc := newTestInventoryService(t, InventoryServiceDeps{Stocks: repo})

	page, err := svc.ListLowStock(context.Background(), LowStockFilter{
		Threshold:  5,
		Pagination: domain.Pagination{PageSize: 20, PageToken: "tok"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Threshold != 5 || captured.Pagination.PageSize != 20 || captured.Pagination.PageToken != "tok" {
		t.Fatalf("unexpected query %+v", captured)
	}
	if len(page.Items) != 1 || page.NextPageToken != "next" {
		t.Fatalf("unexpected page %+v", page)
	}
}
