package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/oakmart/api/internal/domain"
	pfirestore "github.com/oakmart/api/internal/platform/firestore"
	"github.com/oakmart/api/internal/platform/pagination"
	"github.com/oakmart/api/internal/repositories"
)

const productStocksCollection = "productStocks"

// StockRepository implements repositories.StockRepository backed by Firestore.
// Batch operations run in a single transaction: every stock document is read
// and validated before any write, so a shortfall on one line leaves the whole
// batch untouched.
type StockRepository struct {
	provider *pfirestore.Provider
	stocks   *pfirestore.BaseRepository[productStockDocument]
}

// NewStockRepository constructs a Firestore-backed stock repository.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	stocks := pfirestore.NewBaseRepository[productStockDocument](provider, productStocksCollection, nil, nil)
	return &StockRepository{provider: provider, stocks: stocks}, nil
}

// Get returns the stock projection for a single SKU.
func (r *StockRepository) Get(ctx context.Context, sku string) (domain.ProductStock, error) {
	if r == nil || r.stocks == nil {
		return domain.ProductStock{}, errors.New("stock repository not initialised")
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.ProductStock{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "stock get: sku is required", nil, nil)
	}

	doc, err := r.stocks.Get(ctx, sku)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.ProductStock{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock %s not found", sku), []string{sku}, err)
		}
		return domain.ProductStock{}, wrapInventoryError("stocks.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Set creates or replaces the stock level for a SKU.
func (r *StockRepository) Set(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error) {
	if r == nil || r.stocks == nil {
		return domain.ProductStock{}, errors.New("stock repository not initialised")
	}
	sku := strings.TrimSpace(stock.SKU)
	if sku == "" {
		return domain.ProductStock{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "stock set: sku is required", nil, nil)
	}
	if stock.CountInStock < 0 {
		return domain.ProductStock{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, fmt.Sprintf("stock set: count for %s must be >= 0", sku), []string{sku}, nil)
	}

	doc := productStockDocument{
		SKU:          sku,
		ProductRef:   strings.TrimSpace(stock.ProductRef),
		CountInStock: stock.CountInStock,
		UpdatedAt:    stock.UpdatedAt.UTC(),
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	if _, err := r.stocks.Set(ctx, sku, doc); err != nil {
		return domain.ProductStock{}, wrapInventoryError("stocks.set", err)
	}
	return doc.toDomain(sku), nil
}

// Reserve decrements counts for every line in one transaction. When any line
// exceeds availability the transaction aborts with an error naming every
// offending SKU and no document is written.
func (r *StockRepository) Reserve(ctx context.Context, lines []domain.StockLine, now time.Time) (map[string]domain.ProductStock, error) {
	return r.adjust(ctx, "stocks.reserve", lines, now, false)
}

// Release restores counts for every line in one transaction.
func (r *StockRepository) Release(ctx context.Context, lines []domain.StockLine, now time.Time) (map[string]domain.ProductStock, error) {
	return r.adjust(ctx, "stocks.release", lines, now, true)
}

func (r *StockRepository) adjust(ctx context.Context, op string, lines []domain.StockLine, now time.Time, restore bool) (map[string]domain.ProductStock, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("stock repository not initialised")
	}
	if len(lines) == 0 {
		return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "stock adjust: at least one line is required", nil, nil)
	}
	for _, line := range lines {
		if strings.TrimSpace(line.SKU) == "" {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "stock adjust: sku is required", nil, nil)
		}
		if line.Quantity <= 0 {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, fmt.Sprintf("stock adjust: quantity for %s must be > 0", line.SKU), []string{line.SKU}, nil)
		}
	}

	ts := now.UTC()
	var result map[string]domain.ProductStock
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, refs, err := r.readStocks(ctx, tx, lines)
		if err != nil {
			return err
		}
		updated, err := applyStockLines(docs, lines, restore, ts)
		if err != nil {
			return err
		}
		result = make(map[string]domain.ProductStock, len(updated))
		for sku, doc := range updated {
			if err := tx.Set(refs[sku], doc); err != nil {
				return err
			}
			result[sku] = doc.toDomain(sku)
		}
		return nil
	})
	if err != nil {
		return nil, wrapInventoryError(op, err)
	}
	return result, nil
}

// ApplyLines validates and mutates already-read stock documents inside a
// caller-owned transaction. OrderRepository uses this to fold stock writes
// into the same transaction as an order status update.
func (r *StockRepository) ApplyLines(ctx context.Context, tx *firestore.Transaction, lines []domain.StockLine, restore bool, now time.Time) (map[string]domain.ProductStock, error) {
	docs, refs, err := r.readStocks(ctx, tx, lines)
	if err != nil {
		return nil, err
	}
	updated, err := applyStockLines(docs, lines, restore, now.UTC())
	if err != nil {
		return nil, err
	}
	result := make(map[string]domain.ProductStock, len(updated))
	for sku, doc := range updated {
		if err := tx.Set(refs[sku], doc); err != nil {
			return nil, err
		}
		result[sku] = doc.toDomain(sku)
	}
	return result, nil
}

func (r *StockRepository) readStocks(ctx context.Context, tx *firestore.Transaction, lines []domain.StockLine) (map[string]productStockDocument, map[string]*firestore.DocumentRef, error) {
	docs := make(map[string]productStockDocument, len(lines))
	refs := make(map[string]*firestore.DocumentRef, len(lines))
	var missing []string
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if _, seen := docs[sku]; seen {
			continue
		}
		ref, err := r.stocks.DocumentRef(ctx, sku)
		if err != nil {
			return nil, nil, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				missing = append(missing, sku)
				continue
			}
			return nil, nil, err
		}
		var doc productStockDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, nil, fmt.Errorf("decode stock %s: %w", sku, err)
		}
		docs[sku] = doc
		refs[sku] = ref
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, nil, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "stock records not found", missing, nil)
	}
	return docs, refs, nil
}

// applyStockLines aggregates duplicate SKUs, checks every line before mutating
// any, and returns the adjusted documents. Shortfalls are collected so the
// error names the complete set of offending SKUs.
func applyStockLines(docs map[string]productStockDocument, lines []domain.StockLine, restore bool, now time.Time) (map[string]productStockDocument, error) {
	wanted := make(map[string]int, len(lines))
	for _, line := range lines {
		wanted[strings.TrimSpace(line.SKU)] += line.Quantity
	}

	if !restore {
		var short []string
		for sku, qty := range wanted {
			if docs[sku].CountInStock < qty {
				short = append(short, sku)
			}
		}
		if len(short) > 0 {
			sort.Strings(short)
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, "insufficient stock", short, nil)
		}
	}

	updated := make(map[string]productStockDocument, len(wanted))
	for sku, qty := range wanted {
		doc := docs[sku]
		if restore {
			doc.CountInStock += qty
		} else {
			doc.CountInStock -= qty
		}
		doc.SKU = sku
		doc.UpdatedAt = now
		updated[sku] = doc
	}
	return updated, nil
}

// ListLowStock pages through SKUs at or below the threshold, lowest first.
func (r *StockRepository) ListLowStock(ctx context.Context, query repositories.StockLowQuery) (domain.CursorPage[domain.ProductStock], error) {
	if r == nil || r.stocks == nil {
		return domain.CursorPage[domain.ProductStock]{}, errors.New("stock repository not initialised")
	}

	pageSize := query.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	threshold := query.Threshold
	if threshold < 0 {
		threshold = 0
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.ProductStock]{}, wrapInventoryError("stocks.lowStock", err)
	}

	firestoreQuery := client.Collection(productStocksCollection).Query.
		Where("countInStock", "<=", threshold).
		OrderBy("countInStock", firestore.Asc).
		OrderBy("sku", firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(query.Pagination.PageToken); token != "" {
		decoded, err := decodeStockPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.ProductStock]{}, wrapInventoryError("stocks.lowStock", err)
		}
		firestoreQuery = firestoreQuery.StartAfter(decoded.CountInStock, decoded.SKU)
	}

	iter := firestoreQuery.Documents(ctx)
	defer iter.Stop()

	var stocks []domain.ProductStock
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.ProductStock]{}, wrapInventoryError("stocks.lowStock", err)
		}
		var doc productStockDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.ProductStock]{}, fmt.Errorf("decode stock %s: %w", snap.Ref.ID, err)
		}
		stocks = append(stocks, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(stocks) > pageSize
	if hasMore {
		stocks = stocks[:pageSize]
	}
	var nextToken string
	if hasMore && len(stocks) > 0 {
		last := stocks[len(stocks)-1]
		encoded, err := encodeStockPageToken(stockPageToken{SKU: last.SKU, CountInStock: last.CountInStock})
		if err != nil {
			return domain.CursorPage[domain.ProductStock]{}, wrapInventoryError("stocks.lowStock", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.ProductStock]{
		Items:         stocks,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type productStockDocument struct {
	SKU          string    `firestore:"sku"`
	ProductRef   string    `firestore:"productRef"`
	CountInStock int       `firestore:"countInStock"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (s productStockDocument) toDomain(id string) domain.ProductStock {
	return domain.ProductStock{
		SKU:          id,
		ProductRef:   strings.TrimSpace(s.ProductRef),
		CountInStock: s.CountInStock,
		UpdatedAt:    s.UpdatedAt,
	}
}

type stockPageToken struct {
	SKU          string
	CountInStock int
}

// Page tokens are pagination cursors whose StartAfter values mirror the
// ListLowStock order-by clause: countInStock, then sku.
func encodeStockPageToken(token stockPageToken) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{token.CountInStock, token.SKU},
	})
}

func decodeStockPageToken(encoded string) (*stockPageToken, error) {
	cursor, err := pagination.DecodeToken(encoded)
	if err != nil {
		return nil, err
	}
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	count, ok := cursorInt(cursor.StartAfter[0])
	if !ok {
		return nil, fmt.Errorf("%w: cursor count is not numeric", pagination.ErrInvalidPageToken)
	}
	sku, ok := cursor.StartAfter[1].(string)
	if !ok || sku == "" {
		return nil, fmt.Errorf("%w: cursor sku is missing", pagination.ErrInvalidPageToken)
	}
	return &stockPageToken{SKU: sku, CountInStock: count}, nil
}

// cursorInt tolerates the float64 widening JSON decoding introduces.
func cursorInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
