package firestore

import (
	"errors"
	"testing"
	"time"

	"github.com/oakmart/api/internal/platform/pagination"
)

func TestOrderPageTokenRoundTrip(t *testing.T) {
	createdAt := time.Date(2025, 1, 15, 9, 30, 0, 123456789, time.UTC)
	encoded, err := encodeOrderPageToken(orderPageToken{ID: "ord_abc", CreatedAt: createdAt})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encoded == "" {
		t.Fatal("expected non-empty token")
	}

	decoded, err := decodeOrderPageToken(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != "ord_abc" {
		t.Fatalf("unexpected id %q", decoded.ID)
	}
	if !decoded.CreatedAt.Equal(createdAt) {
		t.Fatalf("expected createdAt %v, got %v", createdAt, decoded.CreatedAt)
	}
}

func TestOrderPageTokenRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not base64":   "%%%",
		"not json":     "bm90LWpzb24",
		"wrong shape":  mustEncodeCursor(t, pagination.Cursor{StartAfter: []any{"only-one"}}),
		"non-string":   mustEncodeCursor(t, pagination.Cursor{StartAfter: []any{42, "ord_abc"}}),
		"bad datetime": mustEncodeCursor(t, pagination.Cursor{StartAfter: []any{"yesterday", "ord_abc"}}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeOrderPageToken(token); !errors.Is(err, pagination.ErrInvalidPageToken) {
				t.Fatalf("expected invalid page token error, got %v", err)
			}
		})
	}
}

func TestStockPageTokenRoundTrip(t *testing.T) {
	encoded, err := encodeStockPageToken(stockPageToken{SKU: "SKU-BREAD", CountInStock: 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := decodeStockPageToken(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.SKU != "SKU-BREAD" {
		t.Fatalf("unexpected sku %q", decoded.SKU)
	}
	if decoded.CountInStock != 3 {
		t.Fatalf("unexpected count %d", decoded.CountInStock)
	}
}

func TestStockPageTokenRejectsMissingSKU(t *testing.T) {
	token := mustEncodeCursor(t, pagination.Cursor{StartAfter: []any{3, ""}})
	if _, err := decodeStockPageToken(token); !errors.Is(err, pagination.ErrInvalidPageToken) {
		t.Fatalf("expected invalid page token error, got %v", err)
	}
}

func mustEncodeCursor(t *testing.T, cursor pagination.Cursor) string {
	t.Helper()
	token, err := pagination.EncodeToken(cursor)
	if err != nil {
		t.Fatalf("encode cursor: %v", err)
	}
	return token
}
