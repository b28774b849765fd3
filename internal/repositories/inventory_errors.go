package repositories

import (
	"fmt"
	"strings"
)

// InventoryErrorCode enumerates repository error causes for stock ledger operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates one or more lines exceed availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorStockNotFound indicates the SKU does not have a stock record.
	InventoryErrorStockNotFound InventoryErrorCode = "inventory_stock_not_found"
	// InventoryErrorInvalidInput indicates the caller supplied invalid lines.
	InventoryErrorInvalidInput InventoryErrorCode = "inventory_invalid_input"
)

// InventoryError wraps stock ledger failures with machine readable codes.
// SKUs carries every offending line when the code concerns specific items,
// so callers can report the full shortfall rather than the first one hit.
type InventoryError struct {
	Op      string
	Code    InventoryErrorCode
	Message string
	SKUs    []string
	Err     error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if len(e.SKUs) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(e.SKUs, ", "))
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, skus []string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		SKUs:    skus,
		Err:     err,
	}
}
