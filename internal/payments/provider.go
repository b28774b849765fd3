package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment intent states shared across gateways.
type Status string

const (
	// StatusPending indicates the intent is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a terminal failure.
	StatusFailed Status = "failed"
)

// ErrGatewayFailure is returned when the gateway rejects or cannot service a request.
var ErrGatewayFailure = errors.New("payments: gateway failure")

// IntentRequest captures the payload required to open a payment intent for an order.
type IntentRequest struct {
	OrderID        string
	OrderNumber    string
	Amount         int64
	Currency       string
	CustomerID     string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent represents the gateway-side record returned to the client for collection.
type Intent struct {
	GatewayOrderID string
	ClientSecret   string
	Status         Status
	Amount         int64
	Currency       string
	CreatedAt      time.Time
	Raw            map[string]any
}

// Gateway defines the contract payment adapters implement.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	LookupIntent(ctx context.Context, gatewayOrderID string) (Intent, error)
}
