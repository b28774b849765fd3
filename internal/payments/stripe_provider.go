package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Intents  stripePaymentIntentAPI
}

// StripeGateway implements the Gateway interface over the Stripe PaymentIntents API.
type StripeGateway struct {
	intents stripePaymentIntentAPI
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeGateway constructs a Stripe Gateway using the given configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	intents := cfg.Intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		intents: intents,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent opens a payment intent for the order amount.
func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if g == nil {
		return Intent{}, errors.New("stripe: gateway is nil")
	}
	if req.Amount <= 0 {
		return Intent{}, fmt.Errorf("%w: amount must be positive", ErrGatewayFailure)
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return Intent{}, fmt.Errorf("%w: currency is required", ErrGatewayFailure)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if customer := strings.TrimSpace(req.CustomerID); customer != "" {
		params.Customer = stripe.String(customer)
	}
	if req.OrderID != "" {
		params.AddMetadata("orderId", req.OrderID)
	}
	if req.OrderNumber != "" {
		params.AddMetadata("orderNumber", req.OrderNumber)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		g.logger(ctx, "payments.stripe.intent_failed", map[string]any{
			"orderId": req.OrderID,
			"error":   err.Error(),
		})
		return Intent{}, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}

	intent := mapStripeIntent(pi)
	g.logger(ctx, "payments.stripe.intent_created", map[string]any{
		"orderId":        req.OrderID,
		"gatewayOrderId": intent.GatewayOrderID,
		"amount":         intent.Amount,
	})
	return intent, nil
}

// LookupIntent fetches the current gateway state for reconciliation.
func (g *StripeGateway) LookupIntent(ctx context.Context, gatewayOrderID string) (Intent, error) {
	if g == nil {
		return Intent{}, errors.New("stripe: gateway is nil")
	}
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return Intent{}, fmt.Errorf("%w: gateway order id is required", ErrGatewayFailure)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.intents.Get(gatewayOrderID, params)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	return mapStripeIntent(pi), nil
}

func mapStripeIntent(pi *stripe.PaymentIntent) Intent {
	if pi == nil {
		return Intent{}
	}
	intent := Intent{
		GatewayOrderID: pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         mapStripeIntentStatus(pi.Status),
		Amount:         pi.Amount,
		Currency:       strings.ToUpper(string(pi.Currency)),
	}
	if pi.Created > 0 {
		intent.CreatedAt = time.Unix(pi.Created, 0).UTC()
	}
	return intent
}

func mapStripeIntentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}
