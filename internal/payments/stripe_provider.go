package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Clients  *stripeClients
}

// StripeProvider implements Processor and Parser using Stripe Payment Intents.
// The payment key stored on orders is the intent ID.
type StripeProvider struct {
	api    stripeClients
	clock  func() time.Time
	logger StripeLogger
}

// NewStripeProvider constructs a Stripe provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:    clients,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// Approve confirms the Payment Intent identified by the request's payment key.
func (p *StripeProvider) Approve(ctx context.Context, req ApproveRequest) (json.RawMessage, error) {
	if p == nil {
		return nil, errors.New("stripe: provider is nil")
	}

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	intent, err := p.api.intents.Confirm(req.PaymentKey, params)
	if err != nil {
		return nil, fmt.Errorf("%w: confirm payment intent: %v", ErrGatewayFailure, err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("%w: payment intent %s in status %s", ErrGatewayFailure, intent.ID, intent.Status)
	}
	if intent.Amount != req.Amount {
		return nil, fmt.Errorf("%w: amount mismatch: intent %d, order %d", ErrGatewayFailure, intent.Amount, req.Amount)
	}

	p.logger(ctx, "payments.stripe.intent.confirmed", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
	})

	data, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payment intent: %v", ErrMalformedResponse, err)
	}
	return data, nil
}

// Cancel refunds the captured Payment Intent.
func (p *StripeProvider) Cancel(ctx context.Context, req CancelRequest) error {
	if p == nil {
		return errors.New("stripe: provider is nil")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentKey),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}

	if _, err := p.api.refunds.New(params); err != nil {
		return fmt.Errorf("%w: refund payment intent: %v", ErrGatewayFailure, err)
	}

	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": req.PaymentKey,
		"amount":        req.Amount,
	})
	return nil
}

// Parse extracts the approval fields from a confirmed Payment Intent payload.
func (p *StripeProvider) Parse(_ context.Context, payload json.RawMessage) (Approval, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(payload, &intent); err != nil {
		return Approval{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if intent.ID == "" {
		return Approval{}, fmt.Errorf("%w: missing payment intent id", ErrMalformedResponse)
	}

	now := p.clock()
	requestedAt := now
	if intent.Created != 0 {
		requestedAt = time.Unix(intent.Created, 0).UTC()
	}
	approvedAt := now
	if charge := intent.LatestCharge; charge != nil && charge.Created != 0 {
		approvedAt = time.Unix(charge.Created, 0).UTC()
	}

	return Approval{
		PaymentKey:  intent.ID,
		Amount:      intent.Amount,
		RequestedAt: requestedAt,
		ApprovedAt:  approvedAt,
	}, nil
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
