package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
)

var (
	// ErrUnsupportedType is returned when no strategy is registered for a payment type.
	ErrUnsupportedType = errors.New("payments: unsupported payment type")
	// ErrGatewayFailure is returned when the PSP rejects or cannot process a call.
	ErrGatewayFailure = errors.New("payments: gateway failure")
	// ErrMalformedResponse is returned when a PSP payload cannot be parsed.
	ErrMalformedResponse = errors.New("payments: malformed gateway response")
)

// ApproveRequest carries the data needed to capture a payment at the gateway.
type ApproveRequest struct {
	OrderUUID      string
	PaymentKey     string
	Amount         int64
	IdempotencyKey string
}

// CancelRequest asks the gateway to void or refund a captured payment.
type CancelRequest struct {
	PaymentKey     string
	Amount         int64
	Reason         string
	IdempotencyKey string
}

// Approval is the normalised result of a gateway capture.
type Approval struct {
	PaymentKey  string
	Amount      int64
	RequestedAt time.Time
	ApprovedAt  time.Time
}

// Processor talks to the PSP. Approve returns the raw gateway payload so the
// paired Parser owns its interpretation.
type Processor interface {
	Approve(ctx context.Context, req ApproveRequest) (json.RawMessage, error)
	Cancel(ctx context.Context, req CancelRequest) error
}

// Parser turns a raw gateway payload into a normalised Approval.
type Parser interface {
	Parse(ctx context.Context, payload json.RawMessage) (Approval, error)
}

// Strategy pairs the processor and parser for one payment type.
type Strategy struct {
	Processor Processor
	Parser    Parser
}

// Registry resolves the strategy for a payment type.
type Registry struct {
	strategies map[domain.PaymentType]Strategy
}

// NewRegistry builds a Registry over the supplied strategies.
func NewRegistry(strategies map[domain.PaymentType]Strategy) (*Registry, error) {
	if len(strategies) == 0 {
		return nil, errors.New("payments: at least one strategy is required")
	}
	copied := make(map[domain.PaymentType]Strategy, len(strategies))
	for t, s := range strategies {
		if s.Processor == nil || s.Parser == nil {
			return nil, fmt.Errorf("payments: incomplete strategy for type %q", t)
		}
		copied[t] = s
	}
	return &Registry{strategies: copied}, nil
}

// Resolve returns the strategy registered for the payment type.
func (r *Registry) Resolve(paymentType domain.PaymentType) (Strategy, error) {
	if r == nil || len(r.strategies) == 0 {
		return Strategy{}, ErrUnsupportedType
	}
	strategy, ok := r.strategies[paymentType]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %s", ErrUnsupportedType, paymentType)
	}
	return strategy, nil
}
