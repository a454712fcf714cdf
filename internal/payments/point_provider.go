package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PointProvider settles orders entirely from the member's point balance.
// There is no external gateway: Approve synthesises the payload the paired
// Parse reads back, and Cancel is a no-op because the ledger reversal is
// handled by the point service.
type PointProvider struct {
	clock func() time.Time
}

type pointPayload struct {
	OrderUUID  string    `json:"orderUuid"`
	Amount     int64     `json:"amount"`
	ApprovedAt time.Time `json:"approvedAt"`
}

// NewPointProvider constructs a point settlement provider.
func NewPointProvider(clock func() time.Time) *PointProvider {
	if clock == nil {
		clock = time.Now
	}
	return &PointProvider{clock: func() time.Time { return clock().UTC() }}
}

// Approve records the settlement moment without contacting any gateway.
func (p *PointProvider) Approve(_ context.Context, req ApproveRequest) (json.RawMessage, error) {
	if p == nil {
		return nil, errors.New("point: provider is nil")
	}
	data, err := json.Marshal(pointPayload{
		OrderUUID:  req.OrderUUID,
		Amount:     req.Amount,
		ApprovedAt: p.clock(),
	})
	if err != nil {
		return nil, fmt.Errorf("point: marshal payload: %w", err)
	}
	return data, nil
}

// Cancel is a no-op. Point reversals are ledger entries, not gateway calls.
func (p *PointProvider) Cancel(context.Context, CancelRequest) error {
	return nil
}

// Parse reads the synthesised settlement payload back into an Approval.
// The payment key stays empty because no gateway reference exists.
func (p *PointProvider) Parse(_ context.Context, payload json.RawMessage) (Approval, error) {
	var body pointPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return Approval{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	approvedAt := body.ApprovedAt
	if approvedAt.IsZero() {
		approvedAt = p.clock()
	}
	return Approval{
		Amount:      body.Amount,
		RequestedAt: approvedAt,
		ApprovedAt:  approvedAt,
	}, nil
}
