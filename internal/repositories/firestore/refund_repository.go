package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const refundsCollection = "refunds"

// RefundRepository stores refund requests. Documents are keyed by order id,
// one refund request per order at most.
type RefundRepository struct {
	refunds *pfirestore.BaseRepository[refundDocument]
}

// NewRefundRepository constructs a RefundRepository bound to the provider.
func NewRefundRepository(provider *pfirestore.Provider) (*RefundRepository, error) {
	if provider == nil {
		return nil, errors.New("refund repository requires firestore provider")
	}
	return &RefundRepository{
		refunds: pfirestore.NewBaseRepository[refundDocument](provider, refundsCollection, nil, nil),
	}, nil
}

func (r *RefundRepository) Insert(ctx context.Context, refund domain.Refund) error {
	return r.refunds.Create(ctx, refund.OrderID, newRefundDocument(refund))
}

func (r *RefundRepository) Update(ctx context.Context, refund domain.Refund) error {
	return r.refunds.Update(ctx, refund.OrderID, newRefundDocument(refund))
}

func (r *RefundRepository) FindByOrder(ctx context.Context, orderID string) (domain.Refund, error) {
	doc, err := r.refunds.Get(ctx, orderID)
	if err != nil {
		return domain.Refund{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type refundDocument struct {
	RefundID   string     `firestore:"refundId"`
	Reason     string     `firestore:"reason"`
	Details    string     `firestore:"details,omitempty"`
	Amount     int64      `firestore:"amount"`
	Approved   bool       `firestore:"approved"`
	ApprovedBy string     `firestore:"approvedBy,omitempty"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	ApprovedAt *time.Time `firestore:"approvedAt,omitempty"`
}

func newRefundDocument(refund domain.Refund) refundDocument {
	return refundDocument{
		RefundID:   strings.TrimSpace(refund.ID),
		Reason:     strings.TrimSpace(refund.Reason),
		Details:    strings.TrimSpace(refund.Details),
		Amount:     refund.Amount,
		Approved:   refund.Approved,
		ApprovedBy: strings.TrimSpace(refund.ApprovedBy),
		CreatedAt:  refund.CreatedAt.UTC(),
		ApprovedAt: refund.ApprovedAt,
	}
}

func (d refundDocument) toDomain(orderID string) domain.Refund {
	return domain.Refund{
		ID:         d.RefundID,
		OrderID:    orderID,
		Reason:     d.Reason,
		Details:    d.Details,
		Amount:     d.Amount,
		Approved:   d.Approved,
		ApprovedBy: d.ApprovedBy,
		CreatedAt:  d.CreatedAt,
		ApprovedAt: d.ApprovedAt,
	}
}
