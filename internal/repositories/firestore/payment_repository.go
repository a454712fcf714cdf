package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const paymentsCollection = "payments"

// PaymentRepository stores at most one payment per order. Documents are keyed
// by order id so a second Insert for the same order fails with a conflict.
type PaymentRepository struct {
	payments *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a PaymentRepository bound to the provider.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		payments: pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil, nil),
	}, nil
}

func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	return r.payments.Create(ctx, payment.OrderID, newPaymentDocument(payment))
}

func (r *PaymentRepository) DeleteByOrder(ctx context.Context, orderID string) error {
	return r.payments.Delete(ctx, orderID)
}

func (r *PaymentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	doc, err := r.payments.Get(ctx, orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type paymentDocument struct {
	PaymentID     string    `firestore:"paymentId"`
	PaymentKey    *string   `firestore:"paymentKey,omitempty"`
	UsedPoint     int64     `firestore:"usedPoint"`
	DiscountPrice int64     `firestore:"discountPrice"`
	PaymentAmount int64     `firestore:"paymentAmount"`
	Type          string    `firestore:"type"`
	RequestedAt   time.Time `firestore:"requestedAt"`
	ApprovedAt    time.Time `firestore:"approvedAt"`
}

func newPaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		PaymentID:     strings.TrimSpace(payment.ID),
		PaymentKey:    payment.PaymentKey,
		UsedPoint:     payment.UsedPoint,
		DiscountPrice: payment.DiscountPrice,
		PaymentAmount: payment.PaymentAmount,
		Type:          string(payment.Type),
		RequestedAt:   payment.RequestedAt.UTC(),
		ApprovedAt:    payment.ApprovedAt.UTC(),
	}
}

func (d paymentDocument) toDomain(orderID string) domain.Payment {
	return domain.Payment{
		ID:            d.PaymentID,
		OrderID:       orderID,
		PaymentKey:    d.PaymentKey,
		UsedPoint:     d.UsedPoint,
		DiscountPrice: d.DiscountPrice,
		PaymentAmount: d.PaymentAmount,
		Type:          domain.PaymentType(d.Type),
		RequestedAt:   d.RequestedAt,
		ApprovedAt:    d.ApprovedAt,
	}
}
