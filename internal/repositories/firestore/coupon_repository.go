package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const couponsCollection = "coupons"

// CouponRepository reads coupon definitions from Firestore.
type CouponRepository struct {
	coupons *pfirestore.BaseRepository[couponDocument]
}

// NewCouponRepository constructs a CouponRepository bound to the provider.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		coupons: pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection, nil, nil),
	}, nil
}

func (r *CouponRepository) FindByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	doc, err := r.coupons.Get(ctx, couponID)
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type couponDocument struct {
	Name         string    `firestore:"name"`
	IssuableFrom time.Time `firestore:"issuableFrom"`
	ExpiresAt    time.Time `firestore:"expiresAt"`
	Active       bool      `firestore:"active"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	return domain.Coupon{
		ID:           id,
		Name:         strings.TrimSpace(d.Name),
		IssuableFrom: d.IssuableFrom,
		ExpiresAt:    d.ExpiresAt,
		Active:       d.Active,
		CreatedAt:    d.CreatedAt,
	}
}
