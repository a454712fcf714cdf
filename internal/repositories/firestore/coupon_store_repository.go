package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
	"github.com/ink3-shop/api/internal/repositories"
)

const couponStoresCollection = "couponStores"

// CouponStoreRepository stores issued coupon instances in Firestore.
type CouponStoreRepository struct {
	stores *pfirestore.BaseRepository[couponStoreDocument]
}

// NewCouponStoreRepository constructs a CouponStoreRepository bound to the provider.
func NewCouponStoreRepository(provider *pfirestore.Provider) (*CouponStoreRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon store repository requires firestore provider")
	}
	return &CouponStoreRepository{
		stores: pfirestore.NewBaseRepository[couponStoreDocument](provider, couponStoresCollection, nil, nil),
	}, nil
}

func (r *CouponStoreRepository) Insert(ctx context.Context, store domain.CouponStore) error {
	return r.stores.Create(ctx, store.ID, newCouponStoreDocument(store))
}

func (r *CouponStoreRepository) Update(ctx context.Context, store domain.CouponStore) error {
	return r.stores.Update(ctx, store.ID, newCouponStoreDocument(store))
}

func (r *CouponStoreRepository) Delete(ctx context.Context, storeID string) error {
	return r.stores.Delete(ctx, storeID)
}

func (r *CouponStoreRepository) FindByID(ctx context.Context, storeID string) (domain.CouponStore, error) {
	doc, err := r.stores.Get(ctx, storeID)
	if err != nil {
		return domain.CouponStore{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Exists reports whether an issuance matching the dedup key was already
// written. With an origin id the key is (user, coupon, originType, originId);
// without one the pair (user, originType) alone dedups, so any earlier coupon
// of that origin counts regardless of its coupon id.
func (r *CouponStoreRepository) Exists(ctx context.Context, key repositories.CouponStoreDedupKey) (bool, error) {
	docs, err := r.stores.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.
			Where("userId", "==", strings.TrimSpace(key.UserID)).
			Where("originType", "==", string(key.OriginType))
		if key.OriginID != nil {
			query = query.
				Where("couponId", "==", strings.TrimSpace(key.CouponID)).
				Where("originId", "==", strings.TrimSpace(*key.OriginID))
		}
		return query.Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

func (r *CouponStoreRepository) ExistsReady(ctx context.Context, userID string, origin domain.CouponOrigin) (bool, error) {
	docs, err := r.stores.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("userId", "==", strings.TrimSpace(userID)).
			Where("originType", "==", string(origin)).
			Where("status", "==", string(domain.CouponStoreReady)).
			Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

func (r *CouponStoreRepository) ListByUser(ctx context.Context, userID string) ([]domain.CouponStore, error) {
	docs, err := r.stores.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("userId", "==", strings.TrimSpace(userID))
	})
	if err != nil {
		return nil, err
	}
	return couponStoresFromDocs(docs), nil
}

func (r *CouponStoreRepository) ListByCouponAndStatus(ctx context.Context, couponID string, status domain.CouponStoreStatus) ([]domain.CouponStore, error) {
	docs, err := r.stores.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("couponId", "==", strings.TrimSpace(couponID)).
			Where("status", "==", string(status))
	})
	if err != nil {
		return nil, err
	}
	return couponStoresFromDocs(docs), nil
}

func couponStoresFromDocs(docs []pfirestore.Document[couponStoreDocument]) []domain.CouponStore {
	stores := make([]domain.CouponStore, 0, len(docs))
	for _, doc := range docs {
		stores = append(stores, doc.Data.toDomain(doc.ID))
	}
	return stores
}

type couponStoreDocument struct {
	UserID     string     `firestore:"userId"`
	CouponID   string     `firestore:"couponId"`
	OriginType string     `firestore:"originType"`
	OriginID   *string    `firestore:"originId,omitempty"`
	Status     string     `firestore:"status"`
	IssuedAt   time.Time  `firestore:"issuedAt"`
	UsedAt     *time.Time `firestore:"usedAt,omitempty"`
}

func newCouponStoreDocument(store domain.CouponStore) couponStoreDocument {
	return couponStoreDocument{
		UserID:     strings.TrimSpace(store.UserID),
		CouponID:   strings.TrimSpace(store.CouponID),
		OriginType: string(store.OriginType),
		OriginID:   store.OriginID,
		Status:     string(store.Status),
		IssuedAt:   store.IssuedAt.UTC(),
		UsedAt:     store.UsedAt,
	}
}

func (d couponStoreDocument) toDomain(id string) domain.CouponStore {
	return domain.CouponStore{
		ID:         id,
		UserID:     d.UserID,
		CouponID:   d.CouponID,
		OriginType: domain.CouponOrigin(d.OriginType),
		OriginID:   d.OriginID,
		Status:     domain.CouponStoreStatus(d.Status),
		IssuedAt:   d.IssuedAt,
		UsedAt:     d.UsedAt,
	}
}
