package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/services"
)

func newCouponRouter(coupons *stubCouponStoreService) chi.Router {
	h := NewCouponStoreHandlers(coupons)
	return NewRouter(WithCouponStoreRoutes(h.Routes))
}

func TestIssueCouponReturnsCreated(t *testing.T) {
	var got services.IssueCouponCommand
	coupons := &stubCouponStoreService{
		issueFn: func(_ context.Context, cmd services.IssueCouponCommand) (domain.CouponStore, error) {
			got = cmd
			return domain.CouponStore{
				ID:         "cst_1",
				UserID:     cmd.UserID,
				CouponID:   cmd.CouponID,
				OriginType: cmd.OriginType,
				Status:     domain.CouponStoreReady,
			}, nil
		},
	}
	router := newCouponRouter(coupons)

	rec := performRequest(t, router, http.MethodPost, "/api/v1/coupon-stores/", map[string]any{
		"user_id":     "user-1",
		"coupon_id":   "coupon-1",
		"origin_type": "WELCOME",
	})

	requireStatus(t, rec, http.StatusCreated)
	if got.UserID != "user-1" || got.OriginType != domain.CouponOriginWelcome {
		t.Fatalf("command = %+v", got)
	}

	var payload couponStorePayload
	decodeResponse(t, rec, &payload)
	if payload.ID != "cst_1" || payload.Status != string(domain.CouponStoreReady) {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestIssueCouponRequiresIdentifiers(t *testing.T) {
	router := newCouponRouter(&stubCouponStoreService{})

	rec := performRequest(t, router, http.MethodPost, "/api/v1/coupon-stores/", map[string]any{
		"user_id": "user-1",
	})

	requireStatus(t, rec, http.StatusBadRequest)
}

func TestIssueCouponMapsDuplicate(t *testing.T) {
	coupons := &stubCouponStoreService{
		issueFn: func(context.Context, services.IssueCouponCommand) (domain.CouponStore, error) {
			return domain.CouponStore{}, services.ErrCouponDuplicate
		},
	}
	router := newCouponRouter(coupons)

	rec := performRequest(t, router, http.MethodPost, "/api/v1/coupon-stores/", map[string]any{
		"user_id":     "user-1",
		"coupon_id":   "coupon-1",
		"origin_type": "WELCOME",
	})

	requireStatus(t, rec, http.StatusConflict)
}

func TestIssueCouponMapsInvalidPeriod(t *testing.T) {
	coupons := &stubCouponStoreService{
		issueFn: func(context.Context, services.IssueCouponCommand) (domain.CouponStore, error) {
			return domain.CouponStore{}, services.ErrCouponInvalidPeriod
		},
	}
	router := newCouponRouter(coupons)

	rec := performRequest(t, router, http.MethodPost, "/api/v1/coupon-stores/", map[string]any{
		"user_id":     "user-1",
		"coupon_id":   "coupon-1",
		"origin_type": "WELCOME",
	})

	requireStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestDeleteCouponStoreReturnsNoContent(t *testing.T) {
	deleted := ""
	coupons := &stubCouponStoreService{
		deleteFn: func(_ context.Context, storeID string) error {
			deleted = storeID
			return nil
		},
	}
	router := newCouponRouter(coupons)

	rec := performRequest(t, router, http.MethodDelete, "/api/v1/coupon-stores/cst_1", nil)

	requireStatus(t, rec, http.StatusNoContent)
	if deleted != "cst_1" {
		t.Fatalf("deleted = %q, want cst_1", deleted)
	}
}

func TestGetCouponStoreMapsNotFound(t *testing.T) {
	coupons := &stubCouponStoreService{
		getFn: func(context.Context, string) (domain.CouponStore, error) {
			return domain.CouponStore{}, services.ErrCouponNotFound
		},
	}
	router := newCouponRouter(coupons)

	rec := performRequest(t, router, http.MethodGet, "/api/v1/coupon-stores/cst_missing", nil)

	requireStatus(t, rec, http.StatusNotFound)
}
