package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/platform/httpx"
	"github.com/ink3-shop/api/internal/services"
)

type issueCouponRequest struct {
	UserID     string  `json:"user_id"`
	CouponID   string  `json:"coupon_id"`
	OriginType string  `json:"origin_type"`
	OriginID   *string `json:"origin_id"`
}

// CouponStoreHandlers exposes issued-coupon management endpoints.
type CouponStoreHandlers struct {
	coupons services.CouponStoreService
}

// NewCouponStoreHandlers constructs a new CouponStoreHandlers instance.
func NewCouponStoreHandlers(coupons services.CouponStoreService) *CouponStoreHandlers {
	return &CouponStoreHandlers{coupons: coupons}
}

// Routes registers the /coupon-stores endpoints.
func (h *CouponStoreHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.issueCoupon)
	r.Get("/{storeID}", h.getCouponStore)
	r.Delete("/{storeID}", h.deleteCouponStore)
}

func (h *CouponStoreHandlers) issueCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueCouponRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.CouponID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user_id and coupon_id are required", http.StatusBadRequest))
		return
	}

	store, err := h.coupons.Issue(ctx, services.IssueCouponCommand{
		UserID:     strings.TrimSpace(req.UserID),
		CouponID:   strings.TrimSpace(req.CouponID),
		OriginType: domain.CouponOrigin(strings.TrimSpace(req.OriginType)),
		OriginID:   req.OriginID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, buildCouponStorePayload(store))
}

func (h *CouponStoreHandlers) getCouponStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := strings.TrimSpace(chi.URLParam(r, "storeID"))

	store, err := h.coupons.Get(ctx, storeID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, buildCouponStorePayload(store))
}

func (h *CouponStoreHandlers) deleteCouponStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := strings.TrimSpace(chi.URLParam(r, "storeID"))

	if err := h.coupons.Delete(ctx, storeID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
