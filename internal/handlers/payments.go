package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/platform/httpx"
	"github.com/ink3-shop/api/internal/services"
)

type confirmPaymentRequest struct {
	OrderID       string `json:"order_id"`
	PaymentType   string `json:"payment_type"`
	PaymentKey    string `json:"payment_key"`
	Amount        int64  `json:"amount"`
	UsedPoint     int64  `json:"used_point"`
	DiscountPrice int64  `json:"discount_price"`
}

type cancelPaymentRequest struct {
	Reason string `json:"reason"`
}

// PaymentHandlers exposes the settlement endpoints.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/confirm", h.confirmPayment)
	r.Get("/{orderID}", h.getPayment)
	r.Post("/{orderID}/cancel", h.cancelPayment)
	r.Post("/{orderID}/fail", h.failPayment)
}

func (h *PaymentHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req confirmPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required", http.StatusBadRequest))
		return
	}

	payment, err := h.payments.Confirm(ctx, services.ConfirmPaymentCommand{
		OrderID:       strings.TrimSpace(req.OrderID),
		PaymentType:   domain.PaymentType(strings.TrimSpace(req.PaymentType)),
		PaymentKey:    strings.TrimSpace(req.PaymentKey),
		Amount:        req.Amount,
		UsedPoint:     req.UsedPoint,
		DiscountPrice: req.DiscountPrice,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, buildPaymentPayload(payment))
}

func (h *PaymentHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	payment, err := h.payments.Get(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, buildPaymentPayload(payment))
}

func (h *PaymentHandlers) cancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req cancelPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.payments.Cancel(ctx, orderID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *PaymentHandlers) failPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	if err := h.payments.Fail(ctx, orderID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"order_id": orderID,
		"status":   string(domain.OrderStatusCancelled),
	})
}
