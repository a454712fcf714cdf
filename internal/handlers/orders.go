package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ink3-shop/api/internal/platform/httpx"
	"github.com/ink3-shop/api/internal/services"
)

type orderLineRequest struct {
	BookID        string  `json:"book_id"`
	Quantity      int     `json:"quantity"`
	UnitPrice     int64   `json:"unit_price"`
	CouponStoreID *string `json:"coupon_store_id"`
	PackagingID   *string `json:"packaging_id"`
}

type orderShipmentRequest struct {
	PreferredDate  string `json:"preferred_date"`
	RecipientName  string `json:"recipient_name"`
	RecipientPhone string `json:"recipient_phone"`
	PostalCode     string `json:"postal_code"`
	Address        string `json:"address"`
	DetailAddress  string `json:"detail_address"`
	ShippingFee    int64  `json:"shipping_fee"`
	ShippingCode   string `json:"shipping_code"`
}

type createOrderRequest struct {
	UserID       string               `json:"user_id"`
	OrdererName  string               `json:"orderer_name"`
	OrdererPhone string               `json:"orderer_phone"`
	Items        []orderLineRequest   `json:"items"`
	Shipment     orderShipmentRequest `json:"shipment"`
}

type requestRefundRequest struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

type approveRefundRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// OrderHandlers exposes the order form and refund endpoints.
type OrderHandlers struct {
	orderMain  services.OrderMainService
	orders     services.OrderService
	orderBooks services.OrderBookService
	shipments  services.ShipmentService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orderMain services.OrderMainService, orders services.OrderService, orderBooks services.OrderBookService, shipments services.ShipmentService) *OrderHandlers {
	return &OrderHandlers{
		orderMain:  orderMain,
		orders:     orders,
		orderBooks: orderBooks,
		shipments:  shipments,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrderForm)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/refund", h.requestRefund)
	r.Post("/{orderID}/refund/approve", h.approveRefund)
}

func (h *OrderHandlers) createOrderForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "items must not be empty", http.StatusBadRequest))
		return
	}

	preferredDate, err := parseDateParam(req.Shipment.PreferredDate)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shipment.preferred_date must be a date (2006-01-02) or RFC3339 timestamp", http.StatusBadRequest))
		return
	}

	items := make([]services.LineItemInput, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, services.LineItemInput{
			BookID:        strings.TrimSpace(line.BookID),
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			CouponStoreID: line.CouponStoreID,
			PackagingID:   line.PackagingID,
		})
	}

	form, err := h.orderMain.CreateOrderForm(ctx, services.CreateOrderFormCommand{
		UserID:       strings.TrimSpace(req.UserID),
		OrdererName:  strings.TrimSpace(req.OrdererName),
		OrdererPhone: strings.TrimSpace(req.OrdererPhone),
		Items:        items,
		Shipment: services.ShipmentInput{
			PreferredDate:  preferredDate,
			RecipientName:  strings.TrimSpace(req.Shipment.RecipientName),
			RecipientPhone: strings.TrimSpace(req.Shipment.RecipientPhone),
			PostalCode:     strings.TrimSpace(req.Shipment.PostalCode),
			Address:        strings.TrimSpace(req.Shipment.Address),
			DetailAddress:  strings.TrimSpace(req.Shipment.DetailAddress),
			ShippingFee:    req.Shipment.ShippingFee,
			ShippingCode:   strings.TrimSpace(req.Shipment.ShippingCode),
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, buildOrderFormPayload(form))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items, err := h.orderBooks.ListByOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	form := services.OrderForm{Order: order, Items: items}
	payload := buildOrderFormPayload(form)

	// Orders created before the shipment step completed have no shipment yet.
	shipment, err := h.shipments.GetByOrder(ctx, orderID)
	switch {
	case err == nil:
		payload.Shipment = buildShipmentPayload(shipment)
	case errors.Is(err, services.ErrShipmentNotFound):
	default:
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *OrderHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req requestRefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	refund, err := h.orderMain.RequestRefund(ctx, services.RequestRefundCommand{
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
		Details: strings.TrimSpace(req.Details),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, buildRefundPayload(refund))
}

func (h *OrderHandlers) approveRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var req approveRefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ApprovedBy) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "approved_by is required", http.StatusBadRequest))
		return
	}

	refund, err := h.orderMain.ApproveRefund(ctx, orderID, strings.TrimSpace(req.ApprovedBy))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, buildRefundPayload(refund))
}

// parseDateParam accepts a plain date or a full RFC3339 timestamp.
func parseDateParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse("2006-01-02", raw); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, raw)
}
