package handlers

import (
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/services"
)

type orderPayload struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id,omitempty"`
	Status       string `json:"status"`
	OrderUUID    string `json:"order_uuid"`
	OrdererName  string `json:"orderer_name"`
	OrdererPhone string `json:"orderer_phone"`
	OrderedAt    string `json:"ordered_at"`
}

type orderBookPayload struct {
	ID            string  `json:"id"`
	BookID        string  `json:"book_id"`
	Quantity      int     `json:"quantity"`
	UnitPrice     int64   `json:"unit_price"`
	CouponStoreID *string `json:"coupon_store_id,omitempty"`
	PackagingID   *string `json:"packaging_id,omitempty"`
}

type shipmentPayload struct {
	ID             string  `json:"id"`
	OrderID        string  `json:"order_id"`
	PreferredDate  string  `json:"preferred_date"`
	DeliveredAt    *string `json:"delivered_at,omitempty"`
	RecipientName  string  `json:"recipient_name"`
	RecipientPhone string  `json:"recipient_phone"`
	PostalCode     string  `json:"postal_code"`
	Address        string  `json:"address"`
	DetailAddress  string  `json:"detail_address,omitempty"`
	ShippingFee    int64   `json:"shipping_fee"`
	ShippingCode   string  `json:"shipping_code,omitempty"`
}

type orderFormPayload struct {
	Order    orderPayload       `json:"order"`
	Shipment shipmentPayload    `json:"shipment"`
	Items    []orderBookPayload `json:"items"`
}

type paymentPayload struct {
	ID            string  `json:"id"`
	OrderID       string  `json:"order_id"`
	Type          string  `json:"type"`
	PaymentKey    *string `json:"payment_key,omitempty"`
	PaymentAmount int64   `json:"payment_amount"`
	UsedPoint     int64   `json:"used_point"`
	DiscountPrice int64   `json:"discount_price"`
	RequestedAt   string  `json:"requested_at"`
	ApprovedAt    string  `json:"approved_at"`
}

type couponStorePayload struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	CouponID   string  `json:"coupon_id"`
	OriginType string  `json:"origin_type"`
	OriginID   *string `json:"origin_id,omitempty"`
	Status     string  `json:"status"`
	IssuedAt   string  `json:"issued_at"`
	UsedAt     *string `json:"used_at,omitempty"`
}

type refundPayload struct {
	ID         string  `json:"id"`
	OrderID    string  `json:"order_id"`
	Reason     string  `json:"reason"`
	Details    string  `json:"details,omitempty"`
	Amount     int64   `json:"amount"`
	Approved   bool    `json:"approved"`
	ApprovedBy string  `json:"approved_by,omitempty"`
	ApprovedAt *string `json:"approved_at,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := formatTime(*t)
	return &value
}

func buildOrderPayload(order domain.Order) orderPayload {
	return orderPayload{
		ID:           order.ID,
		UserID:       order.UserID,
		Status:       string(order.Status),
		OrderUUID:    order.OrderUUID,
		OrdererName:  order.OrdererName,
		OrdererPhone: order.OrdererPhone,
		OrderedAt:    formatTime(order.OrderedAt),
	}
}

func buildShipmentPayload(shipment domain.Shipment) shipmentPayload {
	return shipmentPayload{
		ID:             shipment.ID,
		OrderID:        shipment.OrderID,
		PreferredDate:  shipment.PreferredDate.UTC().Format("2006-01-02"),
		DeliveredAt:    formatTimePtr(shipment.DeliveredAt),
		RecipientName:  shipment.RecipientName,
		RecipientPhone: shipment.RecipientPhone,
		PostalCode:     shipment.PostalCode,
		Address:        shipment.Address,
		DetailAddress:  shipment.DetailAddress,
		ShippingFee:    shipment.ShippingFee,
		ShippingCode:   shipment.ShippingCode,
	}
}

func buildOrderFormPayload(form services.OrderForm) orderFormPayload {
	items := make([]orderBookPayload, 0, len(form.Items))
	for _, item := range form.Items {
		items = append(items, orderBookPayload{
			ID:            item.ID,
			BookID:        item.BookID,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			CouponStoreID: item.CouponStoreID,
			PackagingID:   item.PackagingID,
		})
	}
	return orderFormPayload{
		Order:    buildOrderPayload(form.Order),
		Shipment: buildShipmentPayload(form.Shipment),
		Items:    items,
	}
}

func buildPaymentPayload(payment domain.Payment) paymentPayload {
	return paymentPayload{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		Type:          string(payment.Type),
		PaymentKey:    payment.PaymentKey,
		PaymentAmount: payment.PaymentAmount,
		UsedPoint:     payment.UsedPoint,
		DiscountPrice: payment.DiscountPrice,
		RequestedAt:   formatTime(payment.RequestedAt),
		ApprovedAt:    formatTime(payment.ApprovedAt),
	}
}

func buildCouponStorePayload(store domain.CouponStore) couponStorePayload {
	return couponStorePayload{
		ID:         store.ID,
		UserID:     store.UserID,
		CouponID:   store.CouponID,
		OriginType: string(store.OriginType),
		OriginID:   store.OriginID,
		Status:     string(store.Status),
		IssuedAt:   formatTime(store.IssuedAt),
		UsedAt:     formatTimePtr(store.UsedAt),
	}
}

func buildRefundPayload(refund domain.Refund) refundPayload {
	return refundPayload{
		ID:         refund.ID,
		OrderID:    refund.OrderID,
		Reason:     refund.Reason,
		Details:    refund.Details,
		Amount:     refund.Amount,
		Approved:   refund.Approved,
		ApprovedBy: refund.ApprovedBy,
		ApprovedAt: formatTimePtr(refund.ApprovedAt),
		CreatedAt:  formatTime(refund.CreatedAt),
	}
}
