package domain

import (
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusCreated indicates the order form has been written but payment is outstanding.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusConfirmed indicates payment succeeded.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipping indicates the shipment has been handed to the carrier.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusDelivered indicates the shipment reached the recipient.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates payment failed or was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates a refund was approved for the order. Terminal.
	OrderStatusRefunded OrderStatus = "refunded"
)

// Order is a purchase intent (member or guest) tracked through the status lifecycle.
type Order struct {
	ID           string
	UserID       string // empty for guest orders
	Status       OrderStatus
	OrderUUID    string
	OrdererName  string
	OrdererPhone string
	OrderedAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsGuest reports whether the order was placed without a registered account.
func (o Order) IsGuest() bool {
	return o.UserID == ""
}

// OrderBook is a single line item of an order.
type OrderBook struct {
	ID            string
	OrderID       string
	BookID        string
	CouponStoreID *string
	PackagingID   *string
	UnitPrice     int64
	Quantity      int
}

// PaymentType discriminates which processor/parser pair settles a payment.
type PaymentType string

const (
	// PaymentTypeToss settles through the Toss payments gateway.
	PaymentTypeToss PaymentType = "toss"
	// PaymentTypeStripe settles through Stripe PaymentIntents.
	PaymentTypeStripe PaymentType = "stripe"
	// PaymentTypePoint settles entirely from the member's point balance.
	PaymentTypePoint PaymentType = "point"
)

// Payment records the settled payment for an order. At most one exists per order.
type Payment struct {
	ID            string
	OrderID       string
	PaymentKey    *string // nil for point-only payments
	UsedPoint     int64
	DiscountPrice int64
	PaymentAmount int64
	Type          PaymentType
	RequestedAt   time.Time
	ApprovedAt    time.Time
}

// CouponOrigin names the business reason behind a coupon issuance.
type CouponOrigin string

const (
	// CouponOriginWelcome marks sign-up coupons.
	CouponOriginWelcome CouponOrigin = "WELCOME"
	// CouponOriginBirthday marks the scheduled birthday batch.
	CouponOriginBirthday CouponOrigin = "BIRTHDAY"
	// CouponOriginBook marks coupons tied to a specific book.
	CouponOriginBook CouponOrigin = "BOOK"
	// CouponOriginCategory marks coupons tied to a category.
	CouponOriginCategory CouponOrigin = "CATEGORY"
)

// CouponStoreStatus enumerates states of an issued coupon instance.
type CouponStoreStatus string

const (
	// CouponStoreReady means the coupon can be attached to an order.
	CouponStoreReady CouponStoreStatus = "ready"
	// CouponStoreUsed means the coupon is attached to an order.
	CouponStoreUsed CouponStoreStatus = "used"
	// CouponStoreDisabled means the backing coupon policy was revoked.
	CouponStoreDisabled CouponStoreStatus = "disabled"
	// CouponStoreExpired means the validity window has passed.
	CouponStoreExpired CouponStoreStatus = "expired"
)

// CouponStore is a user's individual instance of an issued coupon,
// distinct from the coupon definition itself.
type CouponStore struct {
	ID         string
	UserID     string
	CouponID   string
	OriginType CouponOrigin
	OriginID   *string
	Status     CouponStoreStatus
	IssuedAt   time.Time
	UsedAt     *time.Time
}

// Coupon is the definition a CouponStore instance points back to.
// The validity window is [IssuableFrom, ExpiresAt): the start is usable,
// the end is not.
type Coupon struct {
	ID           string
	Name         string
	IssuableFrom time.Time
	ExpiresAt    time.Time
	Active       bool
	CreatedAt    time.Time
}

// WithinWindow reports whether t falls inside the coupon validity window.
func (c Coupon) WithinWindow(t time.Time) bool {
	return !t.Before(c.IssuableFrom) && t.Before(c.ExpiresAt)
}

// PointHistoryStatus classifies a point ledger entry.
type PointHistoryStatus string

const (
	// PointEarn credits points.
	PointEarn PointHistoryStatus = "earn"
	// PointUse debits points.
	PointUse PointHistoryStatus = "use"
	// PointCancel reverses a prior entry, referenced by CancelOf.
	PointCancel PointHistoryStatus = "cancel"
)

// PointHistory is an append-only signed ledger entry. Entries are never
// mutated in place; compensation appends a reversing entry referencing the
// original through CancelOf.
type PointHistory struct {
	ID          string
	UserID      string
	Delta       int64
	Status      PointHistoryStatus
	Description string
	CancelOf    *string
	CreatedAt   time.Time
}

// OrderPoint links a point ledger entry to the order that caused it, so
// compensation can reverse exactly the entries an order produced.
type OrderPoint struct {
	ID             string
	OrderID        string
	PointHistoryID string
}

// Refund tracks a customer refund request and its approval.
type Refund struct {
	ID         string
	OrderID    string
	Reason     string
	Details    string
	Amount     int64
	Approved   bool
	ApprovedBy string
	CreatedAt  time.Time
	ApprovedAt *time.Time
}

// Shipment carries the delivery data for an order.
type Shipment struct {
	ID             string
	OrderID        string
	PreferredDate  time.Time // requested delivery date, midnight UTC
	DeliveredAt    *time.Time
	RecipientName  string
	RecipientPhone string
	PostalCode     string
	Address        string
	DetailAddress  string
	ShippingFee    int64
	ShippingCode   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Book is the slice of the catalog this core reads and adjusts. Quantity is
// the stock counter the settlement workflow decrements and restores.
type Book struct {
	ID       string
	Title    string
	Quantity int
	Price    int64
}

// Packaging is a lookup-only collaborator describing gift packaging options.
type Packaging struct {
	ID    string
	Name  string
	Price int64
}

// UserProfile is the minimal user projection the workflow needs.
type UserProfile struct {
	ID       string
	Name     string
	Birthday *time.Time
}
