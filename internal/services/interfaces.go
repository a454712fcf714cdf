package services

import (
	"context"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
)

// CreateOrderCommand captures the inputs for a bare order header.
type CreateOrderCommand struct {
	UserID       string
	OrdererName  string
	OrdererPhone string
}

// OrderService owns the order lifecycle state machine.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	GetByUUID(ctx context.Context, orderUUID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus) (domain.Order, error)
	// Transition moves an already-loaded order to target without re-reading
	// it. Inside a transaction the caller reads the order before any write
	// and hands it here; only the status update is buffered.
	Transition(ctx context.Context, order domain.Order, target domain.OrderStatus) (domain.Order, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// LineItemInput describes one order line to create.
type LineItemInput struct {
	BookID        string
	Quantity      int
	UnitPrice     int64
	CouponStoreID *string
	PackagingID   *string
}

// OrderBookService creates line items and owns the matching stock movements.
// Line creation is split in two phases so a composed transaction can run all
// of its reads before buffering any write: PrepareOrderBooks validates the
// items and loads everything the lines need, CreateOrderBooks buffers the
// resulting writes.
type OrderBookService interface {
	PrepareOrderBooks(ctx context.Context, items []LineItemInput) (OrderBookPlan, error)
	CreateOrderBooks(ctx context.Context, orderID string, plan OrderBookPlan) ([]domain.OrderBook, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderBook, error)
	// RestockBooks returns the stock consumed by the given lines. Write-only.
	RestockBooks(ctx context.Context, lines []domain.OrderBook) error
	OrderCouponStoreID(ctx context.Context, orderID string) (*string, error)
}

// IssueCouponCommand captures a single coupon issuance.
type IssueCouponCommand struct {
	UserID     string
	CouponID   string
	OriginType domain.CouponOrigin
	OriginID   *string
}

// CouponStoreService owns issued coupon instances.
type CouponStoreService interface {
	Issue(ctx context.Context, cmd IssueCouponCommand) (domain.CouponStore, error)
	// IssueCommon is the idempotent system path: duplicates are skipped
	// silently and reported through the bool.
	IssueCommon(ctx context.Context, cmd IssueCouponCommand) (domain.CouponStore, bool, error)
	MarkUsed(ctx context.Context, storeID string, usedAt time.Time) error
	MarkReady(ctx context.Context, storeID string) error
	// Restore rewrites an already-loaded store back to ready without
	// re-reading it. Write-only, safe after other buffered writes.
	Restore(ctx context.Context, store domain.CouponStore) error
	DisableByCoupon(ctx context.Context, couponID string) (int, error)
	ReactivateByCoupon(ctx context.Context, couponID string) (int, error)
	HasReady(ctx context.Context, userID string, origin domain.CouponOrigin) (bool, error)
	Get(ctx context.Context, storeID string) (domain.CouponStore, error)
	ListByUser(ctx context.Context, userID string) ([]domain.CouponStore, error)
	Delete(ctx context.Context, storeID string) error
}

// PointService owns the append-only point ledger and its order links.
type PointService interface {
	Earn(ctx context.Context, userID string, amount int64, description string) (domain.PointHistory, error)
	Spend(ctx context.Context, userID string, amount int64, description string) (domain.PointHistory, error)
	CancelEntry(ctx context.Context, userID string, historyID string) (domain.PointHistory, error)
	// ReversalFor validates that the entry can still be reversed and returns
	// the unpersisted reversal. Read-only; pair with AppendEntry so composed
	// transactions can keep reads ahead of writes.
	ReversalFor(ctx context.Context, userID string, historyID string) (domain.PointHistory, error)
	// AppendEntry persists a prepared ledger entry. Write-only.
	AppendEntry(ctx context.Context, entry domain.PointHistory) error
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string) ([]domain.PointHistory, error)
	LinkOrder(ctx context.Context, orderID string, historyID string) error
	OrderPoints(ctx context.Context, orderID string) ([]domain.OrderPoint, error)
}

// ConfirmPaymentCommand captures a settlement attempt for an order.
type ConfirmPaymentCommand struct {
	OrderID       string
	PaymentType   domain.PaymentType
	PaymentKey    string
	Amount        int64
	UsedPoint     int64
	DiscountPrice int64
}

// PaymentService settles payments and runs the compensating flows.
type PaymentService interface {
	Confirm(ctx context.Context, cmd ConfirmPaymentCommand) (domain.Payment, error)
	Fail(ctx context.Context, orderID string) error
	Cancel(ctx context.Context, orderID string, reason string) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Payment, error)
	Delete(ctx context.Context, orderID string) error
}

// ShipmentInput captures delivery details collected with the order form.
type ShipmentInput struct {
	PreferredDate  time.Time
	RecipientName  string
	RecipientPhone string
	PostalCode     string
	Address        string
	DetailAddress  string
	ShippingFee    int64
	ShippingCode   string
}

// ShipmentAdvanceResult reports how many orders each sweep moved forward.
type ShipmentAdvanceResult struct {
	Shipped   int
	Delivered int
}

// ShipmentService stores shipments and advances them on schedule.
type ShipmentService interface {
	Create(ctx context.Context, orderID string, input ShipmentInput) (domain.Shipment, error)
	GetByOrder(ctx context.Context, orderID string) (domain.Shipment, error)
	Advance(ctx context.Context) (ShipmentAdvanceResult, error)
}

// CreateOrderFormCommand is the full order form: header, delivery, lines.
type CreateOrderFormCommand struct {
	UserID       string
	OrdererName  string
	OrdererPhone string
	Items        []LineItemInput
	Shipment     ShipmentInput
}

// OrderForm aggregates everything one order form submission produced.
type OrderForm struct {
	Order    domain.Order
	Shipment domain.Shipment
	Items    []domain.OrderBook
}

// RequestRefundCommand captures a customer refund request.
type RequestRefundCommand struct {
	OrderID string
	Reason  string
	Details string
}

// OrderMainService orchestrates the multi-entity order workflows.
type OrderMainService interface {
	CreateOrderForm(ctx context.Context, cmd CreateOrderFormCommand) (OrderForm, error)
	RequestRefund(ctx context.Context, cmd RequestRefundCommand) (domain.Refund, error)
	ApproveRefund(ctx context.Context, orderID string, approvedBy string) (domain.Refund, error)
}

// PointAccrualMessage is the event handed to the accrual worker after a
// payment settles. Keyed by payment id so replays stay idempotent.
type PointAccrualMessage struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	UserID    string `json:"userId"`
	Amount    int64  `json:"amount"`
}

// PointEventPublisher hands point accrual events to the background worker.
type PointEventPublisher interface {
	PublishPointAccrual(ctx context.Context, msg PointAccrualMessage) (string, error)
}

// CouponBatchMessage is one birthday-batch unit of work.
type CouponBatchMessage struct {
	CouponID string   `json:"couponId"`
	UserIDs  []string `json:"userIds"`
}

// CouponBatchPublisher enqueues coupon batch messages for the consumer.
type CouponBatchPublisher interface {
	PublishCouponBatch(ctx context.Context, msg CouponBatchMessage) (string, error)
}
