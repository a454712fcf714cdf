package repositories

import (
	"context"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transactional boundary.
// Every write issued through a repository inside fn joins the same
// transaction; a returned error rolls the whole group back.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByUUID(ctx context.Context, orderUUID string) (domain.Order, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
}

// OrderBookRepository stores line items underneath an order.
type OrderBookRepository interface {
	Insert(ctx context.Context, item domain.OrderBook) error
	Delete(ctx context.Context, itemID string) error
	FindByID(ctx context.Context, itemID string) (domain.OrderBook, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderBook, error)
}

// PaymentRepository stores at most one payment per order. Insert must fail
// with a conflict when a payment already exists for the same order.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	DeleteByOrder(ctx context.Context, orderID string) error
	FindByOrder(ctx context.Context, orderID string) (domain.Payment, error)
}

// CouponRepository reads coupon definitions.
type CouponRepository interface {
	FindByID(ctx context.Context, couponID string) (domain.Coupon, error)
}

// CouponStoreDedupKey identifies an issuance for duplicate detection.
// OriginID narrows the key when present; otherwise (UserID, OriginType)
// alone dedups.
type CouponStoreDedupKey struct {
	UserID     string
	CouponID   string
	OriginType domain.CouponOrigin
	OriginID   *string
}

// CouponStoreRepository owns issued coupon instances.
type CouponStoreRepository interface {
	Insert(ctx context.Context, store domain.CouponStore) error
	Update(ctx context.Context, store domain.CouponStore) error
	Delete(ctx context.Context, storeID string) error
	FindByID(ctx context.Context, storeID string) (domain.CouponStore, error)
	Exists(ctx context.Context, key CouponStoreDedupKey) (bool, error)
	ExistsReady(ctx context.Context, userID string, origin domain.CouponOrigin) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.CouponStore, error)
	ListByCouponAndStatus(ctx context.Context, couponID string, status domain.CouponStoreStatus) ([]domain.CouponStore, error)
}

// PointHistoryRepository appends to the point ledger. Entries are immutable.
type PointHistoryRepository interface {
	Append(ctx context.Context, entry domain.PointHistory) error
	FindByID(ctx context.Context, entryID string) (domain.PointHistory, error)
	ListByUser(ctx context.Context, userID string) ([]domain.PointHistory, error)
	BalanceByUser(ctx context.Context, userID string) (int64, error)
}

// OrderPointRepository links ledger entries to the orders that produced them.
type OrderPointRepository interface {
	Insert(ctx context.Context, op domain.OrderPoint) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderPoint, error)
}

// RefundRepository stores refund requests.
type RefundRepository interface {
	Insert(ctx context.Context, refund domain.Refund) error
	Update(ctx context.Context, refund domain.Refund) error
	FindByOrder(ctx context.Context, orderID string) (domain.Refund, error)
}

// ShipmentRepository stores fulfillment data for orders.
type ShipmentRepository interface {
	Insert(ctx context.Context, shipment domain.Shipment) error
	Update(ctx context.Context, shipment domain.Shipment) error
	FindByOrder(ctx context.Context, orderID string) (domain.Shipment, error)
}

// BookRepository exposes the catalog slice the settlement workflow needs.
// IncrementQuantity applies a signed stock delta as a blind write, so inside
// a transaction it may follow other buffered writes. Callers guard against
// oversell by reading the book earlier in the same transaction.
type BookRepository interface {
	FindByID(ctx context.Context, bookID string) (domain.Book, error)
	IncrementQuantity(ctx context.Context, bookID string, delta int) error
}

// PackagingRepository looks up gift packaging options.
type PackagingRepository interface {
	FindByID(ctx context.Context, packagingID string) (domain.Packaging, error)
}

// UserRepository looks up the user directory.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	ListWithBirthdayOn(ctx context.Context, month time.Month, day int) ([]domain.UserProfile, error)
}
