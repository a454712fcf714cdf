package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/repositories"
)

const orderBookIDPrefix = "obk_"

var (
	// ErrOrderBookInvalidInput signals the caller provided invalid data.
	ErrOrderBookInvalidInput = errors.New("order book: invalid input")
	// ErrOrderBookNotFound indicates a referenced entity is missing.
	ErrOrderBookNotFound = errors.New("order book: not found")
	// ErrBookOutOfStock indicates the requested quantity exceeds stock.
	ErrBookOutOfStock = errors.New("order book: out of stock")
	// ErrCouponNotUsable indicates the attached coupon is not in ready state.
	ErrCouponNotUsable = errors.New("order book: coupon not usable")
	// ErrCouponInvalidPeriod indicates the coupon is outside its validity window.
	ErrCouponInvalidPeriod = errors.New("order book: coupon outside validity window")
	// ErrOrderBookConflict indicates concurrent update conflicts.
	ErrOrderBookConflict = errors.New("order book: conflict")
)

// OrderBookPlan carries the validated, fully loaded line items between the
// read phase and the write phase of order creation.
type OrderBookPlan struct {
	lines []plannedOrderBook
}

type plannedOrderBook struct {
	bookID      string
	quantity    int
	unitPrice   int64
	packagingID *string
	// couponStore is the store already staged to used, written verbatim in
	// the write phase.
	couponStore *domain.CouponStore
}

// OrderBookServiceDeps bundles collaborators for the line item service.
type OrderBookServiceDeps struct {
	OrderBooks  repositories.OrderBookRepository
	Books       repositories.BookRepository
	Packagings  repositories.PackagingRepository
	Coupons     repositories.CouponRepository
	Stores      repositories.CouponStoreRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderBookService struct {
	orderBooks repositories.OrderBookRepository
	books      repositories.BookRepository
	packagings repositories.PackagingRepository
	coupons    repositories.CouponRepository
	stores     repositories.CouponStoreRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderBookService wires dependencies into an OrderBookService.
func NewOrderBookService(deps OrderBookServiceDeps) (OrderBookService, error) {
	if deps.OrderBooks == nil {
		return nil, errors.New("order book service: order book repository is required")
	}
	if deps.Books == nil {
		return nil, errors.New("order book service: book repository is required")
	}
	if deps.Stores == nil {
		return nil, errors.New("order book service: coupon store repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("order book service: coupon repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderBookService{
		orderBooks: deps.OrderBooks,
		books:      deps.Books,
		packagings: deps.Packagings,
		coupons:    deps.Coupons,
		stores:     deps.Stores,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

// PrepareOrderBooks validates the items and loads every document the lines
// depend on. It performs only reads, so it runs at the front of a composed
// transaction before any write is buffered. Oversell is rejected here from
// the transactional read; the decrement itself stays a blind increment in
// the write phase.
func (s *orderBookService) PrepareOrderBooks(ctx context.Context, items []LineItemInput) (OrderBookPlan, error) {
	if len(items) == 0 {
		return OrderBookPlan{}, fmt.Errorf("%w: at least one line item is required", ErrOrderBookInvalidInput)
	}
	for i, item := range items {
		if strings.TrimSpace(item.BookID) == "" {
			return OrderBookPlan{}, fmt.Errorf("%w: item %d book id is required", ErrOrderBookInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return OrderBookPlan{}, fmt.Errorf("%w: item %d quantity must be positive", ErrOrderBookInvalidInput, i)
		}
	}

	plan := OrderBookPlan{lines: make([]plannedOrderBook, 0, len(items))}
	for _, item := range items {
		bookID := strings.TrimSpace(item.BookID)

		if item.PackagingID != nil {
			if _, err := s.packagings.FindByID(ctx, strings.TrimSpace(*item.PackagingID)); err != nil {
				return OrderBookPlan{}, s.mapRepositoryError(err)
			}
		}

		var staged *domain.CouponStore
		if item.CouponStoreID != nil {
			store, err := s.stageCoupon(ctx, strings.TrimSpace(*item.CouponStoreID))
			if err != nil {
				return OrderBookPlan{}, err
			}
			staged = &store
		}

		book, err := s.books.FindByID(ctx, bookID)
		if err != nil {
			return OrderBookPlan{}, s.mapRepositoryError(err)
		}
		if book.Quantity < item.Quantity {
			return OrderBookPlan{}, fmt.Errorf("%w: book %s", ErrBookOutOfStock, bookID)
		}

		unitPrice := item.UnitPrice
		if unitPrice == 0 {
			unitPrice = book.Price
		}

		plan.lines = append(plan.lines, plannedOrderBook{
			bookID:      bookID,
			quantity:    item.Quantity,
			unitPrice:   unitPrice,
			packagingID: cloneStringPtr(item.PackagingID),
			couponStore: staged,
		})
	}
	return plan, nil
}

// stageCoupon validates the store and returns it flipped to used. Nothing is
// written here; the write phase persists the staged copy.
func (s *orderBookService) stageCoupon(ctx context.Context, storeID string) (domain.CouponStore, error) {
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return domain.CouponStore{}, s.mapRepositoryError(err)
	}
	if store.Status != domain.CouponStoreReady {
		return domain.CouponStore{}, fmt.Errorf("%w: coupon store %s is %s", ErrCouponNotUsable, storeID, store.Status)
	}

	coupon, err := s.coupons.FindByID(ctx, store.CouponID)
	if err != nil {
		return domain.CouponStore{}, s.mapRepositoryError(err)
	}
	now := s.clock()
	if !coupon.WithinWindow(now) {
		return domain.CouponStore{}, fmt.Errorf("%w: coupon %s at %s", ErrCouponInvalidPeriod, coupon.ID, now.Format(time.RFC3339))
	}

	store.Status = domain.CouponStoreUsed
	store.UsedAt = valuePtr(now)
	return store, nil
}

// CreateOrderBooks writes every line item of the plan under the order. All
// operations here buffer writes only, so the orchestrator may call it after
// other writes in the same transaction.
func (s *orderBookService) CreateOrderBooks(ctx context.Context, orderID string, plan OrderBookPlan) ([]domain.OrderBook, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrOrderBookInvalidInput)
	}
	if len(plan.lines) == 0 {
		return nil, fmt.Errorf("%w: plan has no line items", ErrOrderBookInvalidInput)
	}

	var created []domain.OrderBook
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		created = created[:0]

		for _, planned := range plan.lines {
			if planned.couponStore != nil {
				if err := s.stores.Update(txCtx, *planned.couponStore); err != nil {
					return s.mapRepositoryError(err)
				}
			}

			if err := s.books.IncrementQuantity(txCtx, planned.bookID, -planned.quantity); err != nil {
				return s.mapRepositoryError(err)
			}

			line := domain.OrderBook{
				ID:          orderBookIDPrefix + s.newID(),
				OrderID:     orderID,
				BookID:      planned.bookID,
				PackagingID: cloneStringPtr(planned.packagingID),
				UnitPrice:   planned.unitPrice,
				Quantity:    planned.quantity,
			}
			if planned.couponStore != nil {
				line.CouponStoreID = valuePtr(planned.couponStore.ID)
			}
			if err := s.orderBooks.Insert(txCtx, line); err != nil {
				return s.mapRepositoryError(err)
			}
			created = append(created, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "order.books.created", map[string]any{
		"orderId": orderID,
		"count":   len(created),
	})
	return created, nil
}

func (s *orderBookService) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderBook, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrOrderBookInvalidInput)
	}

	lines, err := s.orderBooks.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return lines, nil
}

// RestockBooks returns the stock the given lines consumed, unit for unit.
// Blind increments only; the caller lists the lines in its read phase.
func (s *orderBookService) RestockBooks(ctx context.Context, lines []domain.OrderBook) error {
	for _, line := range lines {
		if err := s.books.IncrementQuantity(ctx, line.BookID, line.Quantity); err != nil {
			return s.mapRepositoryError(err)
		}
	}
	if len(lines) > 0 {
		s.logger(ctx, "order.books.restocked", map[string]any{"orderId": lines[0].OrderID})
	}
	return nil
}

// OrderCouponStoreID returns the coupon attached to the order, if any.
// At most one line item carries a coupon.
func (s *orderBookService) OrderCouponStoreID(ctx context.Context, orderID string) (*string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrOrderBookInvalidInput)
	}

	lines, err := s.orderBooks.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	for _, line := range lines {
		if line.CouponStoreID != nil && strings.TrimSpace(*line.CouponStoreID) != "" {
			return cloneStringPtr(line.CouponStoreID), nil
		}
	}
	return nil, nil
}

func (s *orderBookService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderBookNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderBookConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order book: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderBookService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}
