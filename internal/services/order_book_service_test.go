package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
)

type stubOrderBookRepo struct {
	insertFn func(ctx context.Context, item domain.OrderBook) error
	deleteFn func(ctx context.Context, itemID string) error
	findFn   func(ctx context.Context, itemID string) (domain.OrderBook, error)
	listFn   func(ctx context.Context, orderID string) ([]domain.OrderBook, error)
}

func (s *stubOrderBookRepo) Insert(ctx context.Context, item domain.OrderBook) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, item)
	}
	return nil
}

func (s *stubOrderBookRepo) Delete(ctx context.Context, itemID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, itemID)
	}
	return nil
}

func (s *stubOrderBookRepo) FindByID(ctx context.Context, itemID string) (domain.OrderBook, error) {
	if s.findFn != nil {
		return s.findFn(ctx, itemID)
	}
	return domain.OrderBook{}, &stubRepositoryError{notFound: true}
}

func (s *stubOrderBookRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderBook, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

type stubBookRepo struct {
	findFn      func(ctx context.Context, bookID string) (domain.Book, error)
	incrementFn func(ctx context.Context, bookID string, delta int) error
}

func (s *stubBookRepo) FindByID(ctx context.Context, bookID string) (domain.Book, error) {
	if s.findFn != nil {
		return s.findFn(ctx, bookID)
	}
	return domain.Book{ID: bookID, Quantity: 10, Price: 10000}, nil
}

func (s *stubBookRepo) IncrementQuantity(ctx context.Context, bookID string, delta int) error {
	if s.incrementFn != nil {
		return s.incrementFn(ctx, bookID, delta)
	}
	return nil
}

type stubPackagingRepo struct {
	findFn func(ctx context.Context, packagingID string) (domain.Packaging, error)
}

func (s *stubPackagingRepo) FindByID(ctx context.Context, packagingID string) (domain.Packaging, error) {
	if s.findFn != nil {
		return s.findFn(ctx, packagingID)
	}
	return domain.Packaging{ID: packagingID}, nil
}

func existingOrderRepo(status domain.OrderStatus) *stubOrderRepo {
	return &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "user-1", Status: status}, nil
		},
	}
}

type orderBookServiceFixture struct {
	orderBooks *stubOrderBookRepo
	books      *stubBookRepo
	stores     *stubCouponStoreRepo
	coupons    *stubCouponRepo
	now        time.Time
}

func newTestOrderBookService(t *testing.T, fx orderBookServiceFixture) OrderBookService {
	t.Helper()
	if fx.orderBooks == nil {
		fx.orderBooks = &stubOrderBookRepo{}
	}
	if fx.books == nil {
		fx.books = &stubBookRepo{}
	}
	if fx.stores == nil {
		fx.stores = &stubCouponStoreRepo{}
	}
	if fx.coupons == nil {
		fx.coupons = &stubCouponRepo{}
	}
	if fx.now.IsZero() {
		fx.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}

	svc, err := NewOrderBookService(OrderBookServiceDeps{
		OrderBooks:  fx.orderBooks,
		Books:       fx.books,
		Packagings:  &stubPackagingRepo{},
		Coupons:     fx.coupons,
		Stores:      fx.stores,
		Clock:       fixedClock(fx.now),
		IDGenerator: func() string { return "01TEST" },
	})
	if err != nil {
		t.Fatalf("NewOrderBookService: %v", err)
	}
	return svc
}

func planAndCreate(t *testing.T, svc OrderBookService, orderID string, items []LineItemInput) ([]domain.OrderBook, error) {
	t.Helper()
	plan, err := svc.PrepareOrderBooks(context.Background(), items)
	if err != nil {
		return nil, err
	}
	return svc.CreateOrderBooks(context.Background(), orderID, plan)
}

func TestCreateOrderBooksDecrementsStock(t *testing.T) {
	adjustments := map[string]int{}
	var inserted []domain.OrderBook

	svc := newTestOrderBookService(t, orderBookServiceFixture{
		orderBooks: &stubOrderBookRepo{
			insertFn: func(_ context.Context, item domain.OrderBook) error {
				inserted = append(inserted, item)
				return nil
			},
		},
		books: &stubBookRepo{
			findFn: func(_ context.Context, bookID string) (domain.Book, error) {
				return domain.Book{ID: bookID, Quantity: 10, Price: 12000}, nil
			},
			incrementFn: func(_ context.Context, bookID string, delta int) error {
				adjustments[bookID] += delta
				return nil
			},
		},
	})

	lines, err := planAndCreate(t, svc, "ord_1", []LineItemInput{
		{BookID: "book-1", Quantity: 2},
		{BookID: "book-2", Quantity: 1, UnitPrice: 9000},
	})
	if err != nil {
		t.Fatalf("create order books: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if adjustments["book-1"] != -2 || adjustments["book-2"] != -1 {
		t.Fatalf("adjustments = %v", adjustments)
	}
	if lines[0].UnitPrice != 12000 {
		t.Fatalf("unit price defaulted = %d, want catalog price 12000", lines[0].UnitPrice)
	}
	if lines[1].UnitPrice != 9000 {
		t.Fatalf("explicit unit price = %d, want 9000", lines[1].UnitPrice)
	}
	if len(inserted) != 2 {
		t.Fatalf("inserted = %d, want 2", len(inserted))
	}
}

func TestPrepareOrderBooksOutOfStock(t *testing.T) {
	incremented := false
	svc := newTestOrderBookService(t, orderBookServiceFixture{
		books: &stubBookRepo{
			findFn: func(_ context.Context, bookID string) (domain.Book, error) {
				return domain.Book{ID: bookID, Quantity: 3, Price: 10000}, nil
			},
			incrementFn: func(context.Context, string, int) error {
				incremented = true
				return nil
			},
		},
	})

	_, err := svc.PrepareOrderBooks(context.Background(), []LineItemInput{
		{BookID: "book-1", Quantity: 99},
	})
	if !errors.Is(err, ErrBookOutOfStock) {
		t.Fatalf("err = %v, want ErrBookOutOfStock", err)
	}
	if incremented {
		t.Fatal("stock was adjusted during the read phase")
	}
}

func TestCreateOrderBooksMarksCouponUsed(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := domain.CouponStore{ID: "cst_1", CouponID: "coupon-1", Status: domain.CouponStoreReady}
	var updated domain.CouponStore

	svc := newTestOrderBookService(t, orderBookServiceFixture{
		now: now,
		stores: &stubCouponStoreRepo{
			findFn: func(context.Context, string) (domain.CouponStore, error) {
				return store, nil
			},
			updateFn: func(_ context.Context, s domain.CouponStore) error {
				updated = s
				return nil
			},
		},
		coupons: &stubCouponRepo{
			findFn: func(_ context.Context, couponID string) (domain.Coupon, error) {
				return domain.Coupon{
					ID:           couponID,
					IssuableFrom: now.AddDate(0, 0, -1),
					ExpiresAt:    now.AddDate(0, 0, 1),
				}, nil
			},
		},
	})

	lines, err := planAndCreate(t, svc, "ord_1", []LineItemInput{
		{BookID: "book-1", Quantity: 1, CouponStoreID: valuePtr("cst_1")},
	})
	if err != nil {
		t.Fatalf("create order books: %v", err)
	}
	if updated.Status != domain.CouponStoreUsed {
		t.Fatalf("coupon status = %q, want used", updated.Status)
	}
	if updated.UsedAt == nil || !updated.UsedAt.Equal(now) {
		t.Fatalf("usedAt = %v, want %v", updated.UsedAt, now)
	}
	if lines[0].CouponStoreID == nil || *lines[0].CouponStoreID != "cst_1" {
		t.Fatalf("line coupon store = %v, want cst_1", lines[0].CouponStoreID)
	}
}

func TestPrepareOrderBooksCouponWindowBoundaries(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name         string
		issuableFrom time.Time
		expiresAt    time.Time
		wantErr      bool
	}{
		{"inside window", now.AddDate(0, 0, -1), now.AddDate(0, 0, 1), false},
		{"at issuable instant", now, now.AddDate(0, 0, 1), false},
		{"before issuable", now.Add(time.Minute), now.AddDate(0, 0, 1), true},
		{"at expiry instant", now.AddDate(0, 0, -1), now, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestOrderBookService(t, orderBookServiceFixture{
				now: now,
				stores: &stubCouponStoreRepo{
					findFn: func(context.Context, string) (domain.CouponStore, error) {
						return domain.CouponStore{ID: "cst_1", CouponID: "coupon-1", Status: domain.CouponStoreReady}, nil
					},
				},
				coupons: &stubCouponRepo{
					findFn: func(_ context.Context, couponID string) (domain.Coupon, error) {
						return domain.Coupon{ID: couponID, IssuableFrom: tc.issuableFrom, ExpiresAt: tc.expiresAt}, nil
					},
				},
			})

			_, err := svc.PrepareOrderBooks(context.Background(), []LineItemInput{
				{BookID: "book-1", Quantity: 1, CouponStoreID: valuePtr("cst_1")},
			})
			if tc.wantErr {
				if !errors.Is(err, ErrCouponInvalidPeriod) {
					t.Fatalf("err = %v, want ErrCouponInvalidPeriod", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PrepareOrderBooks: %v", err)
			}
		})
	}
}

func TestPrepareOrderBooksRejectsNonReadyCoupon(t *testing.T) {
	svc := newTestOrderBookService(t, orderBookServiceFixture{
		stores: &stubCouponStoreRepo{
			findFn: func(context.Context, string) (domain.CouponStore, error) {
				return domain.CouponStore{ID: "cst_1", Status: domain.CouponStoreUsed}, nil
			},
		},
	})

	_, err := svc.PrepareOrderBooks(context.Background(), []LineItemInput{
		{BookID: "book-1", Quantity: 1, CouponStoreID: valuePtr("cst_1")},
	})
	if !errors.Is(err, ErrCouponNotUsable) {
		t.Fatalf("err = %v, want ErrCouponNotUsable", err)
	}
}

func TestRestockBooksRestoresEveryLine(t *testing.T) {
	adjustments := map[string]int{}
	svc := newTestOrderBookService(t, orderBookServiceFixture{
		books: &stubBookRepo{
			incrementFn: func(_ context.Context, bookID string, delta int) error {
				adjustments[bookID] += delta
				return nil
			},
		},
	})

	err := svc.RestockBooks(context.Background(), []domain.OrderBook{
		{ID: "obk_1", OrderID: "ord_1", BookID: "book-1", Quantity: 2},
		{ID: "obk_2", OrderID: "ord_1", BookID: "book-2", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("RestockBooks: %v", err)
	}
	if adjustments["book-1"] != 2 || adjustments["book-2"] != 3 {
		t.Fatalf("adjustments = %v", adjustments)
	}
}

func TestOrderCouponStoreID(t *testing.T) {
	svc := newTestOrderBookService(t, orderBookServiceFixture{
		orderBooks: &stubOrderBookRepo{
			listFn: func(context.Context, string) ([]domain.OrderBook, error) {
				return []domain.OrderBook{
					{ID: "obk_1", BookID: "book-1"},
					{ID: "obk_2", BookID: "book-2", CouponStoreID: valuePtr("cst_9")},
				}, nil
			},
		},
	})

	id, err := svc.OrderCouponStoreID(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("OrderCouponStoreID: %v", err)
	}
	if id == nil || *id != "cst_9" {
		t.Fatalf("coupon store id = %v, want cst_9", id)
	}
}

func TestOrderCouponStoreIDNilWhenAbsent(t *testing.T) {
	svc := newTestOrderBookService(t, orderBookServiceFixture{
		orderBooks: &stubOrderBookRepo{
			listFn: func(context.Context, string) ([]domain.OrderBook, error) {
				return []domain.OrderBook{{ID: "obk_1", BookID: "book-1"}}, nil
			},
		},
	})

	id, err := svc.OrderCouponStoreID(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("OrderCouponStoreID: %v", err)
	}
	if id != nil {
		t.Fatalf("coupon store id = %v, want nil", id)
	}
}
