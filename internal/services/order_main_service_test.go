package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
)

type stubRefundRepo struct {
	insertFn func(ctx context.Context, refund domain.Refund) error
	updateFn func(ctx context.Context, refund domain.Refund) error
	findFn   func(ctx context.Context, orderID string) (domain.Refund, error)
}

func (s *stubRefundRepo) Insert(ctx context.Context, refund domain.Refund) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, refund)
	}
	return nil
}

func (s *stubRefundRepo) Update(ctx context.Context, refund domain.Refund) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, refund)
	}
	return nil
}

func (s *stubRefundRepo) FindByOrder(ctx context.Context, orderID string) (domain.Refund, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Refund{}, &stubRepositoryError{notFound: true}
}

type stubShipmentService struct {
	createFn func(ctx context.Context, orderID string, input ShipmentInput) (domain.Shipment, error)
}

func (s *stubShipmentService) Create(ctx context.Context, orderID string, input ShipmentInput) (domain.Shipment, error) {
	if s.createFn != nil {
		return s.createFn(ctx, orderID, input)
	}
	return domain.Shipment{ID: "shp_1", OrderID: orderID}, nil
}

func (s *stubShipmentService) GetByOrder(context.Context, string) (domain.Shipment, error) {
	return domain.Shipment{}, nil
}

func (s *stubShipmentService) Advance(context.Context) (ShipmentAdvanceResult, error) {
	return ShipmentAdvanceResult{}, nil
}

type orderMainFixture struct {
	refunds    *stubRefundRepo
	payments   *stubPaymentRepo
	order      *domain.Order
	orderBooks *stubOrderBookService
	shipments  *stubShipmentService
	coupons    *stubCouponStoreService
	points     *stubPointService
}

func newTestOrderMainService(t *testing.T, fx *orderMainFixture) OrderMainService {
	t.Helper()
	if fx.refunds == nil {
		fx.refunds = &stubRefundRepo{}
	}
	if fx.payments == nil {
		fx.payments = &stubPaymentRepo{
			findFn: func(context.Context, string) (domain.Payment, error) {
				return domain.Payment{ID: "pay_1", OrderID: "ord_1", PaymentAmount: 15000}, nil
			},
		}
	}
	if fx.order == nil {
		fx.order = &domain.Order{ID: "ord_1", UserID: "user-1", Status: domain.OrderStatusDelivered, OrderUUID: "uuid-1"}
	}
	if fx.orderBooks == nil {
		fx.orderBooks = &stubOrderBookService{}
	}
	if fx.shipments == nil {
		fx.shipments = &stubShipmentService{}
	}
	if fx.coupons == nil {
		fx.coupons = &stubCouponStoreService{}
	}
	if fx.points == nil {
		fx.points = &stubPointService{}
	}

	svc, err := NewOrderMainService(OrderMainServiceDeps{
		Refunds:     fx.refunds,
		Payments:    fx.payments,
		Orders:      statefulOrderService(t, fx.order),
		OrderBooks:  fx.orderBooks,
		Shipments:   fx.shipments,
		Coupons:     fx.coupons,
		Points:      fx.points,
		Clock:       fixedClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		IDGenerator: func() string { return "01TEST" },
	})
	if err != nil {
		t.Fatalf("NewOrderMainService: %v", err)
	}
	return svc
}

func TestCreateOrderFormAssemblesAllPieces(t *testing.T) {
	var preparedItems []LineItemInput
	fx := &orderMainFixture{
		order: &domain.Order{ID: "ord_1", Status: domain.OrderStatusCreated},
		orderBooks: &stubOrderBookService{
			prepareFn: func(_ context.Context, items []LineItemInput) (OrderBookPlan, error) {
				preparedItems = items
				return OrderBookPlan{}, nil
			},
			createFn: func(_ context.Context, orderID string, _ OrderBookPlan) ([]domain.OrderBook, error) {
				return []domain.OrderBook{{ID: "obk_1", OrderID: orderID, BookID: "book-1"}}, nil
			},
		},
	}
	svc := newTestOrderMainService(t, fx)

	form, err := svc.CreateOrderForm(context.Background(), CreateOrderFormCommand{
		UserID:      "user-1",
		OrdererName: "Kim",
		Items:       []LineItemInput{{BookID: "book-1", Quantity: 1}},
		Shipment: ShipmentInput{
			PreferredDate: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
			RecipientName: "Kim",
			Address:       "12 Teheran-ro",
		},
	})
	if err != nil {
		t.Fatalf("CreateOrderForm: %v", err)
	}
	if form.Order.ID == "" {
		t.Fatal("order id is empty")
	}
	if form.Shipment.OrderID != form.Order.ID {
		t.Fatalf("shipment order = %q, want %q", form.Shipment.OrderID, form.Order.ID)
	}
	if len(form.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(form.Items))
	}
	if len(preparedItems) != 1 || preparedItems[0].BookID != "book-1" {
		t.Fatalf("prepared items = %v", preparedItems)
	}
}

func TestCreateOrderFormPropagatesLineItemFailure(t *testing.T) {
	fx := &orderMainFixture{
		order: &domain.Order{ID: "ord_1", Status: domain.OrderStatusCreated},
		orderBooks: &stubOrderBookService{
			prepareFn: func(context.Context, []LineItemInput) (OrderBookPlan, error) {
				return OrderBookPlan{}, ErrBookOutOfStock
			},
		},
	}
	svc := newTestOrderMainService(t, fx)

	_, err := svc.CreateOrderForm(context.Background(), CreateOrderFormCommand{
		OrdererName: "Kim",
		Items:       []LineItemInput{{BookID: "book-1", Quantity: 1}},
		Shipment: ShipmentInput{
			PreferredDate: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
			RecipientName: "Kim",
			Address:       "12 Teheran-ro",
		},
	})
	if !errors.Is(err, ErrBookOutOfStock) {
		t.Fatalf("err = %v, want ErrBookOutOfStock", err)
	}
}

func TestCreateOrderFormRequiresItems(t *testing.T) {
	svc := newTestOrderMainService(t, &orderMainFixture{})

	_, err := svc.CreateOrderForm(context.Background(), CreateOrderFormCommand{OrdererName: "Kim"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("err = %v, want ErrOrderInvalidInput", err)
	}
}

func TestRequestRefundCopiesPaymentAmount(t *testing.T) {
	var inserted domain.Refund
	fx := &orderMainFixture{
		refunds: &stubRefundRepo{
			insertFn: func(_ context.Context, refund domain.Refund) error {
				inserted = refund
				return nil
			},
		},
	}
	svc := newTestOrderMainService(t, fx)

	refund, err := svc.RequestRefund(context.Background(), RequestRefundCommand{
		OrderID: "ord_1",
		Reason:  "damaged cover",
	})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if refund.ID != "rfd_01TEST" {
		t.Fatalf("refund id = %q", refund.ID)
	}
	if refund.Amount != 15000 {
		t.Fatalf("amount = %d, want 15000", refund.Amount)
	}
	if refund.Approved {
		t.Fatal("new refund must not be approved")
	}
	if inserted.OrderID != "ord_1" {
		t.Fatalf("inserted order = %q", inserted.OrderID)
	}
}

func TestRequestRefundRejectsCreatedOrder(t *testing.T) {
	fx := &orderMainFixture{
		order: &domain.Order{ID: "ord_1", UserID: "user-1", Status: domain.OrderStatusCreated},
	}
	svc := newTestOrderMainService(t, fx)

	_, err := svc.RequestRefund(context.Background(), RequestRefundCommand{OrderID: "ord_1", Reason: "x"})
	if !errors.Is(err, ErrRefundNotAllowed) {
		t.Fatalf("err = %v, want ErrRefundNotAllowed", err)
	}
}

func TestRequestRefundRejectsDuplicate(t *testing.T) {
	fx := &orderMainFixture{
		refunds: &stubRefundRepo{
			findFn: func(context.Context, string) (domain.Refund, error) {
				return domain.Refund{ID: "rfd_existing", OrderID: "ord_1"}, nil
			},
		},
	}
	svc := newTestOrderMainService(t, fx)

	_, err := svc.RequestRefund(context.Background(), RequestRefundCommand{OrderID: "ord_1", Reason: "x"})
	if !errors.Is(err, ErrRefundConflict) {
		t.Fatalf("err = %v, want ErrRefundConflict", err)
	}
}

func TestApproveRefundCompensatesAndMarksRefunded(t *testing.T) {
	var restocked []domain.OrderBook
	restored := ""
	cancelledEntries := []string{}
	var updated domain.Refund

	fx := &orderMainFixture{
		refunds: &stubRefundRepo{
			findFn: func(context.Context, string) (domain.Refund, error) {
				return domain.Refund{ID: "rfd_1", OrderID: "ord_1", Amount: 15000}, nil
			},
			updateFn: func(_ context.Context, refund domain.Refund) error {
				updated = refund
				return nil
			},
		},
		orderBooks: &stubOrderBookService{
			listFn: func(context.Context, string) ([]domain.OrderBook, error) {
				return []domain.OrderBook{{ID: "obk_1", OrderID: "ord_1", BookID: "book-1", Quantity: 2}}, nil
			},
			restockFn: func(_ context.Context, lines []domain.OrderBook) error {
				restocked = append(restocked, lines...)
				return nil
			},
			couponFn: func(context.Context, string) (*string, error) {
				return valuePtr("cst_1"), nil
			},
		},
		coupons: &stubCouponStoreService{
			restoreFn: func(_ context.Context, store domain.CouponStore) error {
				restored = store.ID
				return nil
			},
		},
		points: &stubPointService{
			orderPointsFn: func(context.Context, string) ([]domain.OrderPoint, error) {
				return []domain.OrderPoint{{ID: "opt_1", OrderID: "ord_1", PointHistoryID: "pth_use"}}, nil
			},
			appendFn: func(_ context.Context, entry domain.PointHistory) error {
				if entry.CancelOf != nil {
					cancelledEntries = append(cancelledEntries, *entry.CancelOf)
				}
				return nil
			},
		},
	}
	svc := newTestOrderMainService(t, fx)

	refund, err := svc.ApproveRefund(context.Background(), "ord_1", "admin-1")
	if err != nil {
		t.Fatalf("ApproveRefund: %v", err)
	}
	if !refund.Approved || refund.ApprovedBy != "admin-1" {
		t.Fatalf("refund = %+v", refund)
	}
	if refund.ApprovedAt == nil {
		t.Fatal("approvedAt is nil")
	}
	if len(restocked) != 1 || restocked[0].BookID != "book-1" {
		t.Fatalf("restocked = %v", restocked)
	}
	if restored != "cst_1" {
		t.Fatalf("restored coupon = %q, want cst_1", restored)
	}
	if len(cancelledEntries) != 1 || cancelledEntries[0] != "pth_use" {
		t.Fatalf("cancelled = %v", cancelledEntries)
	}
	if fx.order.Status != domain.OrderStatusRefunded {
		t.Fatalf("order status = %q, want refunded", fx.order.Status)
	}
	if updated.ID != "rfd_1" {
		t.Fatalf("updated refund = %q", updated.ID)
	}
}

func TestApproveRefundRejectsSecondApproval(t *testing.T) {
	fx := &orderMainFixture{
		refunds: &stubRefundRepo{
			findFn: func(context.Context, string) (domain.Refund, error) {
				return domain.Refund{ID: "rfd_1", OrderID: "ord_1", Approved: true}, nil
			},
		},
	}
	svc := newTestOrderMainService(t, fx)

	_, err := svc.ApproveRefund(context.Background(), "ord_1", "admin-1")
	if !errors.Is(err, ErrRefundAlreadyApproved) {
		t.Fatalf("err = %v, want ErrRefundAlreadyApproved", err)
	}
}

func TestApproveRefundSkipsAlreadyCancelledPoints(t *testing.T) {
	fx := &orderMainFixture{
		refunds: &stubRefundRepo{
			findFn: func(context.Context, string) (domain.Refund, error) {
				return domain.Refund{ID: "rfd_1", OrderID: "ord_1"}, nil
			},
		},
		points: &stubPointService{
			orderPointsFn: func(context.Context, string) ([]domain.OrderPoint, error) {
				return []domain.OrderPoint{{ID: "opt_1", OrderID: "ord_1", PointHistoryID: "pth_use"}}, nil
			},
			reversalFn: func(context.Context, string, string) (domain.PointHistory, error) {
				return domain.PointHistory{}, ErrPointAlreadyCancelled
			},
		},
	}
	svc := newTestOrderMainService(t, fx)

	refund, err := svc.ApproveRefund(context.Background(), "ord_1", "admin-1")
	if err != nil {
		t.Fatalf("ApproveRefund: %v", err)
	}
	if !refund.Approved {
		t.Fatal("refund must be approved")
	}
}
