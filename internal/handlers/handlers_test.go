package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/services"
)

type stubOrderMainService struct {
	createFn  func(ctx context.Context, cmd services.CreateOrderFormCommand) (services.OrderForm, error)
	requestFn func(ctx context.Context, cmd services.RequestRefundCommand) (domain.Refund, error)
	approveFn func(ctx context.Context, orderID string, approvedBy string) (domain.Refund, error)
}

func (s *stubOrderMainService) CreateOrderForm(ctx context.Context, cmd services.CreateOrderFormCommand) (services.OrderForm, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.OrderForm{}, nil
}

func (s *stubOrderMainService) RequestRefund(ctx context.Context, cmd services.RequestRefundCommand) (domain.Refund, error) {
	if s.requestFn != nil {
		return s.requestFn(ctx, cmd)
	}
	return domain.Refund{OrderID: cmd.OrderID}, nil
}

func (s *stubOrderMainService) ApproveRefund(ctx context.Context, orderID string, approvedBy string) (domain.Refund, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, orderID, approvedBy)
	}
	return domain.Refund{OrderID: orderID, Approved: true, ApprovedBy: approvedBy}, nil
}

type stubOrderService struct {
	getFn func(ctx context.Context, orderID string) (domain.Order, error)
}

func (s *stubOrderService) Create(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	return domain.Order{UserID: cmd.UserID}, nil
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Order{ID: orderID, Status: domain.OrderStatusCreated}, nil
}

func (s *stubOrderService) GetByUUID(_ context.Context, orderUUID string) (domain.Order, error) {
	return domain.Order{OrderUUID: orderUUID}, nil
}

func (s *stubOrderService) UpdateStatus(_ context.Context, orderID string, target domain.OrderStatus) (domain.Order, error) {
	return domain.Order{ID: orderID, Status: target}, nil
}

func (s *stubOrderService) Transition(_ context.Context, order domain.Order, target domain.OrderStatus) (domain.Order, error) {
	order.Status = target
	return order, nil
}

func (s *stubOrderService) ListByStatus(context.Context, domain.OrderStatus) ([]domain.Order, error) {
	return nil, nil
}

func (s *stubOrderService) Delete(context.Context, string) error { return nil }

type stubOrderBookService struct {
	listFn func(ctx context.Context, orderID string) ([]domain.OrderBook, error)
}

func (s *stubOrderBookService) PrepareOrderBooks(context.Context, []services.LineItemInput) (services.OrderBookPlan, error) {
	return services.OrderBookPlan{}, nil
}

func (s *stubOrderBookService) CreateOrderBooks(context.Context, string, services.OrderBookPlan) ([]domain.OrderBook, error) {
	return nil, nil
}

func (s *stubOrderBookService) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderBook, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubOrderBookService) RestockBooks(context.Context, []domain.OrderBook) error { return nil }

func (s *stubOrderBookService) OrderCouponStoreID(context.Context, string) (*string, error) {
	return nil, nil
}

type stubShipmentService struct {
	getFn func(ctx context.Context, orderID string) (domain.Shipment, error)
}

func (s *stubShipmentService) Create(_ context.Context, orderID string, _ services.ShipmentInput) (domain.Shipment, error) {
	return domain.Shipment{OrderID: orderID}, nil
}

func (s *stubShipmentService) GetByOrder(ctx context.Context, orderID string) (domain.Shipment, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Shipment{}, services.ErrShipmentNotFound
}

func (s *stubShipmentService) Advance(context.Context) (services.ShipmentAdvanceResult, error) {
	return services.ShipmentAdvanceResult{}, nil
}

type stubPaymentService struct {
	confirmFn func(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Payment, error)
	failFn    func(ctx context.Context, orderID string) error
	cancelFn  func(ctx context.Context, orderID string, reason string) (domain.Order, error)
	getFn     func(ctx context.Context, orderID string) (domain.Payment, error)
}

func (s *stubPaymentService) Confirm(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Payment, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return domain.Payment{ID: "pay_1", OrderID: cmd.OrderID, Type: cmd.PaymentType, PaymentAmount: cmd.Amount}, nil
}

func (s *stubPaymentService) Fail(ctx context.Context, orderID string) error {
	if s.failFn != nil {
		return s.failFn(ctx, orderID)
	}
	return nil
}

func (s *stubPaymentService) Cancel(ctx context.Context, orderID string, reason string) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, orderID, reason)
	}
	return domain.Order{ID: orderID, Status: domain.OrderStatusCancelled}, nil
}

func (s *stubPaymentService) Get(ctx context.Context, orderID string) (domain.Payment, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Payment{ID: "pay_1", OrderID: orderID}, nil
}

func (s *stubPaymentService) Delete(context.Context, string) error { return nil }

type stubCouponStoreService struct {
	issueFn  func(ctx context.Context, cmd services.IssueCouponCommand) (domain.CouponStore, error)
	getFn    func(ctx context.Context, storeID string) (domain.CouponStore, error)
	deleteFn func(ctx context.Context, storeID string) error
}

func (s *stubCouponStoreService) Issue(ctx context.Context, cmd services.IssueCouponCommand) (domain.CouponStore, error) {
	if s.issueFn != nil {
		return s.issueFn(ctx, cmd)
	}
	return domain.CouponStore{ID: "cst_1", UserID: cmd.UserID, CouponID: cmd.CouponID, Status: domain.CouponStoreReady}, nil
}

func (s *stubCouponStoreService) IssueCommon(_ context.Context, cmd services.IssueCouponCommand) (domain.CouponStore, bool, error) {
	return domain.CouponStore{UserID: cmd.UserID}, true, nil
}

func (s *stubCouponStoreService) MarkUsed(context.Context, string, time.Time) error { return nil }

func (s *stubCouponStoreService) MarkReady(context.Context, string) error { return nil }

func (s *stubCouponStoreService) Restore(context.Context, domain.CouponStore) error { return nil }

func (s *stubCouponStoreService) DisableByCoupon(context.Context, string) (int, error) {
	return 0, nil
}

func (s *stubCouponStoreService) ReactivateByCoupon(context.Context, string) (int, error) {
	return 0, nil
}

func (s *stubCouponStoreService) HasReady(context.Context, string, domain.CouponOrigin) (bool, error) {
	return false, nil
}

func (s *stubCouponStoreService) Get(ctx context.Context, storeID string) (domain.CouponStore, error) {
	if s.getFn != nil {
		return s.getFn(ctx, storeID)
	}
	return domain.CouponStore{ID: storeID}, nil
}

func (s *stubCouponStoreService) ListByUser(context.Context, string) ([]domain.CouponStore, error) {
	return nil, nil
}

func (s *stubCouponStoreService) Delete(ctx context.Context, storeID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, storeID)
	}
	return nil
}

func performRequest(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}
