package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
)

type stubRepositoryError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepositoryError) Error() string       { return "stub repository error" }
func (e *stubRepositoryError) IsNotFound() bool    { return e.notFound }
func (e *stubRepositoryError) IsConflict() bool    { return e.conflict }
func (e *stubRepositoryError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepo struct {
	insertFn       func(ctx context.Context, order domain.Order) error
	updateFn       func(ctx context.Context, order domain.Order) error
	deleteFn       func(ctx context.Context, orderID string) error
	findFn         func(ctx context.Context, orderID string) (domain.Order, error)
	findByUUIDFn   func(ctx context.Context, orderUUID string) (domain.Order, error)
	listByStatusFn func(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, &stubRepositoryError{notFound: true}
}

func (s *stubOrderRepo) FindByUUID(ctx context.Context, orderUUID string) (domain.Order, error) {
	if s.findByUUIDFn != nil {
		return s.findByUUIDFn(ctx, orderUUID)
	}
	return domain.Order{}, &stubRepositoryError{notFound: true}
}

func (s *stubOrderRepo) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	if s.listByStatusFn != nil {
		return s.listByStatusFn(ctx, status)
	}
	return nil, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestOrderServiceCreate(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var inserted domain.Order

	repo := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      repo,
		Clock:       fixedClock(now),
		IDGenerator: func() string { return "01TEST" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.Create(context.Background(), CreateOrderCommand{
		UserID:       "user-1",
		OrdererName:  "Kim",
		OrdererPhone: "010-1234-5678",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if order.ID != "ord_01TEST" {
		t.Fatalf("order id = %q", order.ID)
	}
	if order.Status != domain.OrderStatusCreated {
		t.Fatalf("status = %q, want created", order.Status)
	}
	if order.OrderUUID == "" {
		t.Fatal("order uuid is empty")
	}
	if !order.OrderedAt.Equal(now) {
		t.Fatalf("orderedAt = %v, want %v", order.OrderedAt, now)
	}
	if inserted.ID != order.ID {
		t.Fatalf("inserted id = %q, want %q", inserted.ID, order.ID)
	}
}

func TestOrderServiceCreateRequiresOrdererName(t *testing.T) {
	svc, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepo{}})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.Create(context.Background(), CreateOrderCommand{UserID: "user-1"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("err = %v, want ErrOrderInvalidInput", err)
	}
}

func TestOrderServiceCreateAllowsGuest(t *testing.T) {
	svc, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepo{}})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.Create(context.Background(), CreateOrderCommand{OrdererName: "Guest"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !order.IsGuest() {
		t.Fatal("expected guest order")
	}
}

func TestOrderServiceUpdateStatusFollowsTransitionTable(t *testing.T) {
	cases := []struct {
		name    string
		from    domain.OrderStatus
		to      domain.OrderStatus
		allowed bool
	}{
		{"created to confirmed", domain.OrderStatusCreated, domain.OrderStatusConfirmed, true},
		{"created to cancelled", domain.OrderStatusCreated, domain.OrderStatusCancelled, true},
		{"created to delivered", domain.OrderStatusCreated, domain.OrderStatusDelivered, false},
		{"confirmed to shipping", domain.OrderStatusConfirmed, domain.OrderStatusShipping, true},
		{"confirmed to cancelled", domain.OrderStatusConfirmed, domain.OrderStatusCancelled, true},
		{"shipping to delivered", domain.OrderStatusShipping, domain.OrderStatusDelivered, true},
		{"shipping to cancelled", domain.OrderStatusShipping, domain.OrderStatusCancelled, false},
		{"delivered to refunded", domain.OrderStatusDelivered, domain.OrderStatusRefunded, true},
		{"cancelled is terminal", domain.OrderStatusCancelled, domain.OrderStatusConfirmed, false},
		{"refunded is terminal", domain.OrderStatusRefunded, domain.OrderStatusShipping, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubOrderRepo{
				findFn: func(_ context.Context, orderID string) (domain.Order, error) {
					return domain.Order{ID: orderID, Status: tc.from}, nil
				},
			}

			svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
			if err != nil {
				t.Fatalf("NewOrderService: %v", err)
			}

			order, err := svc.UpdateStatus(context.Background(), "ord_1", tc.to)
			if tc.allowed {
				if err != nil {
					t.Fatalf("UpdateStatus: %v", err)
				}
				if order.Status != tc.to {
					t.Fatalf("status = %q, want %q", order.Status, tc.to)
				}
				return
			}
			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("err = %v, want ErrOrderInvalidState", err)
			}
		})
	}
}

func TestOrderServiceUpdateStatusIsIdempotentForSameStatus(t *testing.T) {
	updated := false
	repo := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, Status: domain.OrderStatusConfirmed}, nil
		},
		updateFn: func(context.Context, domain.Order) error {
			updated = true
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.UpdateStatus(context.Background(), "ord_1", domain.OrderStatusConfirmed); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated {
		t.Fatal("expected no write for no-op transition")
	}
}

func TestOrderServiceTransitionWritesWithoutReading(t *testing.T) {
	read := false
	var written domain.Order
	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			read = true
			return domain.Order{}, &stubRepositoryError{notFound: true}
		},
		updateFn: func(_ context.Context, order domain.Order) error {
			written = order
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.Transition(context.Background(), domain.Order{
		ID:     "ord_1",
		Status: domain.OrderStatusCreated,
	}, domain.OrderStatusConfirmed)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if read {
		t.Fatal("Transition must not read the order")
	}
	if order.Status != domain.OrderStatusConfirmed || written.Status != domain.OrderStatusConfirmed {
		t.Fatalf("status = %q / %q, want confirmed", order.Status, written.Status)
	}
}

func TestOrderServiceTransitionRejectsInvalidMove(t *testing.T) {
	svc, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepo{}})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.Transition(context.Background(), domain.Order{
		ID:     "ord_1",
		Status: domain.OrderStatusCancelled,
	}, domain.OrderStatusConfirmed)
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("err = %v, want ErrOrderInvalidState", err)
	}
}

func TestOrderServiceGetMapsNotFound(t *testing.T) {
	svc, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepo{}})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	_, err = svc.Get(context.Background(), "ord_missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestOrderServiceDeleteChecksExistence(t *testing.T) {
	deleted := false
	repo := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, Status: domain.OrderStatusCreated}, nil
		},
		deleteFn: func(context.Context, string) error {
			deleted = true
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if err := svc.Delete(context.Background(), "ord_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete call")
	}
}
