package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventDeleted       = "order.deleted"

	orderIDPrefix = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent update conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusCreated:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusShipping, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusShipping:  {domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	domain.OrderStatusDelivered: {domain.OrderStatusRefunded},
	domain.OrderStatusCancelled: {},
	domain.OrderStatusRefunded:  {},
}

func canTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
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
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	name := strings.TrimSpace(cmd.OrdererName)
	if name == "" {
		return domain.Order{}, fmt.Errorf("%w: orderer name is required", ErrOrderInvalidInput)
	}

	now := s.now()
	order := domain.Order{
		ID:           orderIDPrefix + s.newID(),
		UserID:       strings.TrimSpace(cmd.UserID),
		Status:       domain.OrderStatusCreated,
		OrderUUID:    uuid.NewString(),
		OrdererName:  name,
		OrdererPhone: strings.TrimSpace(cmd.OrdererPhone),
		OrderedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, orderEventCreated, map[string]any{
		"orderId": order.ID,
		"userId":  order.UserID,
		"guest":   order.IsGuest(),
	})
	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetByUUID(ctx context.Context, orderUUID string) (domain.Order, error) {
	orderUUID = strings.TrimSpace(orderUUID)
	if orderUUID == "" {
		return domain.Order{}, fmt.Errorf("%w: order uuid is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByUUID(ctx, orderUUID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if _, ok := orderStateTransitions[target]; !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	var order domain.Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		found, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		moved, err := s.Transition(txCtx, found, target)
		if err != nil {
			return err
		}
		order = moved
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Transition applies the status change to an order the caller already
// loaded. It buffers exactly one write, so composed transactions call it
// after their read phase. Moving to the current status is a no-op.
func (s *orderService) Transition(ctx context.Context, order domain.Order, target domain.OrderStatus) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if _, ok := orderStateTransitions[target]; !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	prev := order.Status
	if prev == target {
		return order, nil
	}
	if !canTransition(prev, target) {
		return domain.Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, prev, target)
	}

	order.Status = target
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, orderEventStatusChanged, map[string]any{
		"orderId": order.ID,
		"from":    string(prev),
		"to":      string(target),
	})
	return order, nil
}

func (s *orderService) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	orders, err := s.orders.ListByStatus(ctx, status)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) Delete(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.orders.FindByID(txCtx, orderID); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Delete(txCtx, orderID); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx, orderEventDeleted, map[string]any{"orderId": orderID})
	return nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}
