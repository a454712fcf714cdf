package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/repositories"
)

const refundIDPrefix = "rfd_"

var (
	// ErrRefundInvalidInput signals the caller provided invalid data.
	ErrRefundInvalidInput = errors.New("refund: invalid input")
	// ErrRefundNotFound indicates no refund request exists for the order.
	ErrRefundNotFound = errors.New("refund: not found")
	// ErrRefundConflict indicates a refund request already exists.
	ErrRefundConflict = errors.New("refund: already requested")
	// ErrRefundNotAllowed indicates the order status forbids a refund.
	ErrRefundNotAllowed = errors.New("refund: order not refundable")
	// ErrRefundAlreadyApproved indicates the refund was approved before.
	ErrRefundAlreadyApproved = errors.New("refund: already approved")
)

var refundableOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusConfirmed,
	domain.OrderStatusShipping,
	domain.OrderStatusDelivered,
}

// OrderMainServiceDeps bundles collaborators for the orchestrator.
type OrderMainServiceDeps struct {
	Refunds     repositories.RefundRepository
	Payments    repositories.PaymentRepository
	Orders      OrderService
	OrderBooks  OrderBookService
	Shipments   ShipmentService
	Coupons     CouponStoreService
	Points      PointService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderMainService struct {
	refunds     repositories.RefundRepository
	payments    repositories.PaymentRepository
	orders      OrderService
	orderBooks  OrderBookService
	shipments   ShipmentService
	compensator *settlementCompensator
	unitOfWork  repositories.UnitOfWork
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewOrderMainService wires dependencies into an OrderMainService.
func NewOrderMainService(deps OrderMainServiceDeps) (OrderMainService, error) {
	if deps.Refunds == nil {
		return nil, errors.New("order main service: refund repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order main service: payment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order main service: order service is required")
	}
	if deps.OrderBooks == nil {
		return nil, errors.New("order main service: order book service is required")
	}
	if deps.Shipments == nil {
		return nil, errors.New("order main service: shipment service is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("order main service: coupon store service is required")
	}
	if deps.Points == nil {
		return nil, errors.New("order main service: point service is required")
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

	return &orderMainService{
		refunds:    deps.Refunds,
		payments:   deps.Payments,
		orders:     deps.Orders,
		orderBooks: deps.OrderBooks,
		shipments:  deps.Shipments,
		compensator: &settlementCompensator{
			orderBooks: deps.OrderBooks,
			coupons:    deps.Coupons,
			points:     deps.Points,
			logger:     logger,
		},
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

// CreateOrderForm builds the order header, its shipment and every line item
// inside one transaction. A mid-sequence failure leaves no partial order.
// The line items are prepared first so all transactional reads precede the
// first buffered write.
func (s *orderMainService) CreateOrderForm(ctx context.Context, cmd CreateOrderFormCommand) (OrderForm, error) {
	if len(cmd.Items) == 0 {
		return OrderForm{}, fmt.Errorf("%w: at least one line item is required", ErrOrderInvalidInput)
	}

	var form OrderForm
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		plan, err := s.orderBooks.PrepareOrderBooks(txCtx, cmd.Items)
		if err != nil {
			return err
		}

		order, err := s.orders.Create(txCtx, CreateOrderCommand{
			UserID:       cmd.UserID,
			OrdererName:  cmd.OrdererName,
			OrdererPhone: cmd.OrdererPhone,
		})
		if err != nil {
			return err
		}

		shipment, err := s.shipments.Create(txCtx, order.ID, cmd.Shipment)
		if err != nil {
			return err
		}

		items, err := s.orderBooks.CreateOrderBooks(txCtx, order.ID, plan)
		if err != nil {
			return err
		}

		form = OrderForm{Order: order, Shipment: shipment, Items: items}
		return nil
	})
	if err != nil {
		return OrderForm{}, err
	}

	s.logger(ctx, "order.form.created", map[string]any{
		"orderId": form.Order.ID,
		"items":   len(form.Items),
	})
	return form, nil
}

func (s *orderMainService) RequestRefund(ctx context.Context, cmd RequestRefundCommand) (domain.Refund, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Refund{}, fmt.Errorf("%w: order id is required", ErrRefundInvalidInput)
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return domain.Refund{}, fmt.Errorf("%w: reason is required", ErrRefundInvalidInput)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Refund{}, err
	}
	if !slices.Contains(refundableOrderStatuses, order.Status) {
		return domain.Refund{}, fmt.Errorf("%w: order %s is %s", ErrRefundNotAllowed, orderID, order.Status)
	}

	if _, err := s.refunds.FindByOrder(ctx, orderID); err == nil {
		return domain.Refund{}, fmt.Errorf("%w: order %s", ErrRefundConflict, orderID)
	} else if mapped := s.mapRepositoryError(err); !errors.Is(mapped, ErrRefundNotFound) {
		return domain.Refund{}, mapped
	}

	payment, err := s.payments.FindByOrder(ctx, orderID)
	if err != nil {
		return domain.Refund{}, s.mapPaymentError(err)
	}

	refund := domain.Refund{
		ID:        refundIDPrefix + s.newID(),
		OrderID:   orderID,
		Reason:    strings.TrimSpace(cmd.Reason),
		Details:   strings.TrimSpace(cmd.Details),
		Amount:    payment.PaymentAmount,
		CreatedAt: s.clock(),
	}
	if err := s.refunds.Insert(ctx, refund); err != nil {
		return domain.Refund{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "refund.requested", map[string]any{
		"orderId":  orderID,
		"refundId": refund.ID,
		"amount":   refund.Amount,
	})
	return refund, nil
}

// ApproveRefund marks the refund approved and undoes the settlement: stock
// returns, the coupon becomes ready, order points are re-credited, the order
// moves to refunded. All of it in one transaction.
func (s *orderMainService) ApproveRefund(ctx context.Context, orderID string, approvedBy string) (domain.Refund, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Refund{}, fmt.Errorf("%w: order id is required", ErrRefundInvalidInput)
	}

	var approved domain.Refund
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		refund, err := s.refunds.FindByOrder(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if refund.Approved {
			return fmt.Errorf("%w: refund %s", ErrRefundAlreadyApproved, refund.ID)
		}

		order, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return err
		}

		plan, err := s.compensator.prepare(txCtx, order, compensationOptions{
			restock:          true,
			reactivateCoupon: true,
			recreditPoints:   true,
		})
		if err != nil {
			return err
		}
		if err := s.compensator.apply(txCtx, plan); err != nil {
			return err
		}

		now := s.clock()
		refund.Approved = true
		refund.ApprovedBy = strings.TrimSpace(approvedBy)
		refund.ApprovedAt = valuePtr(now)
		if err := s.refunds.Update(txCtx, refund); err != nil {
			return s.mapRepositoryError(err)
		}

		if _, err := s.orders.Transition(txCtx, order, domain.OrderStatusRefunded); err != nil {
			return err
		}
		approved = refund
		return nil
	})
	if err != nil {
		return domain.Refund{}, err
	}

	s.logger(ctx, "refund.approved", map[string]any{
		"orderId":  orderID,
		"refundId": approved.ID,
		"amount":   approved.Amount,
	})
	return approved, nil
}

func (s *orderMainService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrRefundNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrRefundConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("refund: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderMainService) mapPaymentError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
	}
	return err
}

func (s *orderMainService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}
