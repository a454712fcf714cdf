package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/payments"
	"github.com/ink3-shop/api/internal/repositories"
)

const paymentIDPrefix = "pay_"

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates no payment exists for the order.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentConflict indicates a payment already exists for the order.
	ErrPaymentConflict = errors.New("payment: already exists")
	// ErrPaymentCancelNotAllowed indicates the order status forbids cancellation.
	ErrPaymentCancelNotAllowed = errors.New("payment: order not cancellable")
	// ErrPointPaymentForGuest indicates a guest attempted a point settlement.
	ErrPointPaymentForGuest = errors.New("payment: point payment requires a member")
	// ErrPaymentProcessorFailed indicates the PSP call failed.
	ErrPaymentProcessorFailed = errors.New("payment: processor failed")
	// ErrPaymentParserFailed indicates the PSP payload could not be interpreted.
	ErrPaymentParserFailed = errors.New("payment: parser failed")
)

var cancellableOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusCreated,
	domain.OrderStatusConfirmed,
}

// compensationOptions toggles the individual steps of the shared
// compensation routine.
type compensationOptions struct {
	restock          bool
	reactivateCoupon bool
	recreditPoints   bool
}

// compensationPlan holds everything the compensation reads collected, ready
// for the write phase.
type compensationPlan struct {
	order       domain.Order
	opts        compensationOptions
	lines       []domain.OrderBook
	couponStore *domain.CouponStore
	reversals   []domain.PointHistory
}

// settlementCompensator undoes the side effects of an order settlement. The
// fail, cancel and refund paths all run through it. prepare performs every
// read and apply buffers every write, so a composed transaction can place
// its own writes between the two phases without breaking the reads-first
// ordering Firestore transactions require.
type settlementCompensator struct {
	orderBooks OrderBookService
	coupons    CouponStoreService
	points     PointService
	logger     func(context.Context, string, map[string]any)
}

func (c *settlementCompensator) prepare(ctx context.Context, order domain.Order, opts compensationOptions) (compensationPlan, error) {
	plan := compensationPlan{order: order, opts: opts}

	if opts.restock {
		lines, err := c.orderBooks.ListByOrder(ctx, order.ID)
		if err != nil {
			return compensationPlan{}, err
		}
		plan.lines = lines
	}

	if opts.reactivateCoupon {
		storeID, err := c.orderBooks.OrderCouponStoreID(ctx, order.ID)
		if err != nil {
			return compensationPlan{}, err
		}
		if storeID != nil {
			store, err := c.coupons.Get(ctx, *storeID)
			if err != nil {
				return compensationPlan{}, err
			}
			plan.couponStore = &store
		}
	}

	if opts.recreditPoints && !order.IsGuest() {
		links, err := c.points.OrderPoints(ctx, order.ID)
		if err != nil {
			return compensationPlan{}, err
		}
		for _, link := range links {
			reversal, err := c.points.ReversalFor(ctx, order.UserID, link.PointHistoryID)
			if err != nil {
				// Replays land here when an earlier compensation attempt
				// already reversed the entry.
				if errors.Is(err, ErrPointAlreadyCancelled) {
					continue
				}
				return compensationPlan{}, err
			}
			plan.reversals = append(plan.reversals, reversal)
		}
	}

	return plan, nil
}

func (c *settlementCompensator) apply(ctx context.Context, plan compensationPlan) error {
	if plan.opts.restock {
		if err := c.orderBooks.RestockBooks(ctx, plan.lines); err != nil {
			return err
		}
	}

	if plan.couponStore != nil {
		if err := c.coupons.Restore(ctx, *plan.couponStore); err != nil {
			return err
		}
	}

	for _, reversal := range plan.reversals {
		if err := c.points.AppendEntry(ctx, reversal); err != nil {
			return err
		}
	}

	c.logger(ctx, "payment.compensated", map[string]any{
		"orderId": plan.order.ID,
		"restock": plan.opts.restock,
		"coupon":  plan.opts.reactivateCoupon,
		"points":  plan.opts.recreditPoints,
	})
	return nil
}

// PaymentServiceDeps bundles collaborators for the settlement service.
type PaymentServiceDeps struct {
	Payments    repositories.PaymentRepository
	Orders      OrderService
	OrderBooks  OrderBookService
	Coupons     CouponStoreService
	Points      PointService
	Registry    *payments.Registry
	Events      PointEventPublisher
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments    repositories.PaymentRepository
	orders      OrderService
	orderBooks  OrderBookService
	coupons     CouponStoreService
	points      PointService
	registry    *payments.Registry
	events      PointEventPublisher
	compensator *settlementCompensator
	unitOfWork  repositories.UnitOfWork
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.OrderBooks == nil {
		return nil, errors.New("payment service: order book service is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("payment service: coupon store service is required")
	}
	if deps.Points == nil {
		return nil, errors.New("payment service: point service is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("payment service: payment registry is required")
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

	return &paymentService{
		payments:   deps.Payments,
		orders:     deps.Orders,
		orderBooks: deps.OrderBooks,
		coupons:    deps.Coupons,
		points:     deps.Points,
		registry:   deps.Registry,
		events:     deps.Events,
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

func (s *paymentService) Confirm(ctx context.Context, cmd ConfirmPaymentCommand) (domain.Payment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	if cmd.Amount < 0 || cmd.UsedPoint < 0 || cmd.DiscountPrice < 0 {
		return domain.Payment{}, fmt.Errorf("%w: amounts must not be negative", ErrPaymentInvalidInput)
	}

	// Cheap rejections before the gateway round trip. The transaction
	// re-checks order status and payment uniqueness under isolation.
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if order.Status != domain.OrderStatusCreated {
		return domain.Payment{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, orderID, order.Status)
	}
	if cmd.PaymentType == domain.PaymentTypePoint && order.IsGuest() {
		return domain.Payment{}, fmt.Errorf("%w: order %s", ErrPointPaymentForGuest, orderID)
	}

	if _, err := s.payments.FindByOrder(ctx, orderID); err == nil {
		return domain.Payment{}, fmt.Errorf("%w: order %s", ErrPaymentConflict, orderID)
	} else if mapped := s.mapRepositoryError(err); !errors.Is(mapped, ErrPaymentNotFound) {
		return domain.Payment{}, mapped
	}

	strategy, err := s.registry.Resolve(cmd.PaymentType)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	raw, err := strategy.Processor.Approve(ctx, payments.ApproveRequest{
		OrderUUID:      order.OrderUUID,
		PaymentKey:     strings.TrimSpace(cmd.PaymentKey),
		Amount:         cmd.Amount,
		IdempotencyKey: "confirm:" + order.OrderUUID,
	})
	if err != nil {
		return domain.Payment{}, fmt.Errorf("%w: %v", ErrPaymentProcessorFailed, err)
	}

	approval, err := strategy.Parser.Parse(ctx, raw)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("%w: %v", ErrPaymentParserFailed, err)
	}

	payment := domain.Payment{
		ID:            paymentIDPrefix + s.newID(),
		OrderID:       orderID,
		PaymentKey:    optionalString(approval.PaymentKey),
		UsedPoint:     cmd.UsedPoint,
		DiscountPrice: cmd.DiscountPrice,
		PaymentAmount: approval.Amount,
		Type:          cmd.PaymentType,
		RequestedAt:   approval.RequestedAt,
		ApprovedAt:    approval.ApprovedAt,
	}

	// Reads come first inside the transaction; Spend carries the last read
	// (the balance) and the first write, and everything after it only
	// buffers writes.
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return err
		}
		if current.Status != domain.OrderStatusCreated {
			return fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, orderID, current.Status)
		}
		if _, err := s.payments.FindByOrder(txCtx, orderID); err == nil {
			return fmt.Errorf("%w: order %s", ErrPaymentConflict, orderID)
		} else if mapped := s.mapRepositoryError(err); !errors.Is(mapped, ErrPaymentNotFound) {
			return mapped
		}

		if cmd.UsedPoint > 0 {
			entry, err := s.points.Spend(txCtx, current.UserID, cmd.UsedPoint, "order "+orderID)
			if err != nil {
				return err
			}
			if err := s.points.LinkOrder(txCtx, orderID, entry.ID); err != nil {
				return err
			}
		}
		if err := s.payments.Insert(txCtx, payment); err != nil {
			return s.mapRepositoryError(err)
		}
		if _, err := s.orders.Transition(txCtx, current, domain.OrderStatusConfirmed); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.logger(ctx, "payment.confirmed", map[string]any{
		"orderId":   orderID,
		"paymentId": payment.ID,
		"type":      string(payment.Type),
		"amount":    payment.PaymentAmount,
	})

	s.publishAccrual(ctx, order, payment)
	return payment, nil
}

// publishAccrual hands the point accrual off to the background worker.
// Publish failures are logged, never surfaced to the settlement caller.
func (s *paymentService) publishAccrual(ctx context.Context, order domain.Order, payment domain.Payment) {
	if s.events == nil || order.IsGuest() || payment.PaymentAmount <= 0 {
		return
	}
	_, err := s.events.PublishPointAccrual(ctx, PointAccrualMessage{
		PaymentID: payment.ID,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Amount:    payment.PaymentAmount,
	})
	if err != nil {
		s.logger(ctx, "payment.accrual.publish.failed", map[string]any{
			"orderId":   order.ID,
			"paymentId": payment.ID,
			"error":     err.Error(),
		})
	}
}

// Fail rolls back an unsettled order: stock returns, the coupon becomes
// usable again, the order is cancelled. No gateway call is made.
func (s *paymentService) Fail(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return err
		}
		plan, err := s.compensator.prepare(txCtx, order, compensationOptions{
			restock:          true,
			reactivateCoupon: true,
		})
		if err != nil {
			return err
		}
		if err := s.compensator.apply(txCtx, plan); err != nil {
			return err
		}
		if _, err := s.orders.Transition(txCtx, order, domain.OrderStatusCancelled); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx, "payment.failed", map[string]any{"orderId": orderID})
	return nil
}

func (s *paymentService) Cancel(ctx context.Context, orderID string, reason string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	cancellable := false
	for _, status := range cancellableOrderStatuses {
		if order.Status == status {
			cancellable = true
			break
		}
	}
	if !cancellable {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s", ErrPaymentCancelNotAllowed, orderID, order.Status)
	}

	payment, err := s.payments.FindByOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	strategy, err := s.registry.Resolve(payment.Type)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	paymentKey := ""
	if payment.PaymentKey != nil {
		paymentKey = *payment.PaymentKey
	}
	err = strategy.Processor.Cancel(ctx, payments.CancelRequest{
		PaymentKey:     paymentKey,
		Amount:         payment.PaymentAmount,
		Reason:         strings.TrimSpace(reason),
		IdempotencyKey: "cancel:" + payment.ID,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrPaymentProcessorFailed, err)
	}

	var cancelled domain.Order
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return err
		}
		plan, err := s.compensator.prepare(txCtx, current, compensationOptions{
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
		updated, err := s.orders.Transition(txCtx, current, domain.OrderStatusCancelled)
		if err != nil {
			return err
		}
		cancelled = updated
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, "payment.cancelled", map[string]any{
		"orderId":   orderID,
		"paymentId": payment.ID,
		"reason":    reason,
	})
	return cancelled, nil
}

func (s *paymentService) Get(ctx context.Context, orderID string) (domain.Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByOrder(ctx, orderID)
	if err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}
	return payment, nil
}

func (s *paymentService) Delete(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return err
	}

	return s.runInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.payments.FindByOrder(txCtx, orderID); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.payments.DeleteByOrder(txCtx, orderID); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *paymentService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}
