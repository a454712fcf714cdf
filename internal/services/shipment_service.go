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

const shipmentIDPrefix = "shp_"

// deliveryLeadTime is the estimate stamped when an order starts shipping.
const deliveryLeadTime = 48 * time.Hour

var (
	// ErrShipmentInvalidInput signals the caller provided invalid data.
	ErrShipmentInvalidInput = errors.New("shipment: invalid input")
	// ErrShipmentNotFound indicates no shipment exists for the order.
	ErrShipmentNotFound = errors.New("shipment: not found")
	// ErrShipmentConflict indicates concurrent update conflicts.
	ErrShipmentConflict = errors.New("shipment: conflict")
)

// ShipmentServiceDeps bundles collaborators for the shipment service.
type ShipmentServiceDeps struct {
	Shipments   repositories.ShipmentRepository
	Orders      OrderService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type shipmentService struct {
	shipments  repositories.ShipmentRepository
	orders     OrderService
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewShipmentService wires dependencies into a ShipmentService.
func NewShipmentService(deps ShipmentServiceDeps) (ShipmentService, error) {
	if deps.Shipments == nil {
		return nil, errors.New("shipment service: shipment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("shipment service: order service is required")
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

	return &shipmentService{
		shipments:  deps.Shipments,
		orders:     deps.Orders,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *shipmentService) Create(ctx context.Context, orderID string, input ShipmentInput) (domain.Shipment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Shipment{}, fmt.Errorf("%w: order id is required", ErrShipmentInvalidInput)
	}
	if strings.TrimSpace(input.RecipientName) == "" {
		return domain.Shipment{}, fmt.Errorf("%w: recipient name is required", ErrShipmentInvalidInput)
	}
	if strings.TrimSpace(input.Address) == "" {
		return domain.Shipment{}, fmt.Errorf("%w: address is required", ErrShipmentInvalidInput)
	}
	if input.PreferredDate.IsZero() {
		return domain.Shipment{}, fmt.Errorf("%w: preferred date is required", ErrShipmentInvalidInput)
	}

	// No order lookup here: the orchestrator creates the order and its
	// shipment in one transaction, where a read at this point would follow
	// the buffered order write.
	now := s.clock()
	shipment := domain.Shipment{
		ID:             shipmentIDPrefix + s.newID(),
		OrderID:        orderID,
		PreferredDate:  midnightUTC(input.PreferredDate),
		RecipientName:  strings.TrimSpace(input.RecipientName),
		RecipientPhone: strings.TrimSpace(input.RecipientPhone),
		PostalCode:     strings.TrimSpace(input.PostalCode),
		Address:        strings.TrimSpace(input.Address),
		DetailAddress:  strings.TrimSpace(input.DetailAddress),
		ShippingFee:    input.ShippingFee,
		ShippingCode:   strings.TrimSpace(input.ShippingCode),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.shipments.Insert(ctx, shipment); err != nil {
		return domain.Shipment{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "shipment.created", map[string]any{
		"orderId":    orderID,
		"shipmentId": shipment.ID,
	})
	return shipment, nil
}

func (s *shipmentService) GetByOrder(ctx context.Context, orderID string) (domain.Shipment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Shipment{}, fmt.Errorf("%w: order id is required", ErrShipmentInvalidInput)
	}

	shipment, err := s.shipments.FindByOrder(ctx, orderID)
	if err != nil {
		return domain.Shipment{}, s.mapRepositoryError(err)
	}
	return shipment, nil
}

// Advance moves fulfillment forward in two sweeps: confirmed orders with a
// shipment start shipping, and shipping orders whose preferred date has
// arrived are marked delivered. One failing order does not stop the sweep.
func (s *shipmentService) Advance(ctx context.Context) (ShipmentAdvanceResult, error) {
	var result ShipmentAdvanceResult

	confirmed, err := s.orders.ListByStatus(ctx, domain.OrderStatusConfirmed)
	if err != nil {
		return result, err
	}
	for _, order := range confirmed {
		if err := s.startShipping(ctx, order); err != nil {
			if errors.Is(err, ErrShipmentNotFound) {
				continue
			}
			s.logger(ctx, "shipment.advance.ship.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			continue
		}
		result.Shipped++
	}

	shipping, err := s.orders.ListByStatus(ctx, domain.OrderStatusShipping)
	if err != nil {
		return result, err
	}
	today := midnightUTC(s.clock())
	for _, order := range shipping {
		delivered, err := s.completeDelivery(ctx, order, today)
		if err != nil {
			s.logger(ctx, "shipment.advance.deliver.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			continue
		}
		if delivered {
			result.Delivered++
		}
	}

	if result.Shipped > 0 || result.Delivered > 0 {
		s.logger(ctx, "shipment.advanced", map[string]any{
			"shipped":   result.Shipped,
			"delivered": result.Delivered,
		})
	}
	return result, nil
}

func (s *shipmentService) startShipping(ctx context.Context, order domain.Order) error {
	return s.runInTx(ctx, func(txCtx context.Context) error {
		shipment, err := s.shipments.FindByOrder(txCtx, order.ID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		current, err := s.orders.Get(txCtx, order.ID)
		if err != nil {
			return err
		}

		estimate := s.clock().Add(deliveryLeadTime)
		shipment.DeliveredAt = valuePtr(estimate)
		shipment.UpdatedAt = s.clock()
		if err := s.shipments.Update(txCtx, shipment); err != nil {
			return s.mapRepositoryError(err)
		}

		_, err = s.orders.Transition(txCtx, current, domain.OrderStatusShipping)
		return err
	})
}

func (s *shipmentService) completeDelivery(ctx context.Context, order domain.Order, today time.Time) (bool, error) {
	delivered := false
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		delivered = false
		shipment, err := s.shipments.FindByOrder(txCtx, order.ID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if shipment.PreferredDate.After(today) {
			return nil
		}
		current, err := s.orders.Get(txCtx, order.ID)
		if err != nil {
			return err
		}

		now := s.clock()
		shipment.DeliveredAt = valuePtr(now)
		shipment.UpdatedAt = now
		if err := s.shipments.Update(txCtx, shipment); err != nil {
			return s.mapRepositoryError(err)
		}
		if _, err := s.orders.Transition(txCtx, current, domain.OrderStatusDelivered); err != nil {
			return err
		}
		delivered = true
		return nil
	})
	return delivered, err
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *shipmentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrShipmentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrShipmentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("shipment: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *shipmentService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}
