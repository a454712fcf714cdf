package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ink3-shop/api/internal/services"
)

const defaultSweepInterval = time.Minute

// ShipmentAdvancerDeps bundles collaborators for the fulfillment sweep.
type ShipmentAdvancerDeps struct {
	Shipments services.ShipmentService
	Interval  time.Duration
	Logger    *zap.Logger
}

// ShipmentAdvancer sweeps fulfillment state on a fixed interval: confirmed
// orders with a shipment start shipping, due shipments complete delivery.
type ShipmentAdvancer struct {
	shipments services.ShipmentService
	interval  time.Duration
	logger    *zap.Logger
}

// NewShipmentAdvancer wires dependencies into a ShipmentAdvancer.
func NewShipmentAdvancer(deps ShipmentAdvancerDeps) (*ShipmentAdvancer, error) {
	if deps.Shipments == nil {
		return nil, errors.New("shipment advancer: shipment service is required")
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShipmentAdvancer{
		shipments: deps.Shipments,
		interval:  interval,
		logger:    logger,
	}, nil
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (a *ShipmentAdvancer) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *ShipmentAdvancer) sweep(ctx context.Context) {
	result, err := a.shipments.Advance(ctx)
	if err != nil {
		a.logger.Warn("shipment sweep failed", zap.Error(err))
		return
	}
	if result.Shipped > 0 || result.Delivered > 0 {
		a.logger.Info("shipment sweep advanced orders",
			zap.Int("shipped", result.Shipped),
			zap.Int("delivered", result.Delivered),
		)
	}
}
