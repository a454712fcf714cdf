package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/ink3-shop/api/internal/services"
)

// accrualRatePercent is the share of the settled amount credited back as points.
const accrualRatePercent = 5

// PointAccrualConsumerDeps bundles collaborators for the accrual worker.
type PointAccrualConsumerDeps struct {
	Subscription *pubsub.Subscription
	Points       services.PointService
	Logger       *zap.Logger
}

// PointAccrualConsumer credits points for settled payments. Replays are
// detected through the ledger description, which carries the payment id.
type PointAccrualConsumer struct {
	subscription *pubsub.Subscription
	points       services.PointService
	logger       *zap.Logger
}

// NewPointAccrualConsumer wires dependencies into a PointAccrualConsumer.
func NewPointAccrualConsumer(deps PointAccrualConsumerDeps) (*PointAccrualConsumer, error) {
	if deps.Points == nil {
		return nil, errors.New("point accrual consumer: point service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PointAccrualConsumer{
		subscription: deps.Subscription,
		points:       deps.Points,
		logger:       logger,
	}, nil
}

// Run blocks receiving messages until ctx is cancelled. Failed messages are
// nacked for redelivery; Handle itself is idempotent.
func (c *PointAccrualConsumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("point accrual consumer: subscription is required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := c.Handle(ctx, msg.Data); err != nil {
			c.logger.Warn("point accrual failed", zap.Error(err))
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Handle credits the accrual for one settled payment. Applying the same
// payment twice is a no-op.
func (c *PointAccrualConsumer) Handle(ctx context.Context, payload []byte) error {
	var msg services.PointAccrualMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("point accrual: malformed payload: %w", err)
	}
	if strings.TrimSpace(msg.PaymentID) == "" {
		return errors.New("point accrual: payment id is required")
	}
	if strings.TrimSpace(msg.UserID) == "" || msg.Amount <= 0 {
		return nil
	}

	earned := msg.Amount * accrualRatePercent / 100
	if earned <= 0 {
		return nil
	}

	description := accrualDescription(msg.PaymentID)

	applied, err := c.alreadyApplied(ctx, msg.UserID, description)
	if err != nil {
		return err
	}
	if applied {
		c.logger.Info("point accrual already applied",
			zap.String("paymentId", msg.PaymentID),
			zap.String("userId", msg.UserID),
		)
		return nil
	}

	entry, err := c.points.Earn(ctx, msg.UserID, earned, description)
	if err != nil {
		return fmt.Errorf("point accrual: earn: %w", err)
	}
	if msg.OrderID != "" {
		if err := c.points.LinkOrder(ctx, msg.OrderID, entry.ID); err != nil {
			return fmt.Errorf("point accrual: link order: %w", err)
		}
	}

	c.logger.Info("point accrual applied",
		zap.String("paymentId", msg.PaymentID),
		zap.String("userId", msg.UserID),
		zap.Int64("earned", earned),
	)
	return nil
}

func (c *PointAccrualConsumer) alreadyApplied(ctx context.Context, userID string, description string) (bool, error) {
	entries, err := c.points.History(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("point accrual: history: %w", err)
	}
	for _, entry := range entries {
		if entry.Description == description {
			return true, nil
		}
	}
	return false, nil
}

func accrualDescription(paymentID string) string {
	return "accrual " + strings.TrimSpace(paymentID)
}
