package jobs

import (
	"context"
	"errors"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// DeadLetterConsumer drains the dead letter subscription and logs each
// payload. There is no durable reprocessing store yet; the log line is the
// operator's handle on the failed batch.
type DeadLetterConsumer struct {
	subscription *pubsub.Subscription
	logger       *zap.Logger
}

// NewDeadLetterConsumer wires the dead letter subscription to the logger.
func NewDeadLetterConsumer(subscription *pubsub.Subscription, logger *zap.Logger) (*DeadLetterConsumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadLetterConsumer{subscription: subscription, logger: logger}, nil
}

// Run blocks receiving messages until ctx is cancelled.
func (c *DeadLetterConsumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("dead letter consumer: subscription is required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		c.logger.Error("dead lettered coupon batch",
			zap.ByteString("payload", msg.Data),
			zap.String("cause", msg.Attributes["error"]),
			zap.String("attempts", msg.Attributes["attempts"]),
		)
		msg.Ack()
	})
}
