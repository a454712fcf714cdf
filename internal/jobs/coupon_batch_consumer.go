package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	domain "github.com/ink3-shop/api/internal/domain"
	"github.com/ink3-shop/api/internal/services"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 2 * time.Second
)

// DeadLetterPublisher forwards exhausted messages to the dead letter topic.
type DeadLetterPublisher interface {
	PublishDead(ctx context.Context, payload []byte, cause string, attempts int) (string, error)
}

// CouponBatchConsumerDeps bundles collaborators for the birthday batch consumer.
type CouponBatchConsumerDeps struct {
	Subscription *pubsub.Subscription
	Coupons      services.CouponStoreService
	DeadLetter   DeadLetterPublisher
	MaxAttempts  int
	BackoffBase  time.Duration
	Logger       *zap.Logger
	Sleep        func(ctx context.Context, d time.Duration) error
}

// CouponBatchConsumer applies birthday coupon batches. Issuance is idempotent
// per user, the whole message is retried with backoff, and exhausted messages
// land on the dead letter topic instead of requeueing forever.
type CouponBatchConsumer struct {
	subscription *pubsub.Subscription
	coupons      services.CouponStoreService
	deadLetter   DeadLetterPublisher
	maxAttempts  int
	backoffBase  time.Duration
	logger       *zap.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewCouponBatchConsumer wires dependencies into a CouponBatchConsumer.
func NewCouponBatchConsumer(deps CouponBatchConsumerDeps) (*CouponBatchConsumer, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon batch consumer: coupon store service is required")
	}
	if deps.DeadLetter == nil {
		return nil, errors.New("coupon batch consumer: dead letter publisher is required")
	}

	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := deps.BackoffBase
	if backoff <= 0 {
		backoff = defaultBackoffBase
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &CouponBatchConsumer{
		subscription: deps.Subscription,
		coupons:      deps.Coupons,
		deadLetter:   deps.DeadLetter,
		maxAttempts:  maxAttempts,
		backoffBase:  backoff,
		logger:       logger,
		sleep:        sleep,
	}, nil
}

// Run blocks receiving messages until ctx is cancelled.
func (c *CouponBatchConsumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("coupon batch consumer: subscription is required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		c.Handle(ctx, msg.Data)
		msg.Ack()
	})
}

// Handle processes one batch payload through the retry and dead letter policy.
// The message is considered consumed in every outcome.
func (c *CouponBatchConsumer) Handle(ctx context.Context, payload []byte) {
	var msg services.CouponBatchMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.toDeadLetter(ctx, payload, fmt.Sprintf("malformed payload: %v", err), 1)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.process(ctx, msg)
		if lastErr == nil {
			return
		}

		c.logger.Warn("coupon batch attempt failed",
			zap.String("couponId", msg.CouponID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if attempt == c.maxAttempts {
			break
		}
		// 2s, 4s, 8s, ... between attempts.
		delay := c.backoffBase << (attempt - 1)
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	c.toDeadLetter(ctx, payload, lastErr.Error(), c.maxAttempts)
}

func (c *CouponBatchConsumer) process(ctx context.Context, msg services.CouponBatchMessage) error {
	if msg.CouponID == "" {
		return errors.New("coupon batch: coupon id is required")
	}

	for _, userID := range msg.UserIDs {
		ready, err := c.coupons.HasReady(ctx, userID, domain.CouponOriginBirthday)
		if err != nil {
			return fmt.Errorf("check ready coupon for %s: %w", userID, err)
		}
		if ready {
			continue
		}

		_, issued, err := c.coupons.IssueCommon(ctx, services.IssueCouponCommand{
			UserID:     userID,
			CouponID:   msg.CouponID,
			OriginType: domain.CouponOriginBirthday,
		})
		if err != nil {
			return fmt.Errorf("issue coupon for %s: %w", userID, err)
		}
		if issued {
			c.logger.Info("birthday coupon issued",
				zap.String("couponId", msg.CouponID),
				zap.String("userId", userID),
			)
		}
	}
	return nil
}

func (c *CouponBatchConsumer) toDeadLetter(ctx context.Context, payload []byte, cause string, attempts int) {
	if _, err := c.deadLetter.PublishDead(ctx, payload, cause, attempts); err != nil {
		c.logger.Error("dead letter publish failed",
			zap.String("cause", cause),
			zap.Error(err),
		)
		return
	}
	c.logger.Warn("coupon batch moved to dead letter",
		zap.String("cause", cause),
		zap.Int("attempts", attempts),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
