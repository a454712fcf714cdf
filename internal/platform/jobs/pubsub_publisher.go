package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/ink3-shop/api/internal/services"
)

// PubSubPointPublisher publishes point accrual events to a Pub/Sub topic.
type PubSubPointPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPointPublisher constructs a Pub/Sub backed point event publisher.
func NewPubSubPointPublisher(topic *pubsub.Topic) (*PubSubPointPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub point publisher: topic is required")
	}
	return &PubSubPointPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishPointAccrual enqueues a point accrual message on the configured topic.
// The payment id doubles as the consumer's idempotency key.
func (p *PubSubPointPublisher) PublishPointAccrual(ctx context.Context, message services.PointAccrualMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub point publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal point accrual: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "paymentId", message.PaymentID)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "userId", message.UserID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish point accrual: %w", err)
	}
	return id, nil
}

// PubSubCouponBatchPublisher publishes coupon batch units to a Pub/Sub topic.
type PubSubCouponBatchPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubCouponBatchPublisher constructs a Pub/Sub backed coupon batch publisher.
func NewPubSubCouponBatchPublisher(topic *pubsub.Topic) (*PubSubCouponBatchPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub coupon batch publisher: topic is required")
	}
	return &PubSubCouponBatchPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCouponBatch enqueues one batch unit on the configured topic.
func (p *PubSubCouponBatchPublisher) PublishCouponBatch(ctx context.Context, message services.CouponBatchMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub coupon batch publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal coupon batch: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "couponId", message.CouponID)
	setAttr(attrs, "userCount", strconv.Itoa(len(message.UserIDs)))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish coupon batch: %w", err)
	}
	return id, nil
}

// PubSubDeadLetterPublisher forwards exhausted messages to the dead letter
// topic, preserving the original payload and failure context in attributes.
type PubSubDeadLetterPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubDeadLetterPublisher constructs a Pub/Sub backed dead letter publisher.
func NewPubSubDeadLetterPublisher(topic *pubsub.Topic) (*PubSubDeadLetterPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub dead letter publisher: topic is required")
	}
	return &PubSubDeadLetterPublisher{topic: topic}, nil
}

// PublishDead forwards the raw payload together with the terminal error and
// the attempt count that exhausted the retry budget.
func (p *PubSubDeadLetterPublisher) PublishDead(ctx context.Context, payload []byte, cause string, attempts int) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub dead letter publisher: not initialised")
	}

	attrs := make(map[string]string)
	setAttr(attrs, "error", cause)
	setAttr(attrs, "attempts", strconv.Itoa(attempts))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish dead letter: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
