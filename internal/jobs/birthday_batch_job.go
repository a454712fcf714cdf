package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ink3-shop/api/internal/repositories"
	"github.com/ink3-shop/api/internal/services"
)

// batchChunkSize bounds how many users one batch message carries.
const batchChunkSize = 100

// BirthdayBatchJobDeps bundles collaborators for the daily birthday sweep.
type BirthdayBatchJobDeps struct {
	Users     repositories.UserRepository
	Publisher services.CouponBatchPublisher
	CouponID  string
	Clock     func() time.Time
	Logger    *zap.Logger
}

// BirthdayBatchJob enqueues birthday coupon batches for the consumer. The
// actual issuance, with its dedup and retry policy, happens downstream.
type BirthdayBatchJob struct {
	users     repositories.UserRepository
	publisher services.CouponBatchPublisher
	couponID  string
	clock     func() time.Time
	logger    *zap.Logger
}

// NewBirthdayBatchJob wires dependencies into a BirthdayBatchJob.
func NewBirthdayBatchJob(deps BirthdayBatchJobDeps) (*BirthdayBatchJob, error) {
	if deps.Users == nil {
		return nil, errors.New("birthday batch job: user repository is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("birthday batch job: publisher is required")
	}
	if strings.TrimSpace(deps.CouponID) == "" {
		return nil, errors.New("birthday batch job: coupon id is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BirthdayBatchJob{
		users:     deps.Users,
		publisher: deps.Publisher,
		couponID:  strings.TrimSpace(deps.CouponID),
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// RunOnce publishes one batch message per chunk of today's birthday users.
func (j *BirthdayBatchJob) RunOnce(ctx context.Context) error {
	now := j.clock()
	users, err := j.users.ListWithBirthdayOn(ctx, now.Month(), now.Day())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}

	userIDs := make([]string, 0, len(users))
	for _, user := range users {
		userIDs = append(userIDs, user.ID)
	}

	published := 0
	for start := 0; start < len(userIDs); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		if _, err := j.publisher.PublishCouponBatch(ctx, services.CouponBatchMessage{
			CouponID: j.couponID,
			UserIDs:  userIDs[start:end],
		}); err != nil {
			return err
		}
		published++
	}

	j.logger.Info("birthday batches published",
		zap.Int("users", len(userIDs)),
		zap.Int("batches", published),
	)
	return nil
}

// Run sweeps once right away, then once per day.
func (j *BirthdayBatchJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	if err := j.RunOnce(ctx); err != nil {
		j.logger.Warn("birthday batch sweep failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Warn("birthday batch sweep failed", zap.Error(err))
			}
		}
	}
}
