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

const couponStoreIDPrefix = "cst_"

var (
	// ErrCouponInvalidInput signals the caller provided invalid data.
	ErrCouponInvalidInput = errors.New("coupon store: invalid input")
	// ErrCouponNotFound indicates the coupon or issued instance is missing.
	ErrCouponNotFound = errors.New("coupon store: not found")
	// ErrCouponDuplicate indicates the user already holds this issuance.
	ErrCouponDuplicate = errors.New("coupon store: duplicate issuance")
	// ErrCouponConflict indicates concurrent update conflicts.
	ErrCouponConflict = errors.New("coupon store: conflict")
)

// CouponStoreServiceDeps bundles collaborators for the coupon store service.
type CouponStoreServiceDeps struct {
	Stores      repositories.CouponStoreRepository
	Coupons     repositories.CouponRepository
	Users       repositories.UserRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type couponStoreService struct {
	stores     repositories.CouponStoreRepository
	coupons    repositories.CouponRepository
	users      repositories.UserRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCouponStoreService wires dependencies into a CouponStoreService.
func NewCouponStoreService(deps CouponStoreServiceDeps) (CouponStoreService, error) {
	if deps.Stores == nil {
		return nil, errors.New("coupon store service: store repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("coupon store service: coupon repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("coupon store service: user repository is required")
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

	return &couponStoreService{
		stores:     deps.Stores,
		coupons:    deps.Coupons,
		users:      deps.Users,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *couponStoreService) Issue(ctx context.Context, cmd IssueCouponCommand) (domain.CouponStore, error) {
	store, issued, err := s.issue(ctx, cmd)
	if err != nil {
		return domain.CouponStore{}, err
	}
	if !issued {
		return domain.CouponStore{}, fmt.Errorf("%w: user %s coupon %s", ErrCouponDuplicate, cmd.UserID, cmd.CouponID)
	}
	return store, nil
}

func (s *couponStoreService) IssueCommon(ctx context.Context, cmd IssueCouponCommand) (domain.CouponStore, bool, error) {
	return s.issue(ctx, cmd)
}

func (s *couponStoreService) issue(ctx context.Context, cmd IssueCouponCommand) (domain.CouponStore, bool, error) {
	userID := strings.TrimSpace(cmd.UserID)
	couponID := strings.TrimSpace(cmd.CouponID)
	if userID == "" {
		return domain.CouponStore{}, false, fmt.Errorf("%w: user id is required", ErrCouponInvalidInput)
	}
	if couponID == "" {
		return domain.CouponStore{}, false, fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	}
	if cmd.OriginType == "" {
		return domain.CouponStore{}, false, fmt.Errorf("%w: origin type is required", ErrCouponInvalidInput)
	}

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return domain.CouponStore{}, false, s.mapRepositoryError(err)
	}
	if _, err := s.coupons.FindByID(ctx, couponID); err != nil {
		return domain.CouponStore{}, false, s.mapRepositoryError(err)
	}

	var store domain.CouponStore
	issued := false

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		exists, err := s.stores.Exists(txCtx, repositories.CouponStoreDedupKey{
			UserID:     userID,
			CouponID:   couponID,
			OriginType: cmd.OriginType,
			OriginID:   cloneStringPtr(cmd.OriginID),
		})
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if exists {
			return nil
		}

		store = domain.CouponStore{
			ID:         couponStoreIDPrefix + s.newID(),
			UserID:     userID,
			CouponID:   couponID,
			OriginType: cmd.OriginType,
			OriginID:   cloneStringPtr(cmd.OriginID),
			Status:     domain.CouponStoreReady,
			IssuedAt:   s.clock(),
		}
		if err := s.stores.Insert(txCtx, store); err != nil {
			return s.mapRepositoryError(err)
		}
		issued = true
		return nil
	})
	if err != nil {
		return domain.CouponStore{}, false, err
	}

	if issued {
		s.logger(ctx, "coupon.issued", map[string]any{
			"couponStoreId": store.ID,
			"userId":        userID,
			"couponId":      couponID,
			"origin":        string(cmd.OriginType),
		})
	}
	return store, issued, nil
}

func (s *couponStoreService) MarkUsed(ctx context.Context, storeID string, usedAt time.Time) error {
	return s.setStatus(ctx, storeID, domain.CouponStoreUsed, valuePtr(usedAt.UTC()))
}

func (s *couponStoreService) MarkReady(ctx context.Context, storeID string) error {
	return s.setStatus(ctx, storeID, domain.CouponStoreReady, nil)
}

// Restore flips an already-loaded store back to ready without reading it
// again. Compensation flows read the store in their read phase and buffer
// this write afterwards.
func (s *couponStoreService) Restore(ctx context.Context, store domain.CouponStore) error {
	if strings.TrimSpace(store.ID) == "" {
		return fmt.Errorf("%w: coupon store id is required", ErrCouponInvalidInput)
	}
	store.Status = domain.CouponStoreReady
	store.UsedAt = nil
	if err := s.stores.Update(ctx, store); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *couponStoreService) setStatus(ctx context.Context, storeID string, status domain.CouponStoreStatus, usedAt *time.Time) error {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return fmt.Errorf("%w: coupon store id is required", ErrCouponInvalidInput)
	}

	return s.runInTx(ctx, func(txCtx context.Context) error {
		store, err := s.stores.FindByID(txCtx, storeID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		store.Status = status
		store.UsedAt = usedAt
		if err := s.stores.Update(txCtx, store); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
}

func (s *couponStoreService) DisableByCoupon(ctx context.Context, couponID string) (int, error) {
	return s.flipByCoupon(ctx, couponID, domain.CouponStoreReady, domain.CouponStoreDisabled)
}

func (s *couponStoreService) ReactivateByCoupon(ctx context.Context, couponID string) (int, error) {
	return s.flipByCoupon(ctx, couponID, domain.CouponStoreDisabled, domain.CouponStoreReady)
}

func (s *couponStoreService) flipByCoupon(ctx context.Context, couponID string, from, to domain.CouponStoreStatus) (int, error) {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return 0, fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	}

	flipped := 0
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		stores, err := s.stores.ListByCouponAndStatus(txCtx, couponID, from)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		for _, store := range stores {
			store.Status = to
			if err := s.stores.Update(txCtx, store); err != nil {
				return s.mapRepositoryError(err)
			}
			flipped++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger(ctx, "coupon.bulk.status.changed", map[string]any{
		"couponId": couponID,
		"from":     string(from),
		"to":       string(to),
		"count":    flipped,
	})
	return flipped, nil
}

func (s *couponStoreService) HasReady(ctx context.Context, userID string, origin domain.CouponOrigin) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, fmt.Errorf("%w: user id is required", ErrCouponInvalidInput)
	}

	exists, err := s.stores.ExistsReady(ctx, userID, origin)
	if err != nil {
		return false, s.mapRepositoryError(err)
	}
	return exists, nil
}

func (s *couponStoreService) Get(ctx context.Context, storeID string) (domain.CouponStore, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.CouponStore{}, fmt.Errorf("%w: coupon store id is required", ErrCouponInvalidInput)
	}

	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return domain.CouponStore{}, s.mapRepositoryError(err)
	}
	return store, nil
}

func (s *couponStoreService) ListByUser(ctx context.Context, userID string) ([]domain.CouponStore, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrCouponInvalidInput)
	}

	stores, err := s.stores.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return stores, nil
}

func (s *couponStoreService) Delete(ctx context.Context, storeID string) error {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return fmt.Errorf("%w: coupon store id is required", ErrCouponInvalidInput)
	}

	return s.runInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.stores.FindByID(txCtx, storeID); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.stores.Delete(txCtx, storeID); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
}

func (s *couponStoreService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCouponNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCouponConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("coupon store: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *couponStoreService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}
