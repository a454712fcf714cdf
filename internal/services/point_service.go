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

const (
	pointHistoryIDPrefix = "pth_"
	orderPointIDPrefix   = "opt_"
)

var (
	// ErrPointInvalidInput signals the caller provided invalid data.
	ErrPointInvalidInput = errors.New("point: invalid input")
	// ErrPointNotFound indicates the ledger entry could not be located.
	ErrPointNotFound = errors.New("point: not found")
	// ErrPointInsufficientBalance indicates a spend exceeding the balance.
	ErrPointInsufficientBalance = errors.New("point: insufficient balance")
	// ErrPointAlreadyCancelled indicates the entry was reversed before.
	ErrPointAlreadyCancelled = errors.New("point: entry already cancelled")
	// ErrPointConflict indicates concurrent update conflicts.
	ErrPointConflict = errors.New("point: conflict")
)

// PointServiceDeps bundles collaborators for the point ledger service.
type PointServiceDeps struct {
	Histories   repositories.PointHistoryRepository
	OrderPoints repositories.OrderPointRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type pointService struct {
	histories   repositories.PointHistoryRepository
	orderPoints repositories.OrderPointRepository
	unitOfWork  repositories.UnitOfWork
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewPointService wires dependencies into a PointService.
func NewPointService(deps PointServiceDeps) (PointService, error) {
	if deps.Histories == nil {
		return nil, errors.New("point service: history repository is required")
	}
	if deps.OrderPoints == nil {
		return nil, errors.New("point service: order point repository is required")
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

	return &pointService{
		histories:   deps.Histories,
		orderPoints: deps.OrderPoints,
		unitOfWork:  unit,
		clock:       func() time.Time { return clock().UTC() },
		newID:       idGen,
		logger:      logger,
	}, nil
}

func (s *pointService) Earn(ctx context.Context, userID string, amount int64, description string) (domain.PointHistory, error) {
	return s.append(ctx, userID, amount, domain.PointEarn, description, nil)
}

func (s *pointService) Spend(ctx context.Context, userID string, amount int64, description string) (domain.PointHistory, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.PointHistory{}, fmt.Errorf("%w: user id is required", ErrPointInvalidInput)
	}
	if amount <= 0 {
		return domain.PointHistory{}, fmt.Errorf("%w: amount must be positive", ErrPointInvalidInput)
	}

	var entry domain.PointHistory
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		balance, err := s.histories.BalanceByUser(txCtx, userID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if balance < amount {
			return fmt.Errorf("%w: balance %d, requested %d", ErrPointInsufficientBalance, balance, amount)
		}

		entry = s.newEntry(userID, -amount, domain.PointUse, description, nil)
		if err := s.histories.Append(txCtx, entry); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.PointHistory{}, err
	}

	s.logger(ctx, "point.spent", map[string]any{
		"userId":  userID,
		"amount":  amount,
		"entryId": entry.ID,
	})
	return entry, nil
}

// CancelEntry appends the reversing entry for a prior earn or use. The
// original is never mutated; double reversal is rejected.
func (s *pointService) CancelEntry(ctx context.Context, userID string, historyID string) (domain.PointHistory, error) {
	userID = strings.TrimSpace(userID)
	historyID = strings.TrimSpace(historyID)
	if userID == "" {
		return domain.PointHistory{}, fmt.Errorf("%w: user id is required", ErrPointInvalidInput)
	}
	if historyID == "" {
		return domain.PointHistory{}, fmt.Errorf("%w: history id is required", ErrPointInvalidInput)
	}

	var reversal domain.PointHistory
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		prepared, err := s.ReversalFor(txCtx, userID, historyID)
		if err != nil {
			return err
		}
		if err := s.AppendEntry(txCtx, prepared); err != nil {
			return err
		}
		reversal = prepared
		return nil
	})
	if err != nil {
		return domain.PointHistory{}, err
	}

	s.logger(ctx, "point.cancelled", map[string]any{
		"userId":     userID,
		"originalId": historyID,
		"entryId":    reversal.ID,
		"delta":      reversal.Delta,
	})
	return reversal, nil
}

// ReversalFor validates the original entry and builds the reversing entry
// without persisting it. Read-only, so composed transactions call it during
// their read phase and hand the result to AppendEntry once writes begin.
func (s *pointService) ReversalFor(ctx context.Context, userID string, historyID string) (domain.PointHistory, error) {
	userID = strings.TrimSpace(userID)
	historyID = strings.TrimSpace(historyID)
	if userID == "" {
		return domain.PointHistory{}, fmt.Errorf("%w: user id is required", ErrPointInvalidInput)
	}
	if historyID == "" {
		return domain.PointHistory{}, fmt.Errorf("%w: history id is required", ErrPointInvalidInput)
	}

	original, err := s.histories.FindByID(ctx, historyID)
	if err != nil {
		return domain.PointHistory{}, s.mapRepositoryError(err)
	}
	if original.UserID != userID {
		return domain.PointHistory{}, fmt.Errorf("%w: entry %s does not belong to user %s", ErrPointNotFound, historyID, userID)
	}
	if original.Status == domain.PointCancel {
		return domain.PointHistory{}, fmt.Errorf("%w: %s", ErrPointAlreadyCancelled, historyID)
	}

	entries, err := s.histories.ListByUser(ctx, userID)
	if err != nil {
		return domain.PointHistory{}, s.mapRepositoryError(err)
	}
	for _, existing := range entries {
		if existing.CancelOf != nil && *existing.CancelOf == historyID {
			return domain.PointHistory{}, fmt.Errorf("%w: %s", ErrPointAlreadyCancelled, historyID)
		}
	}

	return s.newEntry(userID, -original.Delta, domain.PointCancel, "cancel: "+original.Description, valuePtr(historyID)), nil
}

// AppendEntry persists a prepared ledger entry. Write-only.
func (s *pointService) AppendEntry(ctx context.Context, entry domain.PointHistory) error {
	if strings.TrimSpace(entry.ID) == "" || strings.TrimSpace(entry.UserID) == "" {
		return fmt.Errorf("%w: entry id and user id are required", ErrPointInvalidInput)
	}
	if err := s.histories.Append(ctx, entry); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *pointService) Balance(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrPointInvalidInput)
	}

	balance, err := s.histories.BalanceByUser(ctx, userID)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return balance, nil
}

func (s *pointService) History(ctx context.Context, userID string) ([]domain.PointHistory, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrPointInvalidInput)
	}

	entries, err := s.histories.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return entries, nil
}

func (s *pointService) LinkOrder(ctx context.Context, orderID string, historyID string) error {
	orderID = strings.TrimSpace(orderID)
	historyID = strings.TrimSpace(historyID)
	if orderID == "" || historyID == "" {
		return fmt.Errorf("%w: order id and history id are required", ErrPointInvalidInput)
	}

	err := s.orderPoints.Insert(ctx, domain.OrderPoint{
		ID:             orderPointIDPrefix + s.newID(),
		OrderID:        orderID,
		PointHistoryID: historyID,
	})
	if err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *pointService) OrderPoints(ctx context.Context, orderID string) ([]domain.OrderPoint, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrPointInvalidInput)
	}

	links, err := s.orderPoints.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return links, nil
}

func (s *pointService) append(ctx context.Context, userID string, amount int64, status domain.PointHistoryStatus, description string, cancelOf *string) (domain.PointHistory, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.PointHistory{}, fmt.Errorf("%w: user id is required", ErrPointInvalidInput)
	}
	if amount <= 0 {
		return domain.PointHistory{}, fmt.Errorf("%w: amount must be positive", ErrPointInvalidInput)
	}

	entry := s.newEntry(userID, amount, status, description, cancelOf)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.histories.Append(txCtx, entry); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.PointHistory{}, err
	}

	s.logger(ctx, "point.earned", map[string]any{
		"userId":  userID,
		"amount":  amount,
		"entryId": entry.ID,
	})
	return entry, nil
}

func (s *pointService) newEntry(userID string, delta int64, status domain.PointHistoryStatus, description string, cancelOf *string) domain.PointHistory {
	return domain.PointHistory{
		ID:          pointHistoryIDPrefix + s.newID(),
		UserID:      userID,
		Delta:       delta,
		Status:      status,
		Description: strings.TrimSpace(description),
		CancelOf:    cancelOf,
		CreatedAt:   s.clock(),
	}
}

func (s *pointService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPointNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPointConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("point: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *pointService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}
