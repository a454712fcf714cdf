package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const pointHistoriesCollection = "pointHistories"

// PointHistoryRepository appends to the point ledger. Entries are written
// once and never rewritten.
type PointHistoryRepository struct {
	entries *pfirestore.BaseRepository[pointHistoryDocument]
}

// NewPointHistoryRepository constructs a PointHistoryRepository bound to the provider.
func NewPointHistoryRepository(provider *pfirestore.Provider) (*PointHistoryRepository, error) {
	if provider == nil {
		return nil, errors.New("point history repository requires firestore provider")
	}
	return &PointHistoryRepository{
		entries: pfirestore.NewBaseRepository[pointHistoryDocument](provider, pointHistoriesCollection, nil, nil),
	}, nil
}

func (r *PointHistoryRepository) Append(ctx context.Context, entry domain.PointHistory) error {
	return r.entries.Create(ctx, entry.ID, newPointHistoryDocument(entry))
}

func (r *PointHistoryRepository) FindByID(ctx context.Context, entryID string) (domain.PointHistory, error) {
	doc, err := r.entries.Get(ctx, entryID)
	if err != nil {
		return domain.PointHistory{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *PointHistoryRepository) ListByUser(ctx context.Context, userID string) ([]domain.PointHistory, error) {
	docs, err := r.entries.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("userId", "==", strings.TrimSpace(userID)).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.PointHistory, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.Data.toDomain(doc.ID))
	}
	return entries, nil
}

// BalanceByUser sums the signed deltas of the user's ledger.
func (r *PointHistoryRepository) BalanceByUser(ctx context.Context, userID string) (int64, error) {
	docs, err := r.entries.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("userId", "==", strings.TrimSpace(userID))
	})
	if err != nil {
		return 0, err
	}
	var balance int64
	for _, doc := range docs {
		balance += doc.Data.Delta
	}
	return balance, nil
}

type pointHistoryDocument struct {
	UserID      string    `firestore:"userId"`
	Delta       int64     `firestore:"delta"`
	Status      string    `firestore:"status"`
	Description string    `firestore:"description,omitempty"`
	CancelOf    *string   `firestore:"cancelOf,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func newPointHistoryDocument(entry domain.PointHistory) pointHistoryDocument {
	return pointHistoryDocument{
		UserID:      strings.TrimSpace(entry.UserID),
		Delta:       entry.Delta,
		Status:      string(entry.Status),
		Description: strings.TrimSpace(entry.Description),
		CancelOf:    entry.CancelOf,
		CreatedAt:   entry.CreatedAt.UTC(),
	}
}

func (d pointHistoryDocument) toDomain(id string) domain.PointHistory {
	return domain.PointHistory{
		ID:          id,
		UserID:      d.UserID,
		Delta:       d.Delta,
		Status:      domain.PointHistoryStatus(d.Status),
		Description: d.Description,
		CancelOf:    d.CancelOf,
		CreatedAt:   d.CreatedAt,
	}
}
