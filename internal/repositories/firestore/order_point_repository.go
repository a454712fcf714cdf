package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const orderPointsCollection = "orderPoints"

// OrderPointRepository links ledger entries to orders in Firestore.
type OrderPointRepository struct {
	links *pfirestore.BaseRepository[orderPointDocument]
}

// NewOrderPointRepository constructs an OrderPointRepository bound to the provider.
func NewOrderPointRepository(provider *pfirestore.Provider) (*OrderPointRepository, error) {
	if provider == nil {
		return nil, errors.New("order point repository requires firestore provider")
	}
	return &OrderPointRepository{
		links: pfirestore.NewBaseRepository[orderPointDocument](provider, orderPointsCollection, nil, nil),
	}, nil
}

func (r *OrderPointRepository) Insert(ctx context.Context, op domain.OrderPoint) error {
	return r.links.Create(ctx, op.ID, orderPointDocument{
		OrderID:        strings.TrimSpace(op.OrderID),
		PointHistoryID: strings.TrimSpace(op.PointHistoryID),
	})
}

func (r *OrderPointRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderPoint, error) {
	docs, err := r.links.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderId", "==", strings.TrimSpace(orderID))
	})
	if err != nil {
		return nil, err
	}
	links := make([]domain.OrderPoint, 0, len(docs))
	for _, doc := range docs {
		links = append(links, domain.OrderPoint{
			ID:             doc.ID,
			OrderID:        doc.Data.OrderID,
			PointHistoryID: doc.Data.PointHistoryID,
		})
	}
	return links, nil
}

type orderPointDocument struct {
	OrderID        string `firestore:"orderId"`
	PointHistoryID string `firestore:"pointHistoryId"`
}
