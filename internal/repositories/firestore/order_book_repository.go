package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const orderBooksCollection = "orderBooks"

// OrderBookRepository stores order line items in Firestore.
type OrderBookRepository struct {
	items *pfirestore.BaseRepository[orderBookDocument]
}

// NewOrderBookRepository constructs an OrderBookRepository bound to the provider.
func NewOrderBookRepository(provider *pfirestore.Provider) (*OrderBookRepository, error) {
	if provider == nil {
		return nil, errors.New("order book repository requires firestore provider")
	}
	return &OrderBookRepository{
		items: pfirestore.NewBaseRepository[orderBookDocument](provider, orderBooksCollection, nil, nil),
	}, nil
}

func (r *OrderBookRepository) Insert(ctx context.Context, item domain.OrderBook) error {
	return r.items.Create(ctx, item.ID, newOrderBookDocument(item))
}

func (r *OrderBookRepository) Delete(ctx context.Context, itemID string) error {
	return r.items.Delete(ctx, itemID)
}

func (r *OrderBookRepository) FindByID(ctx context.Context, itemID string) (domain.OrderBook, error) {
	doc, err := r.items.Get(ctx, itemID)
	if err != nil {
		return domain.OrderBook{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderBookRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderBook, error) {
	docs, err := r.items.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderId", "==", strings.TrimSpace(orderID))
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.OrderBook, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return items, nil
}

type orderBookDocument struct {
	OrderID       string  `firestore:"orderId"`
	BookID        string  `firestore:"bookId"`
	CouponStoreID *string `firestore:"couponStoreId,omitempty"`
	PackagingID   *string `firestore:"packagingId,omitempty"`
	UnitPrice     int64   `firestore:"unitPrice"`
	Quantity      int     `firestore:"quantity"`
}

func newOrderBookDocument(item domain.OrderBook) orderBookDocument {
	return orderBookDocument{
		OrderID:       strings.TrimSpace(item.OrderID),
		BookID:        strings.TrimSpace(item.BookID),
		CouponStoreID: item.CouponStoreID,
		PackagingID:   item.PackagingID,
		UnitPrice:     item.UnitPrice,
		Quantity:      item.Quantity,
	}
}

func (d orderBookDocument) toDomain(id string) domain.OrderBook {
	return domain.OrderBook{
		ID:            id,
		OrderID:       d.OrderID,
		BookID:        d.BookID,
		CouponStoreID: d.CouponStoreID,
		PackagingID:   d.PackagingID,
		UnitPrice:     d.UnitPrice,
		Quantity:      d.Quantity,
	}
}
