package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const ordersCollection = "orders"

// OrderRepository persists order headers in Firestore.
type OrderRepository struct {
	orders *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs an OrderRepository bound to the provider.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.orders.Create(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.orders.Update(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.orders.Delete(ctx, orderID)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) FindByUUID(ctx context.Context, orderUUID string) (domain.Order, error) {
	orderUUID = strings.TrimSpace(orderUUID)
	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderUuid", "==", orderUUID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NewNotFound("orders.findByUuid", fmt.Errorf("order uuid %s not found", orderUUID))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *OrderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("status", "==", string(status)).OrderBy("orderedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

type orderDocument struct {
	UserID       string    `firestore:"userId"`
	Status       string    `firestore:"status"`
	OrderUUID    string    `firestore:"orderUuid"`
	OrdererName  string    `firestore:"ordererName"`
	OrdererPhone string    `firestore:"ordererPhone,omitempty"`
	OrderedAt    time.Time `firestore:"orderedAt"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		UserID:       strings.TrimSpace(order.UserID),
		Status:       string(order.Status),
		OrderUUID:    strings.TrimSpace(order.OrderUUID),
		OrdererName:  strings.TrimSpace(order.OrdererName),
		OrdererPhone: strings.TrimSpace(order.OrdererPhone),
		OrderedAt:    order.OrderedAt.UTC(),
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	return domain.Order{
		ID:           id,
		UserID:       d.UserID,
		Status:       domain.OrderStatus(d.Status),
		OrderUUID:    d.OrderUUID,
		OrdererName:  d.OrdererName,
		OrdererPhone: d.OrdererPhone,
		OrderedAt:    d.OrderedAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
