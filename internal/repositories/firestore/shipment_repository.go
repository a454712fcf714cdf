package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const shipmentsCollection = "shipments"

// ShipmentRepository stores fulfillment data. Documents are keyed by order id,
// one shipment per order.
type ShipmentRepository struct {
	shipments *pfirestore.BaseRepository[shipmentDocument]
}

// NewShipmentRepository constructs a ShipmentRepository bound to the provider.
func NewShipmentRepository(provider *pfirestore.Provider) (*ShipmentRepository, error) {
	if provider == nil {
		return nil, errors.New("shipment repository requires firestore provider")
	}
	return &ShipmentRepository{
		shipments: pfirestore.NewBaseRepository[shipmentDocument](provider, shipmentsCollection, nil, nil),
	}, nil
}

func (r *ShipmentRepository) Insert(ctx context.Context, shipment domain.Shipment) error {
	return r.shipments.Create(ctx, shipment.OrderID, newShipmentDocument(shipment))
}

func (r *ShipmentRepository) Update(ctx context.Context, shipment domain.Shipment) error {
	return r.shipments.Update(ctx, shipment.OrderID, newShipmentDocument(shipment))
}

func (r *ShipmentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Shipment, error) {
	doc, err := r.shipments.Get(ctx, orderID)
	if err != nil {
		return domain.Shipment{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type shipmentDocument struct {
	ShipmentID     string     `firestore:"shipmentId"`
	PreferredDate  time.Time  `firestore:"preferredDate"`
	DeliveredAt    *time.Time `firestore:"deliveredAt,omitempty"`
	RecipientName  string     `firestore:"recipientName"`
	RecipientPhone string     `firestore:"recipientPhone,omitempty"`
	PostalCode     string     `firestore:"postalCode,omitempty"`
	Address        string     `firestore:"address"`
	DetailAddress  string     `firestore:"detailAddress,omitempty"`
	ShippingFee    int64      `firestore:"shippingFee"`
	ShippingCode   string     `firestore:"shippingCode,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

func newShipmentDocument(shipment domain.Shipment) shipmentDocument {
	return shipmentDocument{
		ShipmentID:     strings.TrimSpace(shipment.ID),
		PreferredDate:  shipment.PreferredDate.UTC(),
		DeliveredAt:    shipment.DeliveredAt,
		RecipientName:  strings.TrimSpace(shipment.RecipientName),
		RecipientPhone: strings.TrimSpace(shipment.RecipientPhone),
		PostalCode:     strings.TrimSpace(shipment.PostalCode),
		Address:        strings.TrimSpace(shipment.Address),
		DetailAddress:  strings.TrimSpace(shipment.DetailAddress),
		ShippingFee:    shipment.ShippingFee,
		ShippingCode:   strings.TrimSpace(shipment.ShippingCode),
		CreatedAt:      shipment.CreatedAt.UTC(),
		UpdatedAt:      shipment.UpdatedAt.UTC(),
	}
}

func (d shipmentDocument) toDomain(orderID string) domain.Shipment {
	return domain.Shipment{
		ID:             d.ShipmentID,
		OrderID:        orderID,
		PreferredDate:  d.PreferredDate,
		DeliveredAt:    d.DeliveredAt,
		RecipientName:  d.RecipientName,
		RecipientPhone: d.RecipientPhone,
		PostalCode:     d.PostalCode,
		Address:        d.Address,
		DetailAddress:  d.DetailAddress,
		ShippingFee:    d.ShippingFee,
		ShippingCode:   d.ShippingCode,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
