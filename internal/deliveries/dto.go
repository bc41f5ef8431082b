package deliveries

import (
	"strings"

	"github.com/angelmondragon/misterfood-backend/internal/eligibility"
	"github.com/angelmondragon/misterfood-backend/pkg/idempotency"
	"github.com/angelmondragon/misterfood-backend/pkg/uber"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DefaultCancelReason is sent when the caller gives none.
const DefaultCancelReason = "merchant_canceled"

// Point is a pickup or dropoff as accepted by the HTTP API.
type Point struct {
	Address      string   `json:"address" validate:"required,max=500"`
	Phone        string   `json:"phone,omitempty" validate:"omitempty,min=5,max=40"`
	Name         string   `json:"name,omitempty" validate:"omitempty,max=200"`
	Instructions string   `json:"instructions,omitempty" validate:"omitempty,max=500"`
	PostalCode   string   `json:"postalCode,omitempty" validate:"omitempty,min=3,max=12"`
	Lat          *float64 `json:"lat,omitempty" validate:"required_with=Lng,omitempty,gte=-90,lte=90"`
	Lng          *float64 `json:"lng,omitempty" validate:"required_with=Lat,omitempty,gte=-180,lte=180"`
}

// Item is one manifest line.
type Item struct {
	Title    string   `json:"title" validate:"required"`
	Quantity int64    `json:"quantity" validate:"required,gt=0"`
	Price    *int64   `json:"price,omitempty" validate:"omitempty,gte=0"`
	Weight   *float64 `json:"weight,omitempty" validate:"omitempty,gte=0"`
}

// QuoteInput requests a courier fee estimate. OrderID links the quote to an
// existing order when given.
type QuoteInput struct {
	Pickup   Point      `json:"pickup" validate:"required"`
	Dropoff  Point      `json:"dropoff" validate:"required"`
	Items    []Item     `json:"items" validate:"required,min=1,dive"`
	OrderID  *uuid.UUID `json:"orderId,omitempty"`
	Currency string     `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// CreateInput books a courier for a paid order.
type CreateInput struct {
	QuoteID string    `json:"quoteId,omitempty"`
	Pickup  Point     `json:"pickup" validate:"required"`
	Dropoff Point     `json:"dropoff" validate:"required"`
	Items   []Item    `json:"items" validate:"required,min=1,dive"`
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

// CancelInput cancels a booked courier.
type CancelInput struct {
	DeliveryID string `json:"-"`
	Reason     string `json:"reason,omitempty" validate:"omitempty,max=200"`
}

func (p Point) eligibilityPoint() eligibility.Point {
	return eligibility.Point{
		Address:    p.Address,
		PostalCode: p.PostalCode,
		Lat:        p.Lat,
		Lng:        p.Lng,
	}
}

func (p Point) stop() uber.Stop {
	stop := uber.Stop{
		Address:      p.Address,
		Phone:        p.Phone,
		Name:         p.Name,
		Instructions: p.Instructions,
		PostalCode:   strings.TrimSpace(p.PostalCode),
	}
	if p.Lat != nil && p.Lng != nil {
		stop.Location = &uber.Location{Latitude: *p.Lat, Longitude: *p.Lng}
	}
	return stop
}

func manifest(items []Item) uber.Manifest {
	return uber.Manifest{Items: lo.Map(items, func(item Item, _ int) uber.Item {
		return uber.Item{Title: item.Title, Quantity: item.Quantity, Price: item.Price, Weight: item.Weight}
	})}
}

// keyDropoff and the key payloads below define the exact shape hashed into
// courier idempotency keys. Absent values serialize as null.
type keyDropoff struct {
	Address    string   `json:"address"`
	PostalCode *string  `json:"postalCode"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
}

type quoteKey struct {
	StoreID string                     `json:"storeId"`
	OrderID *string                    `json:"orderId"`
	Dropoff keyDropoff                 `json:"dropoff"`
	Items   []idempotency.ManifestItem `json:"items"`
}

type createKey struct {
	StoreID string                     `json:"storeId"`
	OrderID string                     `json:"orderId"`
	QuoteID *string                    `json:"quoteId"`
	Dropoff keyDropoff                 `json:"dropoff"`
	Items   []idempotency.ManifestItem `json:"items"`
}

type cancelKey struct {
	DeliveryID string `json:"deliveryId"`
	Reason     string `json:"reason"`
}

func newKeyDropoff(p Point) keyDropoff {
	d := keyDropoff{Address: p.Address, Lat: p.Lat, Lng: p.Lng}
	if code := strings.TrimSpace(p.PostalCode); code != "" {
		d.PostalCode = &code
	}
	return d
}

func keyItems(items []Item) []idempotency.ManifestItem {
	return idempotency.SortManifestItems(lo.Map(items, func(item Item, _ int) idempotency.ManifestItem {
		return idempotency.ManifestItem{Title: item.Title, Quantity: item.Quantity, Price: item.Price, Weight: item.Weight}
	}))
}
