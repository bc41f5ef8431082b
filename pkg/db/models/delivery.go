package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/misterfood-backend/pkg/enums"
)

// Delivery tracks the courier dispatch attached to an order. Status mirrors
// the courier vocabulary verbatim (lowercased).
type Delivery struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Provider    string    `gorm:"column:provider;not null"`
	DeliveryID  *string   `gorm:"column:delivery_id;index"`
	Status      *string   `gorm:"column:status"`
	TrackingURL *string   `gorm:"column:tracking_url"`
	FeeTotal    *int64    `gorm:"column:fee_total"`
	Currency    *string   `gorm:"column:currency"`
	EstimateID  *string   `gorm:"column:estimate_id"`
	PickupAtMs  *int64    `gorm:"column:pickup_at_ms"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Delivery) TableName() string { return "deliveries" }

func (d *Delivery) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Provider == "" {
		d.Provider = enums.DeliveryProviderUberDirect
	}
	return nil
}

// Active reports whether the courier was dispatched and the run is still live.
func (d *Delivery) Active() bool {
	if d == nil || d.DeliveryID == nil || *d.DeliveryID == "" || d.Status == nil {
		return false
	}
	return enums.IsActiveDeliveryStatus(*d.Status)
}
