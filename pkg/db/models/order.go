package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/misterfood-backend/pkg/enums"
)

// Order is the durable record of one checkout. AmountTotal is in minor units.
type Order struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID            uuid.UUID         `gorm:"column:merchant_id;type:uuid;not null"`
	Currency              string            `gorm:"column:currency;not null"`
	AmountTotal           int64             `gorm:"column:amount_total;not null"`
	Status                enums.OrderStatus `gorm:"column:status;not null;default:'PENDING'"`
	IdempotencyKey        *string           `gorm:"column:idempotency_key;uniqueIndex"`
	StripePaymentIntentID *string           `gorm:"column:stripe_payment_intent_id;index"`
	StripeClientSecret    *string           `gorm:"column:stripe_client_secret"`
	NotifiedAt            *time.Time        `gorm:"column:notified_at"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Items    []OrderItem `gorm:"foreignKey:OrderID;references:ID"`
	Delivery *Delivery   `gorm:"foreignKey:OrderID;references:ID"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = enums.OrderStatusPending
	}
	return nil
}

// HasPaymentIntent reports whether an intent was attached to the order.
func (o *Order) HasPaymentIntent() bool {
	return o.StripePaymentIntentID != nil && *o.StripePaymentIntentID != ""
}

// ClientSecret returns the stored client secret or "".
func (o *Order) ClientSecret() string {
	if o.StripeClientSecret == nil {
		return ""
	}
	return *o.StripeClientSecret
}

// OrderItem is an immutable line captured at checkout.
type OrderItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	Name       string    `gorm:"column:name;not null"`
	UnitAmount int64     `gorm:"column:unit_amount;not null"`
	Quantity   int64     `gorm:"column:quantity;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// LineTotal is unit amount times quantity.
func (i OrderItem) LineTotal() int64 {
	return i.UnitAmount * i.Quantity
}
