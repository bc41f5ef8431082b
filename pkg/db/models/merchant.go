package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Merchant is the restaurant receiving transfers and order notifications.
type Merchant struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name                  string    `gorm:"column:name;not null"`
	StripeAccountID       *string   `gorm:"column:stripe_account_id"`
	CommissionBps         int64     `gorm:"column:commission_bps;not null;default:0"`
	NotifyEmailEnabled    bool      `gorm:"column:notify_email_enabled;not null;default:false"`
	NotifyEmail           *string   `gorm:"column:notify_email"`
	NotifySMSEnabled      bool      `gorm:"column:notify_sms_enabled;not null;default:false"`
	NotifyWhatsAppEnabled bool      `gorm:"column:notify_whatsapp_enabled;not null;default:false"`
	NotifyPhone           *string   `gorm:"column:notify_phone"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Merchant) TableName() string { return "merchants" }

func (m *Merchant) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Onboarded reports whether the merchant can receive destination transfers.
func (m *Merchant) Onboarded() bool {
	return m != nil && m.StripeAccountID != nil && *m.StripeAccountID != ""
}
