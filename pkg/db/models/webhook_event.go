package models

import (
	"time"

	"github.com/angelmondragon/misterfood-backend/pkg/enums"
)

// WebhookEvent is the append-only dedup ledger. ID is the provider event id.
type WebhookEvent struct {
	ID         string                `gorm:"column:id;primaryKey"`
	Provider   enums.WebhookProvider `gorm:"column:provider;not null"`
	Type       string                `gorm:"column:type;not null"`
	ReceivedAt time.Time             `gorm:"column:received_at;autoCreateTime"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
