// Package webhooks holds the dedup ledger shared by the payment and courier
// webhook services.
package webhooks

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/misterfood-backend/pkg/db"
	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	"gorm.io/gorm"
)

const ledgerConstraint = "webhook_events_pkey"

// ErrDuplicateEvent means the event id is already in the ledger. Callers
// treat it as "already processed", never as a failure.
var ErrDuplicateEvent = errors.New("webhook event already processed")

// Ledger records inbound webhook event ids exactly once.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger
	Record(ctx context.Context, eventID string, provider enums.WebhookProvider, eventType string) error
}

type ledger struct {
	db *gorm.DB
}

// NewLedger builds a ledger bound to the provided DB.
func NewLedger(conn *gorm.DB) Ledger {
	return &ledger{db: conn}
}

func (l *ledger) WithTx(tx *gorm.DB) Ledger {
	if tx == nil {
		return l
	}
	return &ledger{db: tx}
}

// Record inserts the event. A second insert of the same id returns
// ErrDuplicateEvent.
func (l *ledger) Record(ctx context.Context, eventID string, provider enums.WebhookProvider, eventType string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return errors.New("webhook event id is required")
	}
	row := &models.WebhookEvent{
		ID:       eventID,
		Provider: provider,
		Type:     eventType,
	}
	if err := l.db.WithContext(ctx).Create(row).Error; err != nil {
		if db.IsUniqueViolation(err, ledgerConstraint) {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}
