package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the orders aggregate
// (orders, order_items and the attached delivery row).
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) ([]models.Order, error)
	AttachPaymentIntent(ctx context.Context, id uuid.UUID, intentID, clientSecret string) error
	SetClientSecret(ctx context.Context, id uuid.UUID, clientSecret string) error
	Delete(ctx context.Context, id uuid.UUID) error
	MarkPaid(ctx context.Context, id uuid.UUID, amount int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (int64, error)
	UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (int64, error)
	CancelByPaymentIntent(ctx context.Context, intentID string) (int64, error)
	MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error
}
