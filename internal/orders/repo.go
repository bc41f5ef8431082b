package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items and, when set, the
// nascent delivery row.
func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Delivery").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, intentID string) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", intentID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) AttachPaymentIntent(ctx context.Context, id uuid.UUID, intentID, clientSecret string) error {
	return r.updateOrder(ctx, id, map[string]any{
		"stripe_payment_intent_id": intentID,
		"stripe_client_secret":     clientSecret,
	})
}

func (r *repository) SetClientSecret(ctx context.Context, id uuid.UUID, clientSecret string) error {
	return r.updateOrder(ctx, id, map[string]any{"stripe_client_secret": clientSecret})
}

// Delete removes the order and its dependent rows. Used only to compensate a
// failed payment intent creation.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&models.Delivery{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Order{}).Error
	})
}

// MarkPaid sets PAID and, when positive, the settled amount. The returned
// order reflects the row after the update.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, amount int64) (*models.Order, error) {
	updates := map[string]any{"status": enums.OrderStatusPaid}
	if amount > 0 {
		updates["amount_total"] = amount
	}
	if err := r.updateOrder(ctx, id, updates); err != nil {
		return nil, err
	}

	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// UpdateStatusIfCurrent transitions the order only while it still holds the
// expected status. Zero rows affected means the precondition failed.
func (r *repository) UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *repository) CancelByPaymentIntent(ctx context.Context, intentID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("stripe_payment_intent_id = ?", intentID).
		Updates(map[string]any{"status": enums.OrderStatusCanceled, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateOrder(ctx, id, map[string]any{"notified_at": at.UTC()})
}

func (r *repository) updateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
