package deliveries

import (
	"context"
	"time"

	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fields is a partial delivery update. Nil fields are left untouched.
type Fields struct {
	DeliveryID  *string
	Status      *string
	TrackingURL *string
	FeeTotal    *int64
	Currency    *string
	EstimateID  *string
	PickupAtMs  *int64
}

func (f Fields) columns() map[string]any {
	cols := map[string]any{}
	if f.DeliveryID != nil {
		cols["delivery_id"] = *f.DeliveryID
	}
	if f.Status != nil {
		cols["status"] = *f.Status
	}
	if f.TrackingURL != nil {
		cols["tracking_url"] = *f.TrackingURL
	}
	if f.FeeTotal != nil {
		cols["fee_total"] = *f.FeeTotal
	}
	if f.Currency != nil {
		cols["currency"] = *f.Currency
	}
	if f.EstimateID != nil {
		cols["estimate_id"] = *f.EstimateID
	}
	if f.PickupAtMs != nil {
		cols["pickup_at_ms"] = *f.PickupAtMs
	}
	return cols
}

// Empty reports whether no field is set.
func (f Fields) Empty() bool {
	return len(f.columns()) == 0
}

// Repository persists deliveries. Rows are keyed by order id and looked up
// by the courier delivery id.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error)
	FindByDeliveryID(ctx context.Context, deliveryID string) (*models.Delivery, error)
	UpsertByOrderID(ctx context.Context, orderID uuid.UUID, fields Fields) (*models.Delivery, error)
	UpdateByDeliveryID(ctx context.Context, deliveryID string, fields Fields) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a deliveries repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&delivery).Error; err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) FindByDeliveryID(ctx context.Context, deliveryID string) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("updated_at DESC").
		First(&delivery).Error
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

// UpsertByOrderID inserts an uber_direct delivery for the order or updates the
// set fields of the existing one.
func (r *repository) UpsertByOrderID(ctx context.Context, orderID uuid.UUID, fields Fields) (*models.Delivery, error) {
	row := &models.Delivery{
		OrderID:     orderID,
		Provider:    enums.DeliveryProviderUberDirect,
		DeliveryID:  fields.DeliveryID,
		Status:      fields.Status,
		TrackingURL: fields.TrackingURL,
		FeeTotal:    fields.FeeTotal,
		Currency:    fields.Currency,
		EstimateID:  fields.EstimateID,
		PickupAtMs:  fields.PickupAtMs,
	}
	assignments := fields.columns()
	assignments["updated_at"] = time.Now().UTC()

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	return r.FindByOrderID(ctx, orderID)
}

func (r *repository) UpdateByDeliveryID(ctx context.Context, deliveryID string, fields Fields) (int64, error) {
	cols := fields.columns()
	if len(cols) == 0 {
		return 0, nil
	}
	cols["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("delivery_id = ?", deliveryID).
		Updates(cols)
	return res.RowsAffected, res.Error
}
