package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  currency TEXT NOT NULL,
  amount_total INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  idempotency_key TEXT UNIQUE,
  stripe_payment_intent_id TEXT,
  stripe_client_secret TEXT,
  notified_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	orderItems := `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_amount INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME
);`
	deliveries := `
CREATE TABLE IF NOT EXISTS deliveries (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  provider TEXT NOT NULL,
  delivery_id TEXT,
  status TEXT,
  tracking_url TEXT,
  fee_total INTEGER,
  currency TEXT,
  estimate_id TEXT,
  pickup_at_ms INTEGER,
  created_at DATETIME,
  updated_at DATETIME
);`
	for _, stmt := range []string{orders, orderItems, deliveries} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedOrder(t *testing.T, repo Repository, key string, withDelivery bool) *models.Order {
	t.Helper()
	order := &models.Order{
		MerchantID:  uuid.New(),
		Currency:    "eur",
		AmountTotal: 1598,
		Items: []models.OrderItem{
			{Name: "Menu Tacos", UnitAmount: 1299, Quantity: 1},
			{Name: "Churros", UnitAmount: 299, Quantity: 1},
		},
	}
	if key != "" {
		order.IdempotencyKey = &key
	}
	if withDelivery {
		fee := int64(499)
		currency := "eur"
		order.Delivery = &models.Delivery{FeeTotal: &fee, Currency: &currency}
	}
	created, err := repo.Create(context.Background(), order)
	require.NoError(t, err)
	return created
}

func TestRepositoryCreateAndFind(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	created := seedOrder(t, repo, "key-1", true)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, enums.OrderStatusPending, created.Status)

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, found.Items, 2)
	require.NotNil(t, found.Delivery)
	assert.Equal(t, enums.DeliveryProviderUberDirect, found.Delivery.Provider)
	assert.Equal(t, int64(499), *found.Delivery.FeeTotal)
	assert.False(t, found.HasPaymentIntent())

	byKey, err := repo.FindByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byKey.ID)

	_, err = repo.FindByIdempotencyKey(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryCreateRejectsDuplicateKey(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	seedOrder(t, repo, "dup", false)
	_, err := repo.Create(context.Background(), &models.Order{
		MerchantID:     uuid.New(),
		Currency:       "eur",
		AmountTotal:    100,
		IdempotencyKey: ptr("dup"),
	})
	require.Error(t, err)
}

func TestRepositoryPaymentIntentLifecycle(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, repo, "", false)
	require.NoError(t, repo.AttachPaymentIntent(ctx, order.ID, "pi_123", "pi_123_secret"))

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, found.HasPaymentIntent())
	assert.Equal(t, "pi_123_secret", found.ClientSecret())

	require.NoError(t, repo.SetClientSecret(ctx, order.ID, "pi_123_secret_2"))
	found, err = repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_123_secret_2", found.ClientSecret())

	byIntent, err := repo.FindByPaymentIntentID(ctx, "pi_123")
	require.NoError(t, err)
	require.Len(t, byIntent, 1)

	err = repo.AttachPaymentIntent(ctx, uuid.New(), "pi_x", "secret")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryDeleteRemovesDependents(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, repo, "to-delete", true)
	require.NoError(t, repo.Delete(ctx, order.ID))

	_, err := repo.FindByID(ctx, order.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var items, deliveries int64
	require.NoError(t, db.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&items).Error)
	require.NoError(t, db.Model(&models.Delivery{}).Where("order_id = ?", order.ID).Count(&deliveries).Error)
	assert.Zero(t, items)
	assert.Zero(t, deliveries)

	// the key is free again once the order is gone
	seedOrder(t, repo, "to-delete", false)
}

func TestRepositoryMarkPaid(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, repo, "", false)

	paid, err := repo.MarkPaid(ctx, order.ID, 1700)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, paid.Status)
	assert.Equal(t, int64(1700), paid.AmountTotal)
	assert.Nil(t, paid.NotifiedAt)

	paid, err = repo.MarkPaid(ctx, order.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1700), paid.AmountTotal)

	_, err = repo.MarkPaid(ctx, uuid.New(), 100)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryStatusTransitions(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, repo, "", false)

	rows, err := repo.UpdateStatusIfCurrent(ctx, order.ID, enums.OrderStatusPaid, enums.OrderStatusFailed)
	require.NoError(t, err)
	assert.Zero(t, rows)

	rows, err = repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPaid)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	rows, err = repo.UpdateStatusIfCurrent(ctx, order.ID, enums.OrderStatusPaid, enums.OrderStatusFailed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFailed, found.Status)
}

func TestRepositoryCancelByPaymentIntentAndNotify(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, repo, "", false)
	require.NoError(t, repo.AttachPaymentIntent(ctx, order.ID, "pi_refund", "secret"))

	rows, err := repo.CancelByPaymentIntent(ctx, "pi_refund")
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	rows, err = repo.CancelByPaymentIntent(ctx, "pi_unknown")
	require.NoError(t, err)
	assert.Zero(t, rows)

	at := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkNotified(ctx, order.ID, at))

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCanceled, found.Status)
	require.NotNil(t, found.NotifiedAt)
	assert.True(t, found.NotifiedAt.Equal(at))
}

func TestRepositoryWithTxRollsBack(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, repo, "", false)
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := repo.WithTx(tx).UpdateStatus(ctx, order.ID, enums.OrderStatusPaid); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, found.Status)
	assert.Same(t, repo, repo.WithTx(nil))
}

func ptr[T any](v T) *T { return &v }
