package webhooks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`
CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  type TEXT NOT NULL,
  received_at DATETIME
);`).Error)
	return conn
}

func TestLedgerRecordDetectsDuplicates(t *testing.T) {
	conn := setupLedgerTestDB(t)
	ledger := NewLedger(conn)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, "evt_1", enums.WebhookProviderStripe, "payment_intent.succeeded"))

	err := ledger.Record(ctx, "evt_1", enums.WebhookProviderStripe, "payment_intent.succeeded")
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	require.NoError(t, ledger.Record(ctx, "uber:evt_1", enums.WebhookProviderUber, "deliveries.delivery_status"))

	var rows []models.WebhookEvent
	require.NoError(t, conn.Order("id ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.WebhookProviderUber, rows[1].Provider)
}

func TestLedgerRecordRollsBackWithTransaction(t *testing.T) {
	conn := setupLedgerTestDB(t)
	ledger := NewLedger(conn)
	ctx := context.Background()
	abort := errors.New("abort")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := ledger.WithTx(tx).Record(ctx, "evt_tx", enums.WebhookProviderStripe, "charge.refunded"); err != nil {
			return err
		}
		return abort
	})
	require.ErrorIs(t, err, abort)

	// the rolled back id can be recorded again
	require.NoError(t, ledger.Record(ctx, "evt_tx", enums.WebhookProviderStripe, "charge.refunded"))
}

func TestLedgerRecordRequiresID(t *testing.T) {
	ledger := NewLedger(setupLedgerTestDB(t))
	err := ledger.Record(context.Background(), " ", enums.WebhookProviderStripe, "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEvent)
}
