package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/misterfood-backend/internal/orders"
	"github.com/angelmondragon/misterfood-backend/internal/webhooks"
	"github.com/angelmondragon/misterfood-backend/pkg/db"
	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSignature = "t=1,v1=valid"

var webhookTables = []string{`
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
);`, `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_amount INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME
);`, `
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
);`, `
CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  type TEXT NOT NULL,
  received_at DATETIME
);`}

type stubVerifier struct {
	event stripe.Event
}

func (s *stubVerifier) ConstructEvent(payload []byte, header string) (stripe.Event, error) {
	if header != testSignature {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid stripe signature")
	}
	return s.event, nil
}

type stubNotifier struct {
	calls []uuid.UUID
	err   error
	panic bool
}

func (s *stubNotifier) NotifyOrderPaid(ctx context.Context, orderID uuid.UUID) error {
	s.calls = append(s.calls, orderID)
	if s.panic {
		panic("smtp exploded")
	}
	return s.err
}

type webhookHarness struct {
	conn     *gorm.DB
	orders   orders.Repository
	verifier *stubVerifier
	notifier *stubNotifier
	svc      *Service
}

func newWebhookHarness(t *testing.T) *webhookHarness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range webhookTables {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}

	h := &webhookHarness{
		conn:     conn,
		orders:   orders.NewRepository(conn),
		verifier: &stubVerifier{},
		notifier: &stubNotifier{},
	}
	svc, err := NewService(ServiceParams{
		Orders:            h.orders,
		Ledger:            webhooks.NewLedger(conn),
		Verifier:          h.verifier,
		Notifier:          h.notifier,
		TransactionRunner: db.Wrap(conn),
		SlowLatency:       time.Minute,
		Now:               func() time.Time { return time.Unix(1741176000, 0) },
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	h.svc = svc
	return h
}

func (h *webhookHarness) seedOrder(t *testing.T, intentID string) *models.Order {
	t.Helper()
	order, err := h.orders.Create(context.Background(), &models.Order{
		MerchantID:  uuid.New(),
		Currency:    "eur",
		AmountTotal: 1299,
		Items:       []models.OrderItem{{Name: "Menu Tacos", UnitAmount: 1299, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if intentID != "" {
		if err := h.orders.AttachPaymentIntent(context.Background(), order.ID, intentID, intentID+"_secret"); err != nil {
			t.Fatalf("attach intent: %v", err)
		}
	}
	return order
}

func (h *webhookHarness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := h.orders.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}

func (h *webhookHarness) ledgerCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := h.conn.Model(&models.WebhookEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	return count
}

func intentEvent(t *testing.T, id string, eventType stripe.EventType, intent map[string]any) stripe.Event {
	t.Helper()
	intent["object"] = "payment_intent"
	raw, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return stripe.Event{
		ID:      id,
		Type:    eventType,
		Created: 1741175990,
		Data:    &stripe.EventData{Raw: raw},
	}
}

func TestHandleWebhookPaymentSucceededNotifiesOnce(t *testing.T) {
	h := newWebhookHarness(t)
	order := h.seedOrder(t, "pi_1")
	h.verifier.event = intentEvent(t, "evt_paid", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":              "pi_1",
		"amount":          1299,
		"amount_received": 1299,
		"metadata":        map[string]string{"orderId": order.ID.String()},
	})

	res, err := h.svc.HandleWebhook(context.Background(), []byte("{}"), testSignature)
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if res.Duplicate {
		t.Fatalf("first delivery must not be a duplicate")
	}
	got := h.reload(t, order.ID)
	if got.Status != enums.OrderStatusPaid {
		t.Fatalf("expected PAID got %s", got.Status)
	}
	if got.NotifiedAt == nil {
		t.Fatalf("expected notified_at to be stamped")
	}
	if len(h.notifier.calls) != 1 || h.notifier.calls[0] != order.ID {
		t.Fatalf("expected one notification, got %v", h.notifier.calls)
	}

	res, err = h.svc.HandleWebhook(context.Background(), []byte("{}"), testSignature)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("expected replay to be reported as duplicate")
	}
	if len(h.notifier.calls) != 1 {
		t.Fatalf("replay must not notify again, got %d calls", len(h.notifier.calls))
	}
	if n := h.ledgerCount(t); n != 1 {
		t.Fatalf("expected 1 ledger row got %d", n)
	}
}

func TestHandleWebhookStampsNotifiedEvenWhenDispatchFails(t *testing.T) {
	for _, tc := range []struct {
		name     string
		notifier *stubNotifier
	}{
		{name: "error", notifier: &stubNotifier{err: errors.New("sendgrid 500")}},
		{name: "panic", notifier: &stubNotifier{panic: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newWebhookHarness(t)
			*h.notifier = *tc.notifier
			order := h.seedOrder(t, "pi_2")
			h.verifier.event = intentEvent(t, "evt_"+tc.name, stripe.EventTypePaymentIntentSucceeded, map[string]any{
				"id":       "pi_2",
				"amount":   1299,
				"metadata": map[string]string{"orderId": order.ID.String()},
			})

			if _, err := h.svc.HandleWebhook(context.Background(), []byte("{}"), testSignature); err != nil {
				t.Fatalf("dispatch failure must not surface: %v", err)
			}
			got := h.reload(t, order.ID)
			if got.Status != enums.OrderStatusPaid || got.NotifiedAt == nil {
				t.Fatalf("expected PAID and notified, got %s %v", got.Status, got.NotifiedAt)
			}
		})
	}
}

func TestHandleWebhookSkipsNotificationForNotifiedOrder(t *testing.T) {
	h := newWebhookHarness(t)
	order := h.seedOrder(t, "pi_3")
	if err := h.orders.MarkNotified(context.Background(), order.ID, time.Now()); err != nil {
		t.Fatalf("mark notified: %v", err)
	}
	h.verifier.event = intentEvent(t, "evt_again", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_3",
		"amount":   1299,
		"metadata": map[string]string{"orderId": order.ID.String()},
	})

	if _, err := h.svc.HandleWebhook(context.Background(), []byte("{}"), testSignature); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if len(h.notifier.calls) != 0 {
		t.Fatalf("expected no notification, got %d", len(h.notifier.calls))
	}
}

func TestHandleWebhookPaymentFailedAndCanceled(t *testing.T) {
	cases := []struct {
		eventType stripe.EventType
		want      enums.OrderStatus
	}{
		{stripe.EventTypePaymentIntentPaymentFailed, enums.OrderStatusFailed},
		{stripe.EventTypePaymentIntentCanceled, enums.OrderStatusCanceled},
	}
	for _, tc := range cases {
		t.Run(string(tc.eventType), func(t *testing.T) {
			h := newWebhookHarness(t)
			order := h.seedOrder(t, "pi_4")
			h.verifier.event = intentEvent(t, "evt_"+string(tc.eventType), tc.eventType, map[string]any{
				"id":                 "pi_4",
				"metadata":           map[string]string{"orderId": order.ID.String()},
				"last_payment_error": map[string]any{"message": "card_declined"},
			})

			if _, err := h.svc.HandleWebhook(context.Background(), []byte("{}"), testSignature); err != nil {
				t.Fatalf("handle webhook: %v", err)
			}
			if got := h.reload(t, order.ID); got.Status != tc.want {
				t.Fatalf("expected %s got %s", tc.want, got.Status)
			}
			if len(h.notifier.calls) != 0 {
				t.Fatalf("unexpected notification")
			}
		})
	}
}

func TestHandleWebhookChargeRefundedCancelsByIntent(t *testing.T) {
	h := newWebhookHarness(t)
	order := h.seedOrder(t, "pi_refund")
	if _, err := h.orders.UpdateStatus(context.Background(), order.ID, enums.OrderStatusPaid); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	raw := []byte(`{"id":"ch_1","object":"charge","payment_intent":"pi_refund","refunded":true}`)
	h.verifier.event = stripe.Event{
		ID:   "evt_refund",
		Type: stripe.EventTypeChargeRefunded,
		Data: &stripe.EventData{Raw: raw},
	}

	if _, err := h.svc.HandleWebhook(context.Background(), []byte("{}"), testSignature); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if got := h.reload(t, order.ID); got.Status != enums.OrderStatusCanceled {
		t.Fatalf("expected CANCELED got %s", got.Status)
	}
}

func TestHandleWebhookUnknownTypeIsLedgeredOnly(t *testing.T) {
	h := newWebhookHarness(t)
	order := h.seedOrder(t, "")
	h.verifier.event = stripe.Event{
		ID:   "evt_other",
		Type: stripe.EventType("customer.created"),
		Data: &stripe.EventData{Raw: []byte(`{"id":"cus_1"}`)},
	}

	if _, err := h.svc.HandleWebhook(context.Background(), []byte("{}"), testSignature); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if got := h.reload(t, order.ID); got.Status != enums.OrderStatusPending {
		t.Fatalf("order must be untouched, got %s", got.Status)
	}
	if n := h.ledgerCount(t); n != 1 {
		t.Fatalf("expected event ledgered, got %d rows", n)
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	h := newWebhookHarness(t)
	_, err := h.svc.HandleWebhook(context.Background(), []byte("{}"), "forged")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error got %v", err)
	}
	if n := h.ledgerCount(t); n != 0 {
		t.Fatalf("nothing may be persisted before verification, got %d rows", n)
	}
}

func TestHandleWebhookMissingOrderRollsBackLedger(t *testing.T) {
	h := newWebhookHarness(t)
	h.verifier.event = intentEvent(t, "evt_orphan", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_orphan",
		"amount":   500,
		"metadata": map[string]string{"orderId": uuid.NewString()},
	})

	_, err := h.svc.HandleWebhook(context.Background(), []byte("{}"), testSignature)
	if !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error got %v", err)
	}
	if n := h.ledgerCount(t); n != 0 {
		t.Fatalf("failed event must be retryable, got %d ledger rows", n)
	}
}
