package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/misterfood-backend/internal/orders"
	"github.com/angelmondragon/misterfood-backend/internal/webhooks"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/metrics"
	stripeclient "github.com/angelmondragon/misterfood-backend/pkg/stripe"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

const (
	alertSlowWebhook         = "webhook_slow"
	alertPaymentFailed       = "payment_failed"
	alertNotificationFailed  = "notification_failed"
	alertNotifiedStampFailed = "notified_stamp_failed"
)

// EventVerifier checks the signature header and decodes the event.
type EventVerifier interface {
	ConstructEvent(payload []byte, header string) (stripe.Event, error)
}

// Notifier tells the merchant about a freshly paid order.
type Notifier interface {
	NotifyOrderPaid(ctx context.Context, orderID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Orders            orders.Repository
	Ledger            webhooks.Ledger
	Verifier          EventVerifier
	Notifier          Notifier
	TransactionRunner txRunner
	Metrics           *metrics.OrderFlowMetrics
	Logger            *logger.Logger
	SlowLatency       time.Duration
	Now               func() time.Time
}

// Service reconciles orders with payment events.
type Service struct {
	orders      orders.Repository
	ledger      webhooks.Ledger
	verifier    EventVerifier
	notifier    Notifier
	txRunner    txRunner
	metrics     *metrics.OrderFlowMetrics
	logg        *logger.Logger
	slowLatency time.Duration
	now         func() time.Time
}

// Result describes what happened to one delivered event.
type Result struct {
	EventID   string
	Type      string
	Duplicate bool
}

// effects are the side effects queued inside the transaction and run after
// it commits.
type effects struct {
	outcome       string
	notifyOrderID *uuid.UUID
	failedOrderID string
	failureReason string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook ledger required")
	}
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe verifier required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	slow := params.SlowLatency
	if slow <= 0 {
		slow = 5 * time.Minute
	}
	return &Service{
		orders:      params.Orders,
		ledger:      params.Ledger,
		verifier:    params.Verifier,
		notifier:    params.Notifier,
		txRunner:    params.TransactionRunner,
		metrics:     params.Metrics,
		logg:        logg,
		slowLatency: slow,
		now:         now,
	}, nil
}

// HandleWebhook verifies the payload, records the event and applies it to
// the order inside one transaction. Duplicates are acknowledged without
// side effects.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Result, error) {
	event, err := s.verifier.ConstructEvent(payload, signature)
	if err != nil {
		s.metrics.IncWebhookEvent(stripeclient.Provider, "", metrics.OutcomeRejected)
		return nil, err
	}
	eventType := string(event.Type)
	ctx = s.logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": eventType})
	result := &Result{EventID: event.ID, Type: eventType}

	var fx effects
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ledger.WithTx(tx).Record(ctx, event.ID, enums.WebhookProviderStripe, eventType); err != nil {
			return err
		}
		applied, err := s.apply(ctx, s.orders.WithTx(tx), event)
		if err != nil {
			return err
		}
		fx = applied
		return nil
	})
	if errors.Is(err, webhooks.ErrDuplicateEvent) {
		s.metrics.IncWebhookEvent(stripeclient.Provider, eventType, metrics.OutcomeDuplicate)
		s.logg.Info(ctx, "stripe.webhook_duplicate")
		result.Duplicate = true
		return result, nil
	}
	if err != nil {
		s.metrics.IncWebhookEvent(stripeclient.Provider, eventType, metrics.OutcomeError)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "process stripe event")
	}

	s.metrics.IncWebhookEvent(stripeclient.Provider, eventType, fx.outcome)
	s.afterCommit(ctx, event, fx)
	return result, nil
}

func (s *Service) apply(ctx context.Context, repo orders.Repository, event stripe.Event) (effects, error) {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		intent, err := stripeclient.DecodePaymentIntent(event)
		if err != nil {
			return effects{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		orderID, ok := s.orderID(ctx, intent)
		if !ok {
			return effects{outcome: metrics.OutcomeIgnored}, nil
		}
		order, err := repo.MarkPaid(ctx, orderID, stripeclient.SettledAmount(intent))
		if err != nil {
			return effects{}, err
		}
		fx := effects{outcome: metrics.OutcomeApplied}
		if order.NotifiedAt == nil {
			fx.notifyOrderID = &order.ID
		}
		return fx, nil

	case stripe.EventTypePaymentIntentPaymentFailed:
		intent, err := stripeclient.DecodePaymentIntent(event)
		if err != nil {
			return effects{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		fx := effects{
			outcome:       metrics.OutcomeApplied,
			failedOrderID: stripeclient.OrderIDFromIntent(intent),
			failureReason: stripeclient.FailureMessage(intent),
		}
		if orderID, ok := s.orderID(ctx, intent); ok {
			s.setStatus(ctx, repo, orderID, enums.OrderStatusFailed)
		}
		return fx, nil

	case stripe.EventTypePaymentIntentCanceled:
		intent, err := stripeclient.DecodePaymentIntent(event)
		if err != nil {
			return effects{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		if orderID, ok := s.orderID(ctx, intent); ok {
			s.setStatus(ctx, repo, orderID, enums.OrderStatusCanceled)
		}
		return effects{outcome: metrics.OutcomeApplied}, nil

	case stripe.EventTypeChargeRefunded:
		charge, err := stripeclient.DecodeCharge(event)
		if err != nil {
			return effects{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
		}
		intentID := stripeclient.ChargeIntentID(charge)
		if intentID == "" {
			s.logg.Warn(ctx, "stripe.refund_without_intent")
			return effects{outcome: metrics.OutcomeIgnored}, nil
		}
		if _, err := repo.CancelByPaymentIntent(ctx, intentID); err != nil {
			return effects{}, err
		}
		return effects{outcome: metrics.OutcomeApplied}, nil

	default:
		return effects{outcome: metrics.OutcomeIgnored}, nil
	}
}

func (s *Service) orderID(ctx context.Context, intent *stripe.PaymentIntent) (uuid.UUID, bool) {
	raw := stripeclient.OrderIDFromIntent(intent)
	if raw == "" {
		s.logg.Warn(ctx, "stripe.intent_without_order")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "order_ref", raw), "stripe.intent_invalid_order")
		return uuid.Nil, false
	}
	return id, true
}

// setStatus applies a failure or cancel transition. Errors are logged and
// never abort the ledger write.
func (s *Service) setStatus(ctx context.Context, repo orders.Repository, id uuid.UUID, status enums.OrderStatus) {
	if _, err := repo.UpdateStatus(ctx, id, status); err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, id.String()), "stripe.order_status_update_failed", err)
	}
}

func (s *Service) afterCommit(ctx context.Context, event stripe.Event, fx effects) {
	if event.Created > 0 {
		latency := s.now().Sub(time.Unix(event.Created, 0))
		s.metrics.ObservePaymentLatency(stripeclient.Provider, latency)
		if latency > s.slowLatency {
			s.metrics.IncAlert(alertSlowWebhook)
			s.logg.Warn(s.logg.WithField(ctx, "latency_ms", latency.Milliseconds()), "stripe.webhook_slow")
		}
	}

	if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
		s.metrics.IncAlert(alertPaymentFailed)
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_id": fx.failedOrderID,
			"reason":   fx.failureReason,
		}), "stripe.payment_failed")
	}

	if fx.notifyOrderID != nil {
		s.notify(ctx, *fx.notifyOrderID)
	}
}

// notify runs the merchant notification at most once per order. notified_at
// is stamped whatever the dispatcher returns.
func (s *Service) notify(ctx context.Context, orderID uuid.UUID) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	if err := s.dispatch(ctx, orderID); err != nil {
		s.metrics.IncAlert(alertNotificationFailed)
		s.logg.Error(ctx, "stripe.notification_failed", err)
	}
	if err := s.orders.MarkNotified(ctx, orderID, s.now()); err != nil {
		s.metrics.IncAlert(alertNotifiedStampFailed)
		s.logg.Error(ctx, "stripe.notified_stamp_failed", err)
	}
}

func (s *Service) dispatch(ctx context.Context, orderID uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return s.notifier.NotifyOrderPaid(ctx, orderID)
}
