package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/misterfood-backend/internal/checkout/helpers"
	"github.com/angelmondragon/misterfood-backend/internal/orders"
	"github.com/angelmondragon/misterfood-backend/pkg/db"
	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/idempotency"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/metrics"
	stripeclient "github.com/angelmondragon/misterfood-backend/pkg/stripe"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	orderIdempotencyConstraint = "orders_idempotency_key_key"

	outcomeConflict         = "conflict"
	alertCompensationFailed = "checkout_compensation_failed"
)

type merchantLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
}

// PaymentGateway creates and reads payment intents.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, in stripeclient.PaymentIntentInput) (*stripeclient.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*stripeclient.PaymentIntent, error)
}

// Sleeper waits between replay polls.
type Sleeper func(ctx context.Context, d time.Duration) error

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, input Input, suppliedKey string) (*Result, error)
}

type ServiceParams struct {
	Orders             orders.Repository
	Merchants          merchantLoader
	Payments           PaymentGateway
	Metrics            *metrics.OrderFlowMetrics
	Logger             *logger.Logger
	ReplayWaitAttempts int
	ReplayWaitInterval time.Duration
	Sleep              Sleeper
}

type service struct {
	orders       orders.Repository
	merchants    merchantLoader
	payments     PaymentGateway
	metrics      *metrics.OrderFlowMetrics
	logg         *logger.Logger
	waitAttempts int
	waitInterval time.Duration
	sleep        Sleeper
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Merchants == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "merchant loader required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	attempts := params.ReplayWaitAttempts
	if attempts < 0 {
		attempts = 0
	}
	interval := params.ReplayWaitInterval
	if interval <= 0 {
		interval = 150 * time.Millisecond
	}
	sleep := params.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &service{
		orders:       params.Orders,
		merchants:    params.Merchants,
		payments:     params.Payments,
		metrics:      params.Metrics,
		logg:         logg,
		waitAttempts: attempts,
		waitInterval: interval,
		sleep:        sleep,
	}, nil
}

// Execute turns a cart into an order and a payment intent. Submitting the
// same payload again returns the stored client secret instead of charging
// twice.
func (s *service) Execute(ctx context.Context, input Input, suppliedKey string) (*Result, error) {
	if err := input.validate(); err != nil {
		s.metrics.IncCheckout(metrics.OutcomeRejected)
		return nil, err
	}

	currency := helpers.NormalizeCurrency(input.Currency)
	extras := input.extras()
	items := input.orderItems()
	totals := helpers.ComputeTotals(items, helpers.Fees{
		ServiceFee:  extras.ServiceFeeMinor,
		DeliveryFee: extras.DeliveryFeeMinor,
		Tip:         extras.TipMinor,
	})
	if err := helpers.ValidateTotals(totals); err != nil {
		s.metrics.IncCheckout(metrics.OutcomeRejected)
		return nil, err
	}

	key, err := idempotency.Derive(idempotency.PrefixCheckout, helpers.BuildKeyPayload(input.MerchantID.String(), currency, totals.AmountTotal, items))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "derive idempotency key")
	}
	if suppliedKey != "" && !idempotency.Matches(suppliedKey, key) {
		s.metrics.IncCheckout(metrics.OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key does not match the request payload").
			WithDetails(map[string]any{"header": idempotency.HeaderName})
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"merchant_id":     input.MerchantID.String(),
		"idempotency_key": key,
	})

	existing, err := s.orders.FindByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		return s.replay(ctx, existing, input.MerchantID, currency, totals.AmountTotal, key)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.metrics.IncCheckout(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by idempotency key")
	}

	merchant, err := s.merchants.FindByID(ctx, input.MerchantID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.metrics.IncCheckout(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load merchant")
	}
	if err := helpers.ValidateMerchant(merchant); err != nil {
		s.metrics.IncCheckout(outcomeConflict)
		return nil, err
	}

	order := &models.Order{
		MerchantID:     merchant.ID,
		Currency:       currency,
		AmountTotal:    totals.AmountTotal,
		IdempotencyKey: &key,
		Items:          items,
	}
	if extras.Mode == ModeDelivery {
		order.Delivery = nascentDelivery(currency, totals.DeliveryFee)
	}
	created, err := s.orders.Create(ctx, order)
	if err != nil {
		if db.IsUniqueViolation(err, orderIdempotencyConstraint) {
			s.logg.Info(ctx, "checkout.concurrent_create")
			winner, findErr := s.orders.FindByIdempotencyKey(ctx, key)
			if findErr != nil {
				s.metrics.IncCheckout(metrics.OutcomeError)
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload concurrent order")
			}
			return s.replay(ctx, winner, input.MerchantID, currency, totals.AmountTotal, key)
		}
		s.metrics.IncCheckout(metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	ctx = s.logg.WithOrderID(ctx, created.ID.String())

	intent, err := s.payments.CreatePaymentIntent(ctx, stripeclient.PaymentIntentInput{
		Amount:               totals.AmountTotal,
		Currency:             currency,
		ReceiptEmail:         input.CustomerEmail,
		Metadata:             helpers.IntentMetadata(created.ID.String(), merchant.ID.String(), totals, extras.Mode, extras.Note),
		ApplicationFeeAmount: helpers.ApplicationFee(totals.Subtotal, merchant.CommissionBps),
		DestinationAccount:   *merchant.StripeAccountID,
		IdempotencyKey:       key,
	})
	if err == nil && intent.ClientSecret == "" {
		err = pkgerrors.New(pkgerrors.CodeGateway, "payment intent returned without client secret")
	}
	if err == nil {
		err = s.orders.AttachPaymentIntent(ctx, created.ID, intent.ID, intent.ClientSecret)
	}
	if err != nil {
		s.compensate(ctx, created.ID)
		s.metrics.IncCheckout(metrics.OutcomeError)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment intent")
	}

	s.metrics.IncCheckout(metrics.OutcomeSuccess)
	s.logg.Info(ctx, "checkout.order_created")
	return &Result{
		ClientSecret: intent.ClientSecret,
		OrderID:      created.ID,
		Amount:       totals.AmountTotal,
		Currency:     currency,
	}, nil
}

// replay answers a repeated submission from the stored order. An order
// without an intent is still being created by a concurrent request, so it is
// polled for a bounded time before reporting the conflict.
func (s *service) replay(ctx context.Context, order *models.Order, merchantID uuid.UUID, currency string, amount int64, key string) (*Result, error) {
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if err := helpers.ValidateReplay(order, merchantID, currency, amount); err != nil {
		s.metrics.IncCheckout(outcomeConflict)
		return nil, err
	}

	for attempt := 0; !order.HasPaymentIntent(); attempt++ {
		if attempt >= s.waitAttempts {
			s.metrics.IncCheckout(outcomeConflict)
			return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "payment session is still being created").
				WithDetails(map[string]any{"orderId": order.ID.String()})
		}
		if err := s.sleep(ctx, s.waitInterval); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "payment session is still being created")
		}
		reloaded, err := s.orders.FindByIdempotencyKey(ctx, key)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// the concurrent request failed and rolled its order back
				s.metrics.IncCheckout(outcomeConflict)
				return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "concurrent checkout failed, retry the request")
			}
			s.metrics.IncCheckout(metrics.OutcomeError)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		order = reloaded
	}

	secret := order.ClientSecret()
	if secret == "" {
		intent, err := s.payments.RetrievePaymentIntent(ctx, *order.StripePaymentIntentID)
		if err != nil {
			s.metrics.IncCheckout(metrics.OutcomeError)
			return nil, err
		}
		if intent.ClientSecret == "" {
			s.metrics.IncCheckout(metrics.OutcomeError)
			return nil, pkgerrors.New(pkgerrors.CodeGateway, "payment intent returned without client secret")
		}
		if err := s.orders.SetClientSecret(ctx, order.ID, intent.ClientSecret); err != nil {
			s.logg.Error(ctx, "checkout.persist_client_secret_failed", err)
		}
		secret = intent.ClientSecret
	}

	s.metrics.IncCheckout(metrics.OutcomeReplayed)
	s.logg.Info(ctx, "checkout.replayed")
	return &Result{
		ClientSecret: secret,
		OrderID:      order.ID,
		Amount:       order.AmountTotal,
		Currency:     order.Currency,
	}, nil
}

// compensate removes an order whose payment intent could not be attached.
// Failures are logged and never replace the original error.
func (s *service) compensate(ctx context.Context, orderID uuid.UUID) {
	if err := s.orders.Delete(ctx, orderID); err != nil {
		s.metrics.IncAlert(alertCompensationFailed)
		s.logg.Error(ctx, "checkout.compensating_delete_failed", err)
		return
	}
	s.logg.Warn(ctx, "checkout.order_rolled_back")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
