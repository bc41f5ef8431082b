package deliveries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/misterfood-backend/internal/eligibility"
	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/idempotency"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/uber"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	quoteRetries  = 2
	createRetries = 2
	cancelRetries = 1
)

// OrderStore is the slice of the orders repository deliveries need.
type OrderStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (int64, error)
}

// EligibilityEvaluator gates courier delivery on the dropoff point.
type EligibilityEvaluator interface {
	Evaluate(p eligibility.Point, now time.Time) eligibility.Result
}

// Service orchestrates courier quotes, bookings, cancellations and polling.
type Service interface {
	Quote(ctx context.Context, in QuoteInput) (*uber.Quote, error)
	Create(ctx context.Context, in CreateInput) (*uber.Delivery, error)
	Cancel(ctx context.Context, in CancelInput) (*uber.Delivery, error)
	Status(ctx context.Context, deliveryID string) (*uber.Delivery, error)
}

type ServiceParams struct {
	Repo        Repository
	Orders      OrderStore
	Gateway     uber.Gateway
	Eligibility EligibilityEvaluator
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	repo        Repository
	orders      OrderStore
	gateway     uber.Gateway
	eligibility EligibilityEvaluator
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the delivery orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("deliveries repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders store required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("delivery gateway required")
	}
	if params.Eligibility == nil {
		return nil, fmt.Errorf("eligibility evaluator required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		orders:      params.Orders,
		gateway:     params.Gateway,
		eligibility: params.Eligibility,
		logg:        logg,
		now:         now,
	}, nil
}

func (s *service) Quote(ctx context.Context, in QuoteInput) (*uber.Quote, error) {
	if err := s.eligibility.Evaluate(in.Dropoff.eligibilityPoint(), s.now()).Err(); err != nil {
		return nil, err
	}

	var orderRef *string
	orderExists := false
	if in.OrderID != nil {
		ref := in.OrderID.String()
		orderRef = &ref
		ctx = s.logg.WithOrderID(ctx, ref)

		_, err := s.orders.FindByID(ctx, *in.OrderID)
		switch {
		case err == nil:
			orderExists = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
	}

	storeID := s.gateway.StoreID()
	key, err := idempotency.Derive(idempotency.PrefixDeliveryQuote, quoteKey{
		StoreID: storeID,
		OrderID: orderRef,
		Dropoff: newKeyDropoff(in.Dropoff),
		Items:   keyItems(in.Items),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "derive quote key")
	}

	req := uber.QuoteRequest{
		ExternalStoreID: storeID,
		Pickup:          in.Pickup.stop(),
		Dropoff:         in.Dropoff.stop(),
		Manifest:        manifest(in.Items),
		Currency:        strings.ToLower(in.Currency),
	}
	if orderRef != nil {
		req.ExternalReferenceID = *orderRef
	}

	quote, err := s.gateway.Quote(ctx, req, uber.CallOptions{IdempotencyKey: key, Retries: quoteRetries})
	if err != nil {
		return nil, uber.APIError("delivery quote", err)
	}

	estimateID := quote.EstimateID()
	fee := quote.FeeAmount()
	if orderExists && (estimateID != "" || fee != nil) {
		fields := Fields{FeeTotal: fee}
		if estimateID != "" {
			fields.EstimateID = &estimateID
		}
		if currency := quote.FeeCurrency(); currency != "" {
			fields.Currency = &currency
		}
		if _, err := s.repo.UpsertByOrderID(ctx, *in.OrderID, fields); err != nil {
			s.logg.Error(ctx, "delivery.quote_persist_failed", err)
		}
	}
	return quote, nil
}

func (s *service) Create(ctx context.Context, in CreateInput) (*uber.Delivery, error) {
	ctx = s.logg.WithOrderID(ctx, in.OrderID.String())

	order, err := s.orders.FindByID(ctx, in.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order must be paid before requesting delivery").
			WithDetails(map[string]any{"status": order.Status.String()})
	}
	if order.Delivery.Active() {
		s.logg.Info(ctx, "delivery.create_skipped_active")
		return storedDelivery(order), nil
	}

	if err := s.eligibility.Evaluate(in.Dropoff.eligibilityPoint(), s.now()).Err(); err != nil {
		return nil, err
	}

	storeID := s.gateway.StoreID()
	var quoteRef *string
	if q := strings.TrimSpace(in.QuoteID); q != "" {
		quoteRef = &q
	}
	key, err := idempotency.Derive(idempotency.PrefixDeliveryCreate, createKey{
		StoreID: storeID,
		OrderID: order.ID.String(),
		QuoteID: quoteRef,
		Dropoff: newKeyDropoff(in.Dropoff),
		Items:   keyItems(in.Items),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "derive delivery key")
	}

	delivery, err := s.gateway.Create(ctx, uber.CreateRequest{
		ExternalStoreID:     storeID,
		QuoteID:             strings.TrimSpace(in.QuoteID),
		Pickup:              in.Pickup.stop(),
		Dropoff:             in.Dropoff.stop(),
		Manifest:            manifest(in.Items),
		ExternalReferenceID: order.ID.String(),
		ExternalOrderID:     order.ID.String(),
		Currency:            order.Currency,
	}, uber.CallOptions{IdempotencyKey: key, Retries: createRetries})
	if err != nil {
		return nil, uber.APIError("delivery create", err)
	}

	fields := fieldsFromDelivery(delivery)
	if fields.EstimateID == nil && quoteRef != nil {
		fields.EstimateID = quoteRef
	}
	if fields.Currency == nil {
		currency := order.Currency
		fields.Currency = &currency
	}
	if _, err := s.repo.UpsertByOrderID(ctx, order.ID, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist delivery")
	}
	s.logg.Info(s.logg.WithField(ctx, "delivery_id", delivery.Ref()), "delivery.created")
	return delivery, nil
}

func (s *service) Cancel(ctx context.Context, in CancelInput) (*uber.Delivery, error) {
	deliveryID := strings.TrimSpace(in.DeliveryID)
	if deliveryID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id is required")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = DefaultCancelReason
	}
	ctx = s.logg.WithField(ctx, "delivery_id", deliveryID)

	key, err := idempotency.Derive(idempotency.PrefixDeliveryCancel, cancelKey{DeliveryID: deliveryID, Reason: reason})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "derive cancel key")
	}

	result, err := s.gateway.Cancel(ctx, deliveryID, uber.CancelRequest{Reason: reason},
		uber.CallOptions{IdempotencyKey: key, Retries: cancelRetries})
	if err != nil {
		return nil, uber.APIError("delivery cancel", err)
	}
	if result == nil {
		result = &uber.Delivery{}
	}
	if result.Ref() == "" {
		result.DeliveryID = deliveryID
	}
	status := uber.NormalizeStatus(result.Status)
	if status == "" {
		status = enums.DeliveryStatusCanceled
		result.Status = status
	}

	ref := result.Ref()
	updated, err := s.repo.UpdateByDeliveryID(ctx, ref, Fields{Status: &status})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist delivery status")
	}
	if updated > 0 {
		s.cascadeCancel(ctx, ref, status)
	}
	return result, nil
}

// cascadeCancel moves the linked order to FAILED or CANCELED. Failures are
// logged only; the courier side is already canceled.
func (s *service) cascadeCancel(ctx context.Context, deliveryID, status string) {
	record, err := s.repo.FindByDeliveryID(ctx, deliveryID)
	if err != nil {
		s.logg.Warn(ctx, "delivery.cancel_order_lookup_failed")
		return
	}
	target := enums.OrderStatusCanceled
	if status == enums.DeliveryStatusFailed {
		target = enums.OrderStatusFailed
	}
	if _, err := s.orders.UpdateStatus(ctx, record.OrderID, target); err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, record.OrderID.String()), "delivery.cancel_order_update_failed")
	}
}

func (s *service) Status(ctx context.Context, deliveryID string) (*uber.Delivery, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id is required")
	}

	delivery, err := s.gateway.Status(ctx, deliveryID)
	if err != nil {
		return nil, uber.APIError("delivery status", err)
	}

	fields := fieldsFromDelivery(delivery)
	fields.DeliveryID = nil
	fields.EstimateID = nil
	if _, err := s.repo.UpdateByDeliveryID(ctx, deliveryID, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist delivery status")
	}
	return delivery, nil
}

func fieldsFromDelivery(d *uber.Delivery) Fields {
	var f Fields
	if ref := d.Ref(); ref != "" {
		f.DeliveryID = &ref
	}
	if status := uber.NormalizeStatus(d.Status); status != "" {
		f.Status = &status
	}
	if link := d.TrackingLink(); link != "" {
		f.TrackingURL = &link
	}
	if d.QuoteID != "" {
		quoteID := d.QuoteID
		f.EstimateID = &quoteID
	}
	f.FeeTotal = d.FeeAmount()
	if currency := d.FeeCurrency(); currency != "" {
		f.Currency = &currency
	}
	return f
}

// storedDelivery renders the persisted delivery in the courier response shape.
func storedDelivery(order *models.Order) *uber.Delivery {
	d := order.Delivery
	currency := order.Currency
	if d.Currency != nil && *d.Currency != "" {
		currency = *d.Currency
	}
	out := &uber.Delivery{
		ID:         *d.DeliveryID,
		DeliveryID: *d.DeliveryID,
		Status:     *d.Status,
		Currency:   currency,
	}
	if d.TrackingURL != nil {
		out.TrackingURL = *d.TrackingURL
	}
	if d.EstimateID != nil {
		out.QuoteID = *d.EstimateID
	}
	if d.FeeTotal != nil {
		out.Total = &uber.Money{Amount: *d.FeeTotal, Currency: currency}
	}
	return out
}
