package uberwebhook

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/misterfood-backend/internal/deliveries"
	"github.com/angelmondragon/misterfood-backend/internal/orders"
	"github.com/angelmondragon/misterfood-backend/internal/webhooks"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/metrics"
	"github.com/angelmondragon/misterfood-backend/pkg/uber"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Deliveries        deliveries.Repository
	Orders            orders.Repository
	Ledger            webhooks.Ledger
	TransactionRunner txRunner
	Secret            string
	Metrics           *metrics.OrderFlowMetrics
	Logger            *logger.Logger
}

// Service reconciles delivery records and orders with courier events.
type Service struct {
	deliveries deliveries.Repository
	orders     orders.Repository
	ledger     webhooks.Ledger
	txRunner   txRunner
	secret     string
	metrics    *metrics.OrderFlowMetrics
	logg       *logger.Logger
}

// Result describes what happened to one delivered event.
type Result struct {
	EventID    string
	Type       string
	DeliveryID string
	OrderID    *uuid.UUID
	Status     string
	Duplicate  bool
	Ignored    bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Deliveries == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "deliveries repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook ledger required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		deliveries: params.Deliveries,
		orders:     params.Orders,
		ledger:     params.Ledger,
		txRunner:   params.TransactionRunner,
		secret:     strings.TrimSpace(params.Secret),
		metrics:    params.Metrics,
		logg:       logg,
	}, nil
}

// HandleWebhook verifies and records a courier event, then mirrors it onto
// the delivery row and the order. The signature is only checked when both a
// secret and a signature are present.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*Result, error) {
	signature = strings.TrimSpace(signature)
	if s.secret != "" && signature != "" {
		if err := uber.VerifySignature(body, signature, s.secret); err != nil {
			s.metrics.IncWebhookEvent(uber.Provider, "", metrics.OutcomeRejected)
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid uber signature")
		}
	}

	event, err := Extract(body)
	if err != nil {
		s.metrics.IncWebhookEvent(uber.Provider, "", metrics.OutcomeRejected)
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid uber payload")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":    event.LedgerID,
		"event_type":  event.EventType,
		"delivery_id": event.DeliveryID,
	})
	result := &Result{
		EventID:    event.LedgerID,
		Type:       event.EventType,
		DeliveryID: event.DeliveryID,
		Status:     event.Status,
	}

	if event.DeliveryID == "" && event.OrderRef == "" && event.EnvelopeRef == "" {
		s.metrics.IncWebhookEvent(uber.Provider, event.EventType, metrics.OutcomeIgnored)
		s.logg.Info(ctx, "uber.webhook_without_reference")
		result.Ignored = true
		return result, nil
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ledger.WithTx(tx).Record(ctx, event.LedgerID, enums.WebhookProviderUber, event.EventType); err != nil {
			return err
		}
		orderID, err := s.apply(ctx, tx, event)
		if err != nil {
			return err
		}
		result.OrderID = orderID
		return nil
	})
	if errors.Is(err, webhooks.ErrDuplicateEvent) {
		s.metrics.IncWebhookEvent(uber.Provider, event.EventType, metrics.OutcomeDuplicate)
		s.logg.Info(ctx, "uber.webhook_duplicate")
		result.Duplicate = true
		return result, nil
	}
	if err != nil {
		s.metrics.IncWebhookEvent(uber.Provider, event.EventType, metrics.OutcomeError)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "process uber event")
	}

	s.metrics.IncWebhookEvent(uber.Provider, event.EventType, metrics.OutcomeApplied)
	if event.Status == enums.DeliveryStatusFailed || event.Status == enums.DeliveryStatusCanceled {
		s.metrics.IncAlert("delivery_" + event.Status)
		warnCtx := ctx
		if result.OrderID != nil {
			warnCtx = s.logg.WithOrderID(ctx, result.OrderID.String())
		}
		s.logg.Warn(s.logg.WithField(warnCtx, "status", event.Status), "uber.delivery_not_completed")
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, event *Normalized) (*uuid.UUID, error) {
	deliveryRepo := s.deliveries.WithTx(tx)
	orderRepo := s.orders.WithTx(tx)

	orderID, err := s.resolveOrder(ctx, deliveryRepo, orderRepo, event)
	if err != nil {
		return nil, err
	}

	fields := fieldsFromEvent(event)
	if event.DeliveryID != "" && !fields.Empty() {
		if _, err := deliveryRepo.UpdateByDeliveryID(ctx, event.DeliveryID, fields); err != nil {
			return nil, err
		}
	}
	if orderID == nil {
		return nil, nil
	}
	if !fields.Empty() {
		if _, err := deliveryRepo.UpsertByOrderID(ctx, *orderID, fields); err != nil {
			return nil, err
		}
	}

	// delivered confirms PAID in place; canceled and failed only leave PAID.
	target, ok := enums.OrderStatusForDelivery(event.Status)
	if !ok {
		return orderID, nil
	}
	rows, err := orderRepo.UpdateStatusIfCurrent(ctx, *orderID, enums.OrderStatusPaid, target)
	orderCtx := s.logg.WithOrderID(ctx, orderID.String())
	switch {
	case err != nil:
		s.logg.Error(orderCtx, "uber.order_status_update_failed", err)
	case rows == 0:
		s.logg.Info(s.logg.WithField(orderCtx, "target", target.String()), "uber.order_not_paid_skipped")
	}
	return orderID, nil
}

// resolveOrder picks the order the event belongs to: the delivery payload's
// external reference, then the stored delivery row, then the envelope. Only
// references to existing orders count.
func (s *Service) resolveOrder(ctx context.Context, deliveryRepo deliveries.Repository, orderRepo orders.Repository, event *Normalized) (*uuid.UUID, error) {
	candidates := make([]string, 0, 3)
	if event.OrderRef != "" {
		candidates = append(candidates, event.OrderRef)
	}
	if event.DeliveryID != "" {
		stored, err := deliveryRepo.FindByDeliveryID(ctx, event.DeliveryID)
		switch {
		case err == nil:
			candidates = append(candidates, stored.OrderID.String())
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}
	if event.EnvelopeRef != "" {
		candidates = append(candidates, event.EnvelopeRef)
	}

	for _, candidate := range candidates {
		id, err := uuid.Parse(candidate)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "order_ref", candidate), "uber.invalid_order_ref")
			continue
		}
		if _, err := orderRepo.FindByID(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logg.Warn(s.logg.WithField(ctx, "order_ref", candidate), "uber.unknown_order_ref")
				continue
			}
			return nil, err
		}
		return &id, nil
	}
	return nil, nil
}

func fieldsFromEvent(event *Normalized) deliveries.Fields {
	var fields deliveries.Fields
	if event.DeliveryID != "" {
		fields.DeliveryID = &event.DeliveryID
	}
	if event.Status != "" {
		fields.Status = &event.Status
	}
	if event.TrackingURL != "" {
		fields.TrackingURL = &event.TrackingURL
	}
	if event.QuoteID != "" {
		fields.EstimateID = &event.QuoteID
	}
	if event.FeeTotal != nil {
		fields.FeeTotal = event.FeeTotal
	}
	if event.Currency != "" {
		fields.Currency = &event.Currency
	}
	fields.PickupAtMs = event.PickupAtMs
	return fields
}
