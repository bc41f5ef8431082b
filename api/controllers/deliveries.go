package controllers

import (
	"net/http"

	"github.com/angelmondragon/misterfood-backend/api/responses"
	"github.com/angelmondragon/misterfood-backend/api/validators"
	"github.com/angelmondragon/misterfood-backend/internal/deliveries"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
)

func deliveryServiceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
}

// DeliveryQuote asks the courier for a fee estimate after the eligibility
// gate.
func DeliveryQuote(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			deliveryServiceUnavailable(w, r, logg)
			return
		}

		var payload deliveries.QuoteInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil && payload.OrderID != nil {
			ctx = logg.WithOrderID(ctx, payload.OrderID.String())
		}

		quote, err := svc.Quote(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// DeliveryCreate books a courier for a paid order.
func DeliveryCreate(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			deliveryServiceUnavailable(w, r, logg)
			return
		}

		var payload deliveries.CreateInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, payload.OrderID.String())
		}

		delivery, err := svc.Create(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery)
	}
}

// DeliveryStatus refreshes a delivery from the courier.
func DeliveryStatus(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			deliveryServiceUnavailable(w, r, logg)
			return
		}

		deliveryID, err := requiredParam(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "delivery_id", deliveryID)
		}

		delivery, err := svc.Status(ctx, deliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery)
	}
}

// DeliveryCancel cancels a booked courier. The body is optional.
func DeliveryCancel(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			deliveryServiceUnavailable(w, r, logg)
			return
		}

		deliveryID, err := requiredParam(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload deliveries.CancelInput
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.DeliveryID = deliveryID

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "delivery_id", deliveryID)
		}

		delivery, err := svc.Cancel(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery)
	}
}
