package controllers

import (
	"net/http"

	"github.com/angelmondragon/misterfood-backend/api/responses"
	"github.com/angelmondragon/misterfood-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/misterfood-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/idempotency"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
)

// Checkout creates the order and its payment session for a storefront cart.
// An Idempotency-Key header, when sent, must equal the key derived from the
// body.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.Input
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithMerchantID(ctx, payload.MerchantID.String())
		}

		result, err := svc.Execute(ctx, payload, r.Header.Get(idempotency.HeaderName))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
