package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/misterfood-backend/api/responses"
	"github.com/angelmondragon/misterfood-backend/internal/merchants"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/types"
)

// MerchantOnboarding returns a payment-account onboarding link, creating the
// connected account first when the merchant has none.
func MerchantOnboarding(svc merchants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "merchant service unavailable"))
			return
		}

		merchantID, err := uuidParam(r, "merchantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithMerchantID(ctx, merchantID.String())
		}

		link, err := svc.StartOnboarding(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, link)
	}
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).
			WithDetails([]types.ValidationIssue{{Path: name, Code: "uuid", Message: "must be a valid uuid"}})
	}
	return id, nil
}

func requiredParam(r *http.Request, name string) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, name+" required").
			WithDetails([]types.ValidationIssue{{Path: name, Code: "required", Message: "is required"}})
	}
	return raw, nil
}
