package helpers

import (
	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/google/uuid"
)

// ValidateMerchant ensures the merchant exists and can receive destination transfers.
func ValidateMerchant(merchant *models.Merchant) error {
	if merchant == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
	}
	if !merchant.Onboarded() {
		return pkgerrors.New(pkgerrors.CodeConflict, "merchant payment account not onboarded").
			WithDetails(map[string]any{"merchantId": merchant.ID.String()})
	}
	return nil
}

// ValidateReplay confirms a stored order was created from the same payload.
func ValidateReplay(order *models.Order, merchantID uuid.UUID, currency string, amountTotal int64) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "replayed order missing")
	}
	if order.MerchantID != merchantID || order.Currency != currency || order.AmountTotal != amountTotal {
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotent request does not match the original").
			WithDetails(map[string]any{"orderId": order.ID.String()})
	}
	return nil
}

// ValidateTotals rejects checkouts with nothing to charge.
func ValidateTotals(totals Totals) error {
	if totals.AmountTotal <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]any{"amountTotal": totals.AmountTotal})
	}
	return nil
}
