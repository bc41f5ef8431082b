package helpers

import (
	"strconv"
	"strings"

	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/idempotency"
	"github.com/samber/lo"
)

// Fees are the optional charges added on top of the item subtotal.
type Fees struct {
	ServiceFee  int64
	DeliveryFee int64
	Tip         int64
}

// Totals captures the pre-calculated amounts of one checkout, in minor units.
type Totals struct {
	Subtotal    int64
	ServiceFee  int64
	DeliveryFee int64
	Tip         int64
	AmountTotal int64
}

// ComputeTotals sums the item lines and adds the fees.
func ComputeTotals(items []models.OrderItem, fees Fees) Totals {
	subtotal := lo.SumBy(items, func(item models.OrderItem) int64 { return item.LineTotal() })
	return Totals{
		Subtotal:    subtotal,
		ServiceFee:  fees.ServiceFee,
		DeliveryFee: fees.DeliveryFee,
		Tip:         fees.Tip,
		AmountTotal: subtotal + fees.ServiceFee + fees.DeliveryFee + fees.Tip,
	}
}

// ApplicationFee is the platform commission on the item subtotal, rounded down.
func ApplicationFee(subtotal, commissionBps int64) int64 {
	if subtotal <= 0 || commissionBps <= 0 {
		return 0
	}
	return subtotal * commissionBps / 10000
}

// NormalizeCurrency lowercases the ISO code, defaulting to eur.
func NormalizeCurrency(currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return "eur"
	}
	return currency
}

// KeyPayload is the canonical body the checkout idempotency key is derived from.
type KeyPayload struct {
	MerchantID  string                 `json:"merchantId"`
	Currency    string                 `json:"currency"`
	AmountTotal int64                  `json:"amountTotal"`
	Items       []idempotency.LineItem `json:"items"`
}

// BuildKeyPayload normalizes the lines so reordered carts derive the same key.
func BuildKeyPayload(merchantID, currency string, amountTotal int64, items []models.OrderItem) KeyPayload {
	lines := lo.Map(items, func(item models.OrderItem, _ int) idempotency.LineItem {
		return idempotency.LineItem{Name: item.Name, UnitAmount: item.UnitAmount, Quantity: item.Quantity}
	})
	return KeyPayload{
		MerchantID:  merchantID,
		Currency:    currency,
		AmountTotal: amountTotal,
		Items:       idempotency.SortLineItems(lines),
	}
}

// IntentMetadata is attached to the payment intent so webhooks can find the
// order and support can read the breakdown.
func IntentMetadata(orderID, merchantID string, totals Totals, mode, note string) map[string]string {
	metadata := map[string]string{
		"orderId":          orderID,
		"merchantId":       merchantID,
		"subtotalMinor":    strconv.FormatInt(totals.Subtotal, 10),
		"serviceFeeMinor":  strconv.FormatInt(totals.ServiceFee, 10),
		"deliveryFeeMinor": strconv.FormatInt(totals.DeliveryFee, 10),
		"tipMinor":         strconv.FormatInt(totals.Tip, 10),
	}
	if mode != "" {
		metadata["fulfillmentMode"] = mode
	}
	if note != "" {
		metadata["note"] = note
	}
	return metadata
}
