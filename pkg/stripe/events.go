package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

// MetadataOrderID is the intent metadata key holding the local order id.
const MetadataOrderID = "orderId"

// DecodePaymentIntent extracts the payment intent carried by a payment_intent.* event.
func DecodePaymentIntent(event stripe.Event) (*stripe.PaymentIntent, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	return &intent, nil
}

// DecodeCharge extracts the charge carried by a charge.* event. The intent
// reference may arrive as an id or as an expanded object.
func DecodeCharge(event stripe.Event) (*stripe.Charge, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return nil, fmt.Errorf("decode charge: %w", err)
	}
	return &charge, nil
}

// OrderIDFromIntent returns the order id stored in intent metadata.
func OrderIDFromIntent(intent *stripe.PaymentIntent) string {
	if intent == nil || intent.Metadata == nil {
		return ""
	}
	return intent.Metadata[MetadataOrderID]
}

// SettledAmount prefers the received amount over the requested one.
func SettledAmount(intent *stripe.PaymentIntent) int64 {
	if intent == nil {
		return 0
	}
	if intent.AmountReceived > 0 {
		return intent.AmountReceived
	}
	return intent.Amount
}

// FailureMessage returns the last payment error message, if any.
func FailureMessage(intent *stripe.PaymentIntent) string {
	if intent == nil || intent.LastPaymentError == nil {
		return ""
	}
	return intent.LastPaymentError.Msg
}

// ChargeIntentID returns the payment intent id referenced by a charge.
func ChargeIntentID(charge *stripe.Charge) string {
	if charge == nil || charge.PaymentIntent == nil {
		return ""
	}
	return charge.PaymentIntent.ID
}
