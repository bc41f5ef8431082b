package enums

import "fmt"

// FulfillmentMode is how the customer receives the order.
type FulfillmentMode string

const (
	FulfillmentModePickup   FulfillmentMode = "pickup"
	FulfillmentModeDelivery FulfillmentMode = "delivery"
)

var validFulfillmentModes = []FulfillmentMode{
	FulfillmentModePickup,
	FulfillmentModeDelivery,
}

func (m FulfillmentMode) String() string {
	return string(m)
}

func (m FulfillmentMode) IsValid() bool {
	for _, candidate := range validFulfillmentModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseFulfillmentMode converts the raw string to FulfillmentMode.
func ParseFulfillmentMode(value string) (FulfillmentMode, error) {
	for _, candidate := range validFulfillmentModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment mode %q", value)
}
