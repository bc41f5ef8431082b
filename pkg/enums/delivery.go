package enums

import "strings"

// DeliveryProviderUberDirect is the only courier integration.
const DeliveryProviderUberDirect = "uber_direct"

// Courier statuses the core reacts to. Anything else is mirrored verbatim.
const (
	DeliveryStatusCreated         = "created"
	DeliveryStatusCourierAssigned = "courier_assigned"
	DeliveryStatusDelivered       = "delivered"
	DeliveryStatusCanceled        = "canceled"
	DeliveryStatusFailed          = "failed"
)

// NormalizeDeliveryStatus lowercases a courier status. Empty stays empty.
func NormalizeDeliveryStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsActiveDeliveryStatus reports whether a delivery with this status still
// counts as dispatched. Failed and canceled deliveries may be re-created.
func IsActiveDeliveryStatus(status string) bool {
	switch NormalizeDeliveryStatus(status) {
	case "", DeliveryStatusFailed, DeliveryStatusCanceled:
		return false
	default:
		return true
	}
}

// OrderStatusForDelivery maps a terminal courier status onto the order.
func OrderStatusForDelivery(status string) (OrderStatus, bool) {
	switch NormalizeDeliveryStatus(status) {
	case DeliveryStatusDelivered:
		return OrderStatusPaid, true
	case DeliveryStatusCanceled:
		return OrderStatusCanceled, true
	case DeliveryStatusFailed:
		return OrderStatusFailed, true
	default:
		return "", false
	}
}
