package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, raw := range []string{"PENDING", "PAID", "FAILED", "CANCELED"} {
		got, err := ParseOrderStatus(raw)
		if err != nil || string(got) != raw {
			t.Fatalf("ParseOrderStatus(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseOrderStatus("paid"); err == nil {
		t.Fatal("expected lowercase status to be rejected")
	}
}

func TestParseFulfillmentMode(t *testing.T) {
	if m, err := ParseFulfillmentMode("delivery"); err != nil || m != FulfillmentModeDelivery {
		t.Fatalf("unexpected %q %v", m, err)
	}
	if _, err := ParseFulfillmentMode("drone"); err == nil {
		t.Fatal("expected unknown mode to fail")
	}
}

func TestIsActiveDeliveryStatus(t *testing.T) {
	cases := map[string]bool{
		"":                 false,
		"failed":           false,
		"CANCELED":         false,
		"created":          true,
		"courier_assigned": true,
		"delivered":        true,
	}
	for status, want := range cases {
		if got := IsActiveDeliveryStatus(status); got != want {
			t.Fatalf("IsActiveDeliveryStatus(%q) = %v, want %v", status, got, want)
		}
	}
}

func TestOrderStatusForDelivery(t *testing.T) {
	cases := []struct {
		status string
		want   OrderStatus
		ok     bool
	}{
		{status: "delivered", want: OrderStatusPaid, ok: true},
		{status: "Canceled", want: OrderStatusCanceled, ok: true},
		{status: "failed", want: OrderStatusFailed, ok: true},
		{status: "pickup_complete", ok: false},
	}
	for _, tc := range cases {
		got, ok := OrderStatusForDelivery(tc.status)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("OrderStatusForDelivery(%q) = %q,%v want %q,%v", tc.status, got, ok, tc.want, tc.ok)
		}
	}
}
