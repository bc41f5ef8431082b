package helpers

import (
	"testing"

	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/idempotency"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

func TestComputeTotals(t *testing.T) {
	t.Parallel()
	items := []models.OrderItem{
		{Name: "Menu Tacos", UnitAmount: 1299, Quantity: 1},
		{Name: "Churros", UnitAmount: 450, Quantity: 2},
	}

	totals := ComputeTotals(items, Fees{ServiceFee: 99, DeliveryFee: 350, Tip: 200})
	if totals.Subtotal != 2199 {
		t.Fatalf("expected subtotal 2199, got %d", totals.Subtotal)
	}
	if totals.AmountTotal != 2199+99+350+200 {
		t.Fatalf("unexpected amount total %d", totals.AmountTotal)
	}
}

func TestComputeTotalsMatchesSumForRandomCarts(t *testing.T) {
	t.Parallel()
	faker := gofakeit.New(42)
	for range 50 {
		var items []models.OrderItem
		var want int64
		for range faker.IntRange(1, 6) {
			item := models.OrderItem{
				Name:       faker.Dessert(),
				UnitAmount: int64(faker.IntRange(1, 5000)),
				Quantity:   int64(faker.IntRange(1, 5)),
			}
			want += item.UnitAmount * item.Quantity
			items = append(items, item)
		}
		fees := Fees{
			ServiceFee:  int64(faker.IntRange(0, 300)),
			DeliveryFee: int64(faker.IntRange(0, 800)),
			Tip:         int64(faker.IntRange(0, 500)),
		}
		want += fees.ServiceFee + fees.DeliveryFee + fees.Tip

		if got := ComputeTotals(items, fees).AmountTotal; got != want {
			t.Fatalf("expected amount %d, got %d", want, got)
		}
	}
}

func TestApplicationFee(t *testing.T) {
	t.Parallel()
	cases := []struct {
		subtotal, bps, want int64
	}{
		{1299, 1000, 129},
		{1000, 250, 25},
		{999, 1, 0},
		{0, 1000, 0},
		{1500, 0, 0},
	}
	for _, tc := range cases {
		if got := ApplicationFee(tc.subtotal, tc.bps); got != tc.want {
			t.Fatalf("ApplicationFee(%d, %d) = %d, want %d", tc.subtotal, tc.bps, got, tc.want)
		}
	}
}

func TestBuildKeyPayloadIgnoresItemOrder(t *testing.T) {
	t.Parallel()
	merchantID := uuid.NewString()
	a := []models.OrderItem{
		{Name: "Tacos", UnitAmount: 1299, Quantity: 1},
		{Name: "Agua fresca", UnitAmount: 350, Quantity: 2},
	}
	b := []models.OrderItem{a[1], a[0]}

	keyA, err := idempotency.Derive(idempotency.PrefixCheckout, BuildKeyPayload(merchantID, "eur", 1999, a))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	keyB, err := idempotency.Derive(idempotency.PrefixCheckout, BuildKeyPayload(merchantID, "eur", 1999, b))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if keyA != keyB {
		t.Fatalf("expected identical keys, got %s and %s", keyA, keyB)
	}
}

func TestValidateMerchant(t *testing.T) {
	t.Parallel()
	if err := ValidateMerchant(nil); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := ValidateMerchant(&models.Merchant{ID: uuid.New()}); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	acct := "acct_123"
	if err := ValidateMerchant(&models.Merchant{ID: uuid.New(), StripeAccountID: &acct}); err != nil {
		t.Fatalf("expected onboarded merchant to pass, got %v", err)
	}
}

func TestValidateReplay(t *testing.T) {
	t.Parallel()
	merchantID := uuid.New()
	order := &models.Order{ID: uuid.New(), MerchantID: merchantID, Currency: "eur", AmountTotal: 1299}

	if err := ValidateReplay(order, merchantID, "eur", 1299); err != nil {
		t.Fatalf("expected matching replay, got %v", err)
	}
	if err := ValidateReplay(order, merchantID, "eur", 1300); !pkgerrors.IsCode(err, pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
	if err := ValidateReplay(order, uuid.New(), "eur", 1299); !pkgerrors.IsCode(err, pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestValidateTotalsRejectsZero(t *testing.T) {
	t.Parallel()
	if err := ValidateTotals(Totals{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIntentMetadata(t *testing.T) {
	t.Parallel()
	md := IntentMetadata("o1", "m1", Totals{Subtotal: 1299, Tip: 100}, "delivery", "")
	if md["orderId"] != "o1" || md["subtotalMinor"] != "1299" || md["tipMinor"] != "100" {
		t.Fatalf("unexpected metadata %v", md)
	}
	if md["fulfillmentMode"] != "delivery" {
		t.Fatalf("expected fulfillment mode, got %v", md)
	}
	if _, ok := md["note"]; ok {
		t.Fatalf("empty note must be omitted")
	}
}
