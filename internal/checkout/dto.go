package checkout

import (
	"strings"

	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Fulfillment modes accepted in the extras block.
const (
	ModePickup   = "pickup"
	ModeDelivery = "delivery"
)

// Upper bounds keep every line total and the order total well inside int64.
const (
	MaxItems      = 100
	MaxUnitAmount = 99_999_999
	MaxQuantity   = 999
	MaxFeeAmount  = 99_999_999
)

// ItemInput is one cart line in minor units.
type ItemInput struct {
	Name       string `json:"name" validate:"required,max=200"`
	UnitAmount int64  `json:"unitAmount" validate:"gt=0,lte=99999999"`
	Quantity   int64  `json:"quantity" validate:"gt=0,lte=999"`
}

// Extras carries the fee breakdown and fulfillment choice.
type Extras struct {
	Mode             string `json:"mode,omitempty" validate:"omitempty,oneof=pickup delivery"`
	Note             string `json:"note,omitempty" validate:"max=500"`
	ServiceFeeMinor  int64  `json:"serviceFeeMinor,omitempty" validate:"gte=0,lte=99999999"`
	DeliveryFeeMinor int64  `json:"deliveryFeeMinor,omitempty" validate:"gte=0,lte=99999999"`
	TipMinor         int64  `json:"tipMinor,omitempty" validate:"gte=0,lte=99999999"`
}

// Input is the checkout request body.
type Input struct {
	MerchantID    uuid.UUID   `json:"merchantId" validate:"required"`
	Currency      string      `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Items         []ItemInput `json:"items" validate:"required,min=1,max=100,dive"`
	Extras        *Extras     `json:"extras,omitempty" validate:"omitempty"`
	CustomerEmail string      `json:"customerEmail,omitempty" validate:"omitempty,email"`
}

// Result is what the storefront needs to confirm the payment client side.
type Result struct {
	ClientSecret string    `json:"clientSecret"`
	OrderID      uuid.UUID `json:"orderId"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
}

func (in Input) extras() Extras {
	if in.Extras == nil {
		return Extras{}
	}
	ex := *in.Extras
	ex.Mode = strings.ToLower(strings.TrimSpace(ex.Mode))
	ex.Note = strings.TrimSpace(ex.Note)
	return ex
}

func (in Input) orderItems() []models.OrderItem {
	return lo.Map(in.Items, func(item ItemInput, _ int) models.OrderItem {
		return models.OrderItem{
			Name:       strings.TrimSpace(item.Name),
			UnitAmount: item.UnitAmount,
			Quantity:   item.Quantity,
		}
	})
}

// validate repeats the body rules the service depends on, for callers that
// bypass the HTTP validator.
func (in Input) validate() error {
	if in.MerchantID == uuid.Nil {
		return validationError("merchantId", "is required")
	}
	if len(in.Items) == 0 {
		return validationError("items", "must contain at least one item")
	}
	if len(in.Items) > MaxItems {
		return validationError("items", "must contain at most 100 items")
	}
	for _, item := range in.Items {
		if strings.TrimSpace(item.Name) == "" {
			return validationError("items.name", "is required")
		}
		if item.UnitAmount <= 0 || item.Quantity <= 0 {
			return validationError("items", "amounts and quantities must be positive")
		}
		if item.UnitAmount > MaxUnitAmount || item.Quantity > MaxQuantity {
			return validationError("items", "amount or quantity too large")
		}
	}
	ex := in.extras()
	if ex.ServiceFeeMinor < 0 || ex.DeliveryFeeMinor < 0 || ex.TipMinor < 0 {
		return validationError("extras", "fees must not be negative")
	}
	if ex.ServiceFeeMinor > MaxFeeAmount || ex.DeliveryFeeMinor > MaxFeeAmount || ex.TipMinor > MaxFeeAmount {
		return validationError("extras", "fee too large")
	}
	if ex.Mode != "" && ex.Mode != ModePickup && ex.Mode != ModeDelivery {
		return validationError("extras.mode", "must be pickup or delivery")
	}
	if len([]rune(ex.Note)) > 500 {
		return validationError("extras.note", "must be at most 500 characters")
	}
	return nil
}

func nascentDelivery(currency string, deliveryFee int64) *models.Delivery {
	delivery := &models.Delivery{
		Provider: enums.DeliveryProviderUberDirect,
		Currency: &currency,
	}
	if deliveryFee > 0 {
		delivery.FeeTotal = &deliveryFee
	}
	return delivery
}

func validationError(path, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid checkout payload").
		WithDetails([]types.ValidationIssue{{Path: path, Code: "invalid", Message: message}})
}
