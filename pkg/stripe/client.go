package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/misterfood-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	// Provider is the label used in gateway error details and metrics.
	Provider = "stripe"

	// SignatureHeader carries the webhook signature.
	SignatureHeader = "Stripe-Signature"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API plus env-specific metadata.
type Client struct {
	environment   string
	signingSecret string
	country       string
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		environment:   env,
		signingSecret: signingSecret,
		country:       strings.ToUpper(strings.TrimSpace(cfg.ConnectCountry)),
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// PaymentIntentInput describes a destination charge for one order.
type PaymentIntentInput struct {
	Amount               int64
	Currency             string
	ReceiptEmail         string
	Metadata             map[string]string
	ApplicationFeeAmount int64
	DestinationAccount   string
	IdempotencyKey       string
}

// PaymentIntent is the subset of the provider intent the orchestrators need.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       string
}

// CreatePaymentIntent creates a destination-charge intent. The idempotency key
// is forwarded so a retried call returns the original intent.
func (c *Client) CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(strings.ToLower(in.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		ApplicationFeeAmount: stripe.Int64(in.ApplicationFeeAmount),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(in.DestinationAccount),
		},
	}
	if email := strings.TrimSpace(in.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, GatewayError("create payment intent", err)
	}
	return fromStripeIntent(intent), nil
}

// RetrievePaymentIntent loads an existing intent by id.
func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, GatewayError("retrieve payment intent", err)
	}
	return fromStripeIntent(intent), nil
}

// AccountInput identifies the merchant a connected account is opened for.
type AccountInput struct {
	MerchantID string
	Email      string
}

// CreateExpressAccount opens an express connected account able to take card
// payments and receive transfers.
func (c *Client) CreateExpressAccount(ctx context.Context, in AccountInput) (string, error) {
	params := &stripe.AccountParams{
		Type:         stripe.String(string(stripe.AccountTypeExpress)),
		Country:      stripe.String(c.country),
		BusinessType: stripe.String(string(stripe.AccountBusinessTypeIndividual)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		params.Email = stripe.String(email)
	}
	if in.MerchantID != "" {
		params.AddMetadata("merchantId", in.MerchantID)
		params.SetIdempotencyKey("account-" + in.MerchantID)
	}
	params.Context = ctx

	acct, err := account.New(params)
	if err != nil {
		return "", GatewayError("create connected account", err)
	}
	return acct.ID, nil
}

// CreateAccountLink returns a hosted onboarding URL for accountID.
func (c *Client) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := accountlink.New(params)
	if err != nil {
		return "", GatewayError("create account link", err)
	}
	return link.URL, nil
}

// ConstructEvent verifies the signature header and decodes the event.
func (c *Client) ConstructEvent(payload []byte, header string) (stripe.Event, error) {
	if strings.TrimSpace(header) == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	event, err := webhook.ConstructEvent(payload, header, c.SigningSecret())
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature")
	}
	return event, nil
}

// GatewayError maps a Stripe API failure to a GATEWAY_ERROR carrying the
// upstream status and message.
func GatewayError(op string, err error) error {
	details := map[string]any{"provider": Provider}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		details["status"] = stripeErr.HTTPStatusCode
		details["body"] = stripeErr.Msg
		if stripeErr.Code != "" {
			details["code"] = string(stripeErr.Code)
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, op).WithDetails(details)
}

func fromStripeIntent(intent *stripe.PaymentIntent) *PaymentIntent {
	if intent == nil {
		return nil
	}
	return &PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     string(intent.Currency),
		Status:       string(intent.Status),
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
