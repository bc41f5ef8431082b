package enums

// WebhookProvider tags rows in the webhook_events ledger.
type WebhookProvider string

const (
	WebhookProviderStripe WebhookProvider = "stripe"
	WebhookProviderUber   WebhookProvider = "uber_direct"
)

func (p WebhookProvider) String() string {
	return string(p)
}
