package uberwebhook

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/misterfood-backend/pkg/uber"
)

const ledgerPrefix = "uber:"

// Envelope is the outer courier webhook body. The delivery itself may be the
// body, data, data.delivery or resource depending on the event type.
type Envelope struct {
	EventID             string          `json:"event_id"`
	ID                  string          `json:"id"`
	EventType           string          `json:"event_type"`
	Kind                string          `json:"kind"`
	Status              string          `json:"status"`
	DeliveryID          string          `json:"delivery_id"`
	QuoteID             string          `json:"quote_id"`
	ExternalReferenceID string          `json:"external_reference_id"`
	Meta                *envelopeMeta   `json:"meta"`
	Data                json.RawMessage `json:"data"`
	Resource            json.RawMessage `json:"resource"`
}

type envelopeMeta struct {
	ResourceID string `json:"resource_id"`
}

// Payload is the delivery object carried by an event.
type Payload struct {
	ID                  string          `json:"id"`
	DeliveryID          string          `json:"delivery_id"`
	QuoteID             string          `json:"quote_id"`
	Status              string          `json:"status"`
	TrackingURL         string          `json:"tracking_url"`
	Tracking            *uber.Tracking  `json:"tracking"`
	ExternalReference   string          `json:"external_reference"`
	ExternalReferenceID string          `json:"external_reference_id"`
	ExternalOrderID     string          `json:"external_order_id"`
	Fee                 *uber.Money     `json:"fee"`
	Total               *uber.Money     `json:"total"`
	Currency            string          `json:"currency"`
	PickupAtMs          json.RawMessage `json:"pickup_at_ms"`
	PickupAt            json.RawMessage `json:"pickup_at"`
	PickupTime          json.RawMessage `json:"pickup_time"`
}

// Normalized is the flattened view the reconciliation works on.
type Normalized struct {
	LedgerID    string
	EventType   string
	DeliveryID  string
	OrderRef    string
	EnvelopeRef string
	Status      string
	TrackingURL string
	QuoteID     string
	FeeTotal    *int64
	Currency    string
	PickupAtMs  *int64
}

// Extract decodes the body and normalizes whichever delivery shape it carries.
// An empty body decodes as an empty envelope.
func Extract(body []byte) (*Normalized, error) {
	var env Envelope
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, err
		}
	}

	payload, nested, err := extractPayload(body, env)
	if err != nil {
		return nil, err
	}

	n := &Normalized{
		EventType:   firstNonEmpty(env.EventType, env.Kind, "delivery_status"),
		Status:      uber.NormalizeStatus(firstNonEmpty(payload.Status, env.Status)),
		TrackingURL: payload.trackingURL(),
		QuoteID:     firstNonEmpty(payload.QuoteID, env.QuoteID),
		OrderRef:    firstNonEmpty(payload.ExternalReference, payload.ExternalReferenceID, payload.ExternalOrderID),
		EnvelopeRef: strings.TrimSpace(env.ExternalReferenceID),
		PickupAtMs:  payload.pickupAtMs(),
	}
	n.DeliveryID = firstNonEmpty(payload.DeliveryID, payload.ID, env.DeliveryID)
	if n.DeliveryID == "" && env.Meta != nil {
		n.DeliveryID = strings.TrimSpace(env.Meta.ResourceID)
	}
	amountHolder := &uber.Delivery{Fee: payload.Fee, Total: payload.Total, Currency: payload.Currency}
	n.FeeTotal = amountHolder.FeeAmount()
	n.Currency = amountHolder.FeeCurrency()
	n.LedgerID = ledgerID(body, env, nested)
	return n, nil
}

// extractPayload tries data.delivery, data, resource and finally the body
// itself. nested reports whether the delivery was found inside the envelope.
func extractPayload(body []byte, env Envelope) (Payload, bool, error) {
	if isObject(env.Data) {
		var wrapper struct {
			Delivery json.RawMessage `json:"delivery"`
		}
		if err := json.Unmarshal(env.Data, &wrapper); err != nil {
			return Payload{}, false, err
		}
		source := env.Data
		if isObject(wrapper.Delivery) {
			source = wrapper.Delivery
		}
		var p Payload
		if err := json.Unmarshal(source, &p); err != nil {
			return Payload{}, false, err
		}
		return p, true, nil
	}
	if isObject(env.Resource) {
		var p Payload
		if err := json.Unmarshal(env.Resource, &p); err != nil {
			return Payload{}, false, err
		}
		return p, true, nil
	}
	var p Payload
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &p); err != nil {
			return Payload{}, false, err
		}
	}
	return p, false, nil
}

// ledgerID keys the dedup ledger. The top-level id only names the event when
// the delivery is carried elsewhere (nested payload or a separate
// delivery_id); in the direct shape it is the delivery id and is shared by
// every status callback of that delivery, so the body hash is used instead.
func ledgerID(body []byte, env Envelope, nested bool) string {
	if id := strings.TrimSpace(env.EventID); id != "" {
		return ledgerPrefix + id
	}
	id := strings.TrimSpace(env.ID)
	deliveryID := strings.TrimSpace(env.DeliveryID)
	if id != "" && (nested || (deliveryID != "" && deliveryID != id)) {
		return ledgerPrefix + id
	}
	sum := sha256.Sum256(body)
	return ledgerPrefix + hex.EncodeToString(sum[:])
}

func (p Payload) trackingURL() string {
	if p.TrackingURL != "" {
		return p.TrackingURL
	}
	if p.Tracking != nil {
		return p.Tracking.URL
	}
	return ""
}

// pickupAtMs accepts epoch milliseconds as a number or numeric string, or an
// RFC 3339 timestamp.
func (p Payload) pickupAtMs() *int64 {
	for _, raw := range []json.RawMessage{p.PickupAtMs, p.PickupAt, p.PickupTime} {
		if v, ok := parseMillis(raw); ok {
			return &v
		}
	}
	return nil
}

func parseMillis(raw json.RawMessage) (int64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false
	}
	var num float64
	if err := json.Unmarshal(trimmed, &num); err == nil {
		if math.IsNaN(num) || math.IsInf(num, 0) {
			return 0, false
		}
		return int64(math.Round(num)), true
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return 0, false
	}
	text = strings.TrimSpace(text)
	if num, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(num) && !math.IsInf(num, 0) {
		return int64(math.Round(num)), true
	}
	if ts, err := time.Parse(time.RFC3339, text); err == nil {
		return ts.UnixMilli(), true
	}
	return 0, false
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
