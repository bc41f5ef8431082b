package uber

import "strings"

// Location is a WGS84 coordinate pair in the courier wire format.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Stop is a pickup or dropoff point in the courier wire format.
type Stop struct {
	Address      string    `json:"address"`
	Phone        string    `json:"phone,omitempty"`
	Name         string    `json:"name,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
	PostalCode   string    `json:"postal_code,omitempty"`
	Location     *Location `json:"location,omitempty"`
}

// Item is one manifest line.
type Item struct {
	Title    string   `json:"title"`
	Quantity int64    `json:"quantity"`
	Price    *int64   `json:"price,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
}

// Manifest lists what the courier picks up.
type Manifest struct {
	Items []Item `json:"items"`
}

// QuoteRequest asks the courier for a fee estimate.
type QuoteRequest struct {
	ExternalStoreID     string   `json:"external_store_id"`
	Pickup              Stop     `json:"pickup"`
	Dropoff             Stop     `json:"dropoff"`
	Manifest            Manifest `json:"manifest"`
	ExternalReferenceID string   `json:"external_reference_id,omitempty"`
	Currency            string   `json:"currency,omitempty"`
}

// CreateRequest books a courier.
type CreateRequest struct {
	ExternalStoreID     string   `json:"external_store_id"`
	QuoteID             string   `json:"quote_id,omitempty"`
	Pickup              Stop     `json:"pickup"`
	Dropoff             Stop     `json:"dropoff"`
	Manifest            Manifest `json:"manifest"`
	ExternalReferenceID string   `json:"external_reference_id,omitempty"`
	ExternalOrderID     string   `json:"external_order_id,omitempty"`
	Currency            string   `json:"currency,omitempty"`
}

// CancelRequest cancels a booked courier.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Money is a fee amount in minor units. The courier uses either currency or
// currency_code depending on the endpoint.
type Money struct {
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency,omitempty"`
	CurrencyCode string `json:"currency_code,omitempty"`
}

// Tracking holds the nested tracking link some payloads carry.
type Tracking struct {
	URL string `json:"url,omitempty"`
}

// Quote is the courier quote response.
type Quote struct {
	QuoteID  string `json:"quote_id,omitempty"`
	ID       string `json:"id,omitempty"`
	Total    *Money `json:"total,omitempty"`
	Fee      *Money `json:"fee,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// EstimateID returns quote_id, falling back to id.
func (q *Quote) EstimateID() string {
	if q == nil {
		return ""
	}
	return firstNonEmpty(q.QuoteID, q.ID)
}

// FeeAmount returns total.amount, falling back to fee.amount.
func (q *Quote) FeeAmount() *int64 {
	if q == nil {
		return nil
	}
	return feeAmount(q.Total, q.Fee)
}

// FeeCurrency returns total.currency, then fee.currency_code, then currency.
func (q *Quote) FeeCurrency() string {
	if q == nil {
		return ""
	}
	return feeCurrency(q.Total, q.Fee, q.Currency)
}

// Delivery is the courier delivery response, as returned by create, status and cancel.
type Delivery struct {
	ID                string    `json:"id,omitempty"`
	DeliveryID        string    `json:"delivery_id,omitempty"`
	Status            string    `json:"status,omitempty"`
	TrackingURL       string    `json:"tracking_url,omitempty"`
	Tracking          *Tracking `json:"tracking,omitempty"`
	QuoteID           string    `json:"quote_id,omitempty"`
	ExternalReference string    `json:"external_reference,omitempty"`
	Fee               *Money    `json:"fee,omitempty"`
	Total             *Money    `json:"total,omitempty"`
	Currency          string    `json:"currency,omitempty"`
}

// Ref returns id, falling back to delivery_id.
func (d *Delivery) Ref() string {
	if d == nil {
		return ""
	}
	return firstNonEmpty(d.ID, d.DeliveryID)
}

// TrackingLink returns tracking_url, falling back to tracking.url.
func (d *Delivery) TrackingLink() string {
	if d == nil {
		return ""
	}
	if d.TrackingURL != "" {
		return d.TrackingURL
	}
	if d.Tracking != nil {
		return d.Tracking.URL
	}
	return ""
}

// FeeAmount returns total.amount, falling back to fee.amount.
func (d *Delivery) FeeAmount() *int64 {
	if d == nil {
		return nil
	}
	return feeAmount(d.Total, d.Fee)
}

// FeeCurrency returns total.currency, then fee.currency_code, then currency.
func (d *Delivery) FeeCurrency() string {
	if d == nil {
		return ""
	}
	return feeCurrency(d.Total, d.Fee, d.Currency)
}

// NormalizeStatus lowercases a courier status.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func feeAmount(total, fee *Money) *int64 {
	if total != nil {
		v := total.Amount
		return &v
	}
	if fee != nil {
		v := fee.Amount
		return &v
	}
	return nil
}

func feeCurrency(total, fee *Money, fallback string) string {
	if total != nil && total.Currency != "" {
		return total.Currency
	}
	if fee != nil && fee.CurrencyCode != "" {
		return fee.CurrencyCode
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
