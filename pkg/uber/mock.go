package uber

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"
)

const (
	mockBaseQuote     = 299
	mockDeliveryTotal = 599
	mockTrackingBase  = "https://mock.uber.com/track/"
	mockCurrency      = "EUR"
)

// Mock is an in-memory courier used when no credentials are configured. It
// honours idempotency keys the way the real API does.
type Mock struct {
	storeID string

	mu          sync.Mutex
	quotesByKey map[string]*Quote
	byKey       map[string]*Delivery
	byID        map[string]*Delivery
	createCalls int
	cancelCalls int
}

// NewMock builds an empty mock courier.
func NewMock(storeID string) *Mock {
	if storeID == "" {
		storeID = MockStoreID
	}
	return &Mock{
		storeID:     storeID,
		quotesByKey: make(map[string]*Quote),
		byKey:       make(map[string]*Delivery),
		byID:        make(map[string]*Delivery),
	}
}

// StoreID implements Gateway.
func (m *Mock) StoreID() string {
	return m.storeID
}

// Quote implements Gateway.
func (m *Mock) Quote(_ context.Context, req QuoteRequest, opts CallOptions) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.quotesByKey[opts.IdempotencyKey]; ok && opts.IdempotencyKey != "" {
		return cloneQuote(q), nil
	}

	var itemsTotal int64
	for _, item := range req.Manifest.Items {
		if item.Price != nil {
			itemsTotal += *item.Price
		}
	}
	amount := int64(mockBaseQuote) + int64(math.Round(float64(itemsTotal)*0.05))
	if amount < mockBaseQuote {
		amount = mockBaseQuote
	}
	q := &Quote{
		QuoteID: "mock_quote_" + shortID(),
		Total:   &Money{Amount: amount, Currency: currencyOr(req.Currency)},
	}
	if opts.IdempotencyKey != "" {
		m.quotesByKey[opts.IdempotencyKey] = q
	}
	return cloneQuote(q), nil
}

// Create implements Gateway.
func (m *Mock) Create(_ context.Context, req CreateRequest, opts CallOptions) (*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.byKey[opts.IdempotencyKey]; ok && opts.IdempotencyKey != "" {
		return cloneDelivery(d), nil
	}
	m.createCalls++

	id := "mock_delivery_" + shortID()
	quoteID := req.QuoteID
	if quoteID == "" {
		quoteID = "mock_quote_" + id[len(id)-6:]
	}
	currency := currencyOr(req.Currency)
	d := &Delivery{
		ID:          id,
		Status:      "created",
		TrackingURL: mockTrackingBase + id,
		Tracking:    &Tracking{URL: mockTrackingBase + id},
		QuoteID:     quoteID,
		Total:       &Money{Amount: mockDeliveryTotal, Currency: currency},
		Currency:    currency,
	}
	if opts.IdempotencyKey != "" {
		m.byKey[opts.IdempotencyKey] = d
	}
	m.byID[id] = d
	return cloneDelivery(d), nil
}

// Cancel implements Gateway.
func (m *Mock) Cancel(_ context.Context, deliveryID string, _ CancelRequest, opts CallOptions) (*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelCalls++
	if d, ok := m.byID[deliveryID]; ok {
		d.Status = "canceled"
		return cloneDelivery(d), nil
	}
	if deliveryID == "" {
		deliveryID = "mock_delivery_" + shortID()
	}
	d := &Delivery{
		ID:          deliveryID,
		Status:      "canceled",
		TrackingURL: mockTrackingBase + deliveryID,
	}
	m.byID[deliveryID] = d
	if opts.IdempotencyKey != "" {
		m.byKey[opts.IdempotencyKey] = d
	}
	return cloneDelivery(d), nil
}

// Status implements Gateway.
func (m *Mock) Status(_ context.Context, deliveryID string) (*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.byID[deliveryID]; ok {
		return cloneDelivery(d), nil
	}
	id := deliveryID
	if id == "" {
		id = "mock_delivery_" + shortID()
	}
	return &Delivery{
		ID:          id,
		Status:      "courier_assigned",
		TrackingURL: mockTrackingBase + deliveryID,
	}, nil
}

// CreateCalls returns how many deliveries were actually dispatched.
func (m *Mock) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// CancelCalls returns how many cancel calls were received.
func (m *Mock) CancelCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCalls
}

func shortID() string {
	return uuid.NewString()[:8]
}

func currencyOr(currency string) string {
	if currency == "" {
		return mockCurrency
	}
	return currency
}

func cloneQuote(q *Quote) *Quote {
	out := *q
	if q.Total != nil {
		total := *q.Total
		out.Total = &total
	}
	return &out
}

func cloneDelivery(d *Delivery) *Delivery {
	out := *d
	if d.Total != nil {
		total := *d.Total
		out.Total = &total
	}
	if d.Tracking != nil {
		tracking := *d.Tracking
		out.Tracking = &tracking
	}
	return &out
}
