package uber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/misterfood-backend/pkg/config"
	"github.com/angelmondragon/misterfood-backend/pkg/metrics"
)

const (
	// DefaultRetries is the number of extra attempts for quote and create calls.
	DefaultRetries = 2
	// MockStoreID is used as external store id when running against the mock.
	MockStoreID = "mock-store"

	maxRetryAfter       = 10 * time.Second
	maxBackoff          = 5 * time.Second
	baseBackoff         = 200 * time.Millisecond
	responseBodyMaxSize = 1 << 20
	idempotencyHeader   = "Idempotency-Key"
)

var errStoreIDRequired = errors.New("uber store id is required when credentials are configured")

// CallOptions tune a single gateway call.
type CallOptions struct {
	IdempotencyKey string
	// Retries is the number of extra attempts on 429/5xx responses.
	Retries int
}

// Gateway is the courier API surface used by the delivery orchestrator.
type Gateway interface {
	Quote(ctx context.Context, req QuoteRequest, opts CallOptions) (*Quote, error)
	Create(ctx context.Context, req CreateRequest, opts CallOptions) (*Delivery, error)
	Cancel(ctx context.Context, deliveryID string, req CancelRequest, opts CallOptions) (*Delivery, error)
	Status(ctx context.Context, deliveryID string) (*Delivery, error)
	StoreID() string
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Client talks to the courier REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authBase   string
	storeID    string
	tokens     TokenSource
	sleep      Sleeper
	now        func() time.Time
	metrics    *metrics.OrderFlowMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (used for both token and API calls).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithAuthBaseURL overrides the OAuth base URL.
func WithAuthBaseURL(authBase string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(authBase); trimmed != "" {
			c.authBase = trimmed
		}
	}
}

// WithTokenSource replaces the client-credentials token cache.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) {
		if src != nil {
			c.tokens = src
		}
	}
}

// WithSleeper replaces the retry delay function.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithClock overrides the time source used by retries and the token cache.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics records gateway calls and retries.
func WithMetrics(m *metrics.OrderFlowMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewGateway returns the HTTP client when credentials are configured and the
// in-memory mock otherwise.
func NewGateway(cfg config.UberConfig, opts ...Option) (Gateway, error) {
	if !cfg.HasCredentials() {
		return NewMock(ResolveStoreID(cfg)), nil
	}
	return NewClient(cfg, opts...)
}

// ResolveStoreID returns the configured store id, or MockStoreID when running
// without credentials. An empty result means configuration is incomplete.
func ResolveStoreID(cfg config.UberConfig) string {
	if id := strings.TrimSpace(cfg.StoreID); id != "" {
		return id
	}
	if !cfg.HasCredentials() {
		return MockStoreID
	}
	return ""
}

// NewClient builds the courier API client.
func NewClient(cfg config.UberConfig, opts ...Option) (*Client, error) {
	if !cfg.HasCredentials() {
		return nil, errors.New("uber client id and secret are required")
	}
	storeID := ResolveStoreID(cfg)
	if storeID == "" {
		return nil, errStoreIDRequired
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.APIBase,
		authBase:   cfg.AuthBase,
		storeID:    storeID,
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.tokens == nil {
		client.tokens = newTokenCache(cfg.ClientID, cfg.ClientSecret, client.authBase, client.httpClient, client.now)
	}
	return client, nil
}

// StoreID implements Gateway.
func (c *Client) StoreID() string {
	return c.storeID
}

// Quote implements Gateway.
func (c *Client) Quote(ctx context.Context, req QuoteRequest, opts CallOptions) (*Quote, error) {
	var out Quote
	if err := c.do(ctx, "quote", http.MethodPost, "/v2/deliveries/quotes", req, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create implements Gateway.
func (c *Client) Create(ctx context.Context, req CreateRequest, opts CallOptions) (*Delivery, error) {
	var out Delivery
	if err := c.do(ctx, "create", http.MethodPost, "/v2/deliveries", req, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel implements Gateway.
func (c *Client) Cancel(ctx context.Context, deliveryID string, req CancelRequest, opts CallOptions) (*Delivery, error) {
	var out Delivery
	path := fmt.Sprintf("/v2/deliveries/%s/cancel", url.PathEscape(deliveryID))
	if err := c.do(ctx, "cancel", http.MethodPost, path, req, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status implements Gateway.
func (c *Client) Status(ctx context.Context, deliveryID string) (*Delivery, error) {
	var out Delivery
	path := "/v2/deliveries/" + url.PathEscape(deliveryID)
	if err := c.do(ctx, "status", http.MethodGet, path, nil, CallOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, opts CallOptions, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		payload = encoded
	}

	attempts := opts.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + path

	for attempt := 0; ; attempt++ {
		started := c.now()
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.metrics.ObserveGatewayCall(Provider, op, metrics.OutcomeError, c.now().Sub(started))
			return fmt.Errorf("uber oauth: %w", err)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("build %s request: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if opts.IdempotencyKey != "" {
			req.Header.Set(idempotencyHeader, opts.IdempotencyKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.ObserveGatewayCall(Provider, op, metrics.OutcomeError, c.now().Sub(started))
			return fmt.Errorf("execute %s request: %w", op, err)
		}
		text, readErr := io.ReadAll(io.LimitReader(resp.Body, responseBodyMaxSize))
		_ = resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.metrics.ObserveGatewayCall(Provider, op, metrics.OutcomeSuccess, c.now().Sub(started))
			if readErr != nil {
				return fmt.Errorf("read %s response: %w", op, readErr)
			}
			if out == nil || len(bytes.TrimSpace(text)) == 0 {
				return nil
			}
			if err := json.Unmarshal(text, out); err != nil {
				return fmt.Errorf("decode %s response: %w", op, err)
			}
			return nil
		}

		gwErr := &GatewayError{Status: resp.StatusCode, Body: strings.TrimSpace(string(text))}
		if attempt < attempts-1 && shouldRetry(resp.StatusCode) {
			c.metrics.IncGatewayRetry(Provider, op)
			delay := retryDelay(resp.Header.Get("Retry-After"), attempt, c.now())
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		c.metrics.ObserveGatewayCall(Provider, op, metrics.OutcomeError, c.now().Sub(started))
		return gwErr
	}
}

// retryDelay honours Retry-After (seconds or HTTP date, capped at 10s) and
// otherwise backs off exponentially from 200ms, capped at 5s.
func retryDelay(retryAfter string, attempt int, now time.Time) time.Duration {
	if retryAfter = strings.TrimSpace(retryAfter); retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil {
			d := time.Duration(secs * float64(time.Second))
			if d < 0 {
				d = 0
			}
			return min(d, maxRetryAfter)
		}
		if at, err := http.ParseTime(retryAfter); err == nil {
			if diff := at.Sub(now); diff > 0 {
				return min(diff, maxRetryAfter)
			}
		}
	}
	backoff := baseBackoff << attempt
	if backoff <= 0 || backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
