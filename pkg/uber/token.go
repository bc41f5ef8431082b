package uber

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	tokenScope         = "delivery"
	tokenPath          = "/oauth/v2/token"
	tokenRefreshMargin = 30 * time.Second
	defaultTokenTTL    = time.Hour
)

// TokenSource yields a bearer token for the courier API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// tokenCache fetches client-credential tokens and reuses them until they are
// within tokenRefreshMargin of expiry. Refresh happens inline on the calling
// request.
type tokenCache struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	fetches   int
}

func newTokenCache(clientID, clientSecret, authBase string, httpClient *http.Client, now func() time.Time) *tokenCache {
	return &tokenCache{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     strings.TrimRight(authBase, "/") + tokenPath,
			Scopes:       []string{tokenScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
		now:        now,
	}
}

func (c *tokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(tokenRefreshMargin).Before(c.expiresAt) {
		return c.token, nil
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	tok, err := c.cfg.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return "", &GatewayError{Status: retrieveErr.Response.StatusCode, Body: strings.TrimSpace(string(retrieveErr.Body))}
		}
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("uber oauth response missing access_token")
	}

	ttl := defaultTokenTTL
	if !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry)
	}
	c.token = tok.AccessToken
	c.expiresAt = c.now().Add(ttl)
	c.fetches++
	return c.token, nil
}

// Reset drops the cached token.
func (c *tokenCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
