package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/dirigent-llm/dirigent/pkg/debug"
	"github.com/dirigent-llm/dirigent/pkg/observability"
)

// refreshMargin is subtracted from the token expiry so a token is never
// presented within this window of expiring.
const refreshMargin = 30 * time.Second

// StaticToken returns the same token for every call. Use it for local
// development against a mock that does not validate credentials.
type StaticToken string

// Token implements the token source interface.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// Config holds the OAuth2 client-credentials configuration.
type Config struct {
	// TokenURL is the token endpoint (required).
	TokenURL string

	// ClientID and ClientSecret identify this client (required).
	ClientID     string
	ClientSecret string

	// Scopes requested with each token grant.
	Scopes []string

	// HTTPClient allows injecting a custom client (useful for testing).
	HTTPClient *http.Client
}

// ClientCredentials acquires and caches tokens via the OAuth2
// client-credentials grant. Safe for concurrent use.
type ClientCredentials struct {
	source oauth2.TokenSource

	mu     sync.Mutex
	cached string
	expiry time.Time
}

// NewClientCredentials creates a client-credentials token source.
func NewClientCredentials(cfg Config) (*ClientCredentials, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client ID and secret are required")
	}

	cc := &clientcredentials.Config{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
	}

	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	return &ClientCredentials{source: cc.TokenSource(ctx)}, nil
}

// Token returns a valid bearer token, refreshing when the cached one is
// within refreshMargin of expiring.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != "" && time.Now().Before(c.expiry.Add(-refreshMargin)) {
		return c.cached, nil
	}

	tok, err := c.source.Token()
	if err != nil {
		observability.TokenRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("acquiring token: %w", err)
	}
	observability.TokenRefreshTotal.WithLabelValues("ok").Inc()

	c.cached = tok.AccessToken
	c.expiry = tokenExpiry(tok)

	debug.Log("auth", "token refreshed", "expiry", c.expiry)
	return c.cached, nil
}

// tokenExpiry resolves when a token stops being usable. The endpoint's
// expires_in wins; token endpoints that omit it usually still issue JWTs,
// so fall back to the exp claim. Unparseable tokens get a short fixed
// lifetime rather than being cached forever.
func tokenExpiry(tok *oauth2.Token) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	if exp, ok := jwtExpiry(tok.AccessToken); ok {
		return exp
	}
	return time.Now().Add(5 * time.Minute)
}

// jwtExpiry extracts the exp claim without verifying the signature. The
// token is presented to the upstream, which verifies it; we only need the
// lifetime for cache bookkeeping.
func jwtExpiry(token string) (time.Time, bool) {
	parser := jwtlib.NewParser()
	claims := jwtlib.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
