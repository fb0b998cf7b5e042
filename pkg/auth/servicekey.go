package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Environment variables for service-key discovery. DIRIGENT_SERVICE_KEY
// carries the JSON blob directly; DIRIGENT_SERVICE_KEY_FILE points at a
// file holding it.
const (
	ServiceKeyEnv     = "DIRIGENT_SERVICE_KEY"
	ServiceKeyFileEnv = "DIRIGENT_SERVICE_KEY_FILE"
)

// ServiceKey is the credential blob issued when binding to the
// orchestration service: OAuth2 client credentials, the auth server URL,
// and the service endpoint.
type ServiceKey struct {
	ClientID     string `json:"clientid"`
	ClientSecret string `json:"clientsecret"`

	// AuthURL is the authorization server base; the token endpoint is
	// AuthURL + "/oauth/token".
	AuthURL string `json:"url"`

	ServiceURLs struct {
		// API is the orchestration service base URL.
		API string `json:"AI_API_URL"`
	} `json:"serviceurls"`
}

// LoadServiceKey resolves the service key from the environment: the
// DIRIGENT_SERVICE_KEY variable first, then the file named by
// DIRIGENT_SERVICE_KEY_FILE, then the explicit path argument. An empty
// path with neither variable set is an error.
func LoadServiceKey(path string) (*ServiceKey, error) {
	if raw := os.Getenv(ServiceKeyEnv); raw != "" {
		return ParseServiceKey([]byte(raw))
	}
	if envPath := os.Getenv(ServiceKeyFileEnv); envPath != "" {
		path = envPath
	}
	if path == "" {
		return nil, fmt.Errorf("no service key: set %s, %s, or configure a key file", ServiceKeyEnv, ServiceKeyFileEnv)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading service key file: %w", err)
	}
	return ParseServiceKey(raw)
}

// ParseServiceKey decodes and validates a service key blob.
func ParseServiceKey(raw []byte) (*ServiceKey, error) {
	var key ServiceKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("parsing service key: %w", err)
	}
	if key.ClientID == "" || key.ClientSecret == "" {
		return nil, fmt.Errorf("service key is missing client credentials")
	}
	if key.AuthURL == "" {
		return nil, fmt.Errorf("service key is missing the auth server URL")
	}
	return &key, nil
}

// TokenEndpoint returns the full token endpoint URL.
func (k *ServiceKey) TokenEndpoint() string {
	return strings.TrimRight(k.AuthURL, "/") + "/oauth/token"
}

// TokenSource builds a client-credentials token source from the key.
func (k *ServiceKey) TokenSource() (*ClientCredentials, error) {
	return NewClientCredentials(Config{
		TokenURL:     k.TokenEndpoint(),
		ClientID:     k.ClientID,
		ClientSecret: k.ClientSecret,
	})
}
