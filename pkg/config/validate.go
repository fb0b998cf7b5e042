package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// upstream.base_url is required unless a service key supplies it.
	if c.Upstream.BaseURL == "" && c.Auth.Type != "service_key" {
		errs = append(errs, fmt.Errorf("upstream.base_url is required"))
	}

	// upstream.timeout must not be negative.
	if c.Upstream.Timeout < 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must be >= 0, got %s", c.Upstream.Timeout))
	}

	// auth.type must be a known value, and its required fields must be set.
	switch c.Auth.Type {
	case "none", "":
		// valid
	case "static":
		if c.Auth.Token == "" && c.Auth.TokenFile == "" {
			errs = append(errs, fmt.Errorf("auth.token or auth.token_file is required when auth.type is \"static\""))
		}
	case "service_key":
		// The key file may also come from DIRIGENT_SERVICE_KEY or
		// DIRIGENT_SERVICE_KEY_FILE, so nothing is required here.
	case "client_credentials":
		if c.Auth.TokenURL == "" {
			errs = append(errs, fmt.Errorf("auth.token_url is required when auth.type is \"client_credentials\""))
		}
		if c.Auth.ClientID == "" {
			errs = append(errs, fmt.Errorf("auth.client_id is required when auth.type is \"client_credentials\""))
		}
		if c.Auth.ClientSecret == "" && c.Auth.ClientSecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.client_secret or auth.client_secret_file is required when auth.type is \"client_credentials\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"static\", \"client_credentials\", or \"service_key\", got %q", c.Auth.Type))
	}

	// observability.metrics.port must be positive when metrics are enabled.
	if c.Observability.Metrics.Enabled && c.Observability.Metrics.Port <= 0 {
		errs = append(errs, fmt.Errorf("observability.metrics.port must be > 0, got %d", c.Observability.Metrics.Port))
	}

	// tools.servers entries need a name and URL.
	for i, srv := range c.Tools.Servers {
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("tools.servers[%d].name is required", i))
		}
		if srv.URL == "" {
			errs = append(errs, fmt.Errorf("tools.servers[%d].url is required", i))
		}
	}

	return errors.Join(errs...)
}
