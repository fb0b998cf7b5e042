// Package config provides unified configuration for the dirigent adapter.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (DIRIGENT_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/dirigent-llm/dirigent/pkg/provider/orchestration"
)

// Config holds all configuration for the dirigent adapter.
type Config struct {
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Auth          AuthConfig          `yaml:"auth"`
	Tools         ToolsConfig         `yaml:"tools"`
	Observability ObservabilityConfig `yaml:"observability"`
	Debug         DebugConfig         `yaml:"debug"`
}

// UpstreamConfig holds orchestration service settings.
type UpstreamConfig struct {
	// BaseURL is the orchestration service endpoint (required).
	BaseURL string `yaml:"base_url"`

	// DefaultModel is used when a request names no model.
	DefaultModel string `yaml:"default_model"`

	// Timeout bounds non-streaming requests. Default: 120s.
	Timeout time.Duration `yaml:"timeout"`

	// Defaults is the model-default settings layer applied under
	// call-time options.
	Defaults orchestration.Settings `yaml:"defaults"`
}

// AuthConfig holds upstream credential settings.
type AuthConfig struct {
	// Type selects the token source: "none", "static",
	// "client_credentials", or "service_key". Default: "none".
	Type string `yaml:"type"`

	// Token is the bearer token for type=static.
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"` // _file variant for token

	// Client-credentials grant settings for type=client_credentials.
	TokenURL         string   `yaml:"token_url"`
	ClientID         string   `yaml:"client_id"`
	ClientSecret     string   `yaml:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file"` // _file variant for client_secret
	Scopes           []string `yaml:"scopes"`

	// ServiceKeyFile points at a service-key JSON blob for
	// type=service_key. The DIRIGENT_SERVICE_KEY and
	// DIRIGENT_SERVICE_KEY_FILE env variables take precedence.
	ServiceKeyFile string `yaml:"service_key_file"`
}

// ToolsConfig holds MCP (Model Context Protocol) tool catalog settings.
type ToolsConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Port    int    `yaml:"port"`    // default: 9090
	Path    string `yaml:"path"`    // default: "/metrics"
}

// DebugConfig holds category-based debug logging settings.
type DebugConfig struct {
	Categories string `yaml:"categories"` // comma-separated, see pkg/debug
	Level      string `yaml:"level"`      // ERROR..TRACE, default: INFO
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Upstream: UpstreamConfig{
			Timeout: 120 * time.Second,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Port:    9090,
				Path:    "/metrics",
			},
		},
	}
}
