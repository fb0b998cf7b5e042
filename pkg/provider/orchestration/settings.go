package orchestration

import (
	"encoding/json"
	"fmt"

	"github.com/dirigent-llm/dirigent/pkg/api"
)

// Settings holds the adapter's model-default configuration, the least
// specific of the three configuration layers. Call-time request fields win
// over per-call provider options, which win over these defaults; complex
// sub-configs (filtering, masking) are replaced wholesale by the most
// specific non-empty value, never merged field by field.
type Settings struct {
	ModelVersion string `yaml:"model_version" json:"model_version,omitempty"`

	Temperature      *float64 `yaml:"temperature" json:"temperature,omitempty"`
	TopP             *float64 `yaml:"top_p" json:"top_p,omitempty"`
	TopK             *int     `yaml:"top_k" json:"top_k,omitempty"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty" json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `yaml:"presence_penalty" json:"presence_penalty,omitempty"`
	MaxTokens        *int     `yaml:"max_tokens" json:"max_tokens,omitempty"`
	StopSequences    []string `yaml:"stop_sequences" json:"stop_sequences,omitempty"`

	// Tools configured as defaults. Call-time tools win wholesale when
	// both lists are non-empty (a tool_conflict warning is recorded).
	Tools []api.ToolDefinition `yaml:"tools" json:"tools,omitempty"`

	// Filtering and Masking are forwarded to the upstream untouched.
	Filtering json.RawMessage `yaml:"filtering" json:"filtering,omitempty"`
	Masking   json.RawMessage `yaml:"masking" json:"masking,omitempty"`

	// IncludeReasoning opts in to inlining assistant reasoning parts into
	// the wire text with an explicit wrapper marker. Off by default so
	// latent chain-of-thought is never forwarded unrequested.
	IncludeReasoning bool `yaml:"include_reasoning" json:"include_reasoning,omitempty"`

	// LegacyFormat forces the legacy wire envelope instead of trying the
	// unified shape first.
	LegacyFormat bool `yaml:"legacy_format" json:"legacy_format,omitempty"`
}

// Options carries the per-call provider-specific overrides decoded from
// Request.ProviderOptions. Pointer fields distinguish "not set" from an
// explicit zero value.
type Options struct {
	ModelVersion string `json:"model_version,omitempty"`

	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`

	Filtering        json.RawMessage `json:"filtering,omitempty"`
	Masking          json.RawMessage `json:"masking,omitempty"`
	IncludeReasoning *bool           `json:"include_reasoning,omitempty"`
	LegacyFormat     *bool           `json:"legacy_format,omitempty"`
}

// mergeParam returns the most specific non-nil value of a generation
// parameter: call-time first, then per-call option, then adapter default.
func mergeParam[T any](call, opt, def *T) *T {
	if call != nil {
		return call
	}
	if opt != nil {
		return opt
	}
	return def
}

// decodeOptions extracts the orchestration-specific options from the
// per-call override map. Unknown keys are ignored so callers can address
// several adapters from one map.
func decodeOptions(raw map[string]any) (Options, error) {
	var opts Options
	if len(raw) == 0 {
		return opts, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return opts, fmt.Errorf("encoding provider options: %w", err)
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("decoding provider options: %w", err)
	}
	return opts, nil
}

// resolved is the outcome of the three-layer merge, consumed by the
// request builder.
type resolved struct {
	modelVersion     string
	filtering        json.RawMessage
	masking          json.RawMessage
	includeReasoning bool
	legacyFormat     bool
}

// resolveSettings merges per-call options over adapter defaults. The merge
// is shallow: a non-empty value at the more specific layer replaces the
// less specific value wholesale.
func resolveSettings(opts Options, defaults Settings) resolved {
	r := resolved{
		modelVersion:     defaults.ModelVersion,
		filtering:        defaults.Filtering,
		masking:          defaults.Masking,
		includeReasoning: defaults.IncludeReasoning,
		legacyFormat:     defaults.LegacyFormat,
	}

	if opts.ModelVersion != "" {
		r.modelVersion = opts.ModelVersion
	}
	if len(opts.Filtering) > 0 {
		r.filtering = opts.Filtering
	}
	if len(opts.Masking) > 0 {
		r.masking = opts.Masking
	}
	if opts.IncludeReasoning != nil {
		r.includeReasoning = *opts.IncludeReasoning
	}
	if opts.LegacyFormat != nil {
		r.legacyFormat = *opts.LegacyFormat
	}

	return r
}
