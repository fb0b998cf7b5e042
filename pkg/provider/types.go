package provider

import (
	"encoding/json"

	"github.com/dirigent-llm/dirigent/pkg/api"
)

// Request is the canonical, provider-agnostic call. It is built once per
// call and is immutable thereafter: adapters copy it before mutating
// anything. Optional generation parameters use pointers so that "absent"
// and "zero" stay distinguishable.
type Request struct {
	// Model identifies the model to serve the call. ModelVersion is
	// optional; adapters fall back to their configured default.
	Model        string `json:"model"`
	ModelVersion string `json:"model_version,omitempty"`

	// Messages is the ordered conversation context.
	Messages []api.Message `json:"messages"`

	// Generation parameters. Out-of-range values are forwarded with an
	// advisory warning; the upstream service is authoritative.
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
	Seed             *int     `json:"seed,omitempty"`

	// CompletionCount requests multiple completions. Omitted on the wire
	// for model families that reject it.
	CompletionCount *int `json:"completion_count,omitempty"`

	// ParallelToolCalls toggles parallel tool invocation upstream.
	ParallelToolCalls *bool `json:"parallel_tool_calls,omitempty"`

	Tools      []api.ToolDefinition `json:"tools,omitempty"`
	ToolChoice *api.ToolChoice      `json:"tool_choice,omitempty"`

	// ResponseFormat directs the output shape. Nil means implicit text.
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// ProviderOptions carries per-call provider-specific overrides. Each
	// adapter decodes the entries it understands; precedence is
	// call-time field > provider option > adapter default.
	ProviderOptions map[string]any `json:"-"`
}

// ResponseFormatType enumerates the supported response-format directives.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat is the caller's output-shape directive. Name, Description,
// Schema, and Strict apply to json_schema only.
type ResponseFormat struct {
	Type        ResponseFormatType `json:"type"`
	Name        string             `json:"name,omitempty"`
	Description string             `json:"description,omitempty"`
	Schema      json.RawMessage    `json:"schema,omitempty"`
	Strict      *bool              `json:"strict,omitempty"`
}

// Result is the complete non-streaming outcome of a call.
type Result struct {
	// Content holds the produced parts in order: text parts followed by
	// tool-call parts. Empty when the upstream produced neither.
	Content []api.ContentPart `json:"content"`

	FinishReason api.FinishReason `json:"finish_reason"`
	Usage        api.Usage        `json:"usage"`

	// Warnings accumulated while building the request and parsing the
	// response. Never causes the call to fail.
	Warnings []api.Warning `json:"warnings,omitempty"`

	// Model and RequestID echo upstream response metadata when present.
	Model     string `json:"model,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Text concatenates all text parts of the result content.
func (r *Result) Text() string {
	var out string
	for _, part := range r.Content {
		if part.Type == api.PartText {
			out += part.Text
		}
	}
	return out
}

// ToolCalls returns the tool-call parts of the result content.
func (r *Result) ToolCalls() []api.ToolCallPart {
	var calls []api.ToolCallPart
	for _, part := range r.Content {
		if part.Type == api.PartToolCall && part.ToolCall != nil {
			calls = append(calls, *part.ToolCall)
		}
	}
	return calls
}
