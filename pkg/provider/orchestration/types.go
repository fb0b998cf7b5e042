package orchestration

import "encoding/json"

// Wire types for the orchestration completion endpoint. The service nests
// all call configuration under per-module sections; the unified (v2) shape
// and the legacy shape differ only in the envelope around the modules.

// wireRequest is the unified request envelope for POST /v2/completion.
type wireRequest struct {
	Config        wireConfig         `json:"config"`
	Stream        bool               `json:"stream,omitempty"`
	StreamOptions *wireStreamOptions `json:"stream_options,omitempty"`
}

// legacyRequest is the pre-v2 envelope. The module payload is identical;
// only the wrapper field names differ.
type legacyRequest struct {
	OrchestrationConfig legacyConfig       `json:"orchestration_config"`
	Stream              bool               `json:"stream,omitempty"`
	StreamOptions       *wireStreamOptions `json:"stream_options,omitempty"`
}

type wireConfig struct {
	Modules wireModules `json:"modules"`
}

type legacyConfig struct {
	ModuleConfigurations wireModules `json:"module_configurations"`
}

type wireStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// wireModules holds the per-module configuration sections. Filtering and
// masking are pass-through: the adapter never inspects their contents.
type wireModules struct {
	LLM        wireLLMModule   `json:"llm"`
	Templating wireTemplating  `json:"templating"`
	Tools      []wireTool      `json:"tools,omitempty"`
	ToolChoice any             `json:"tool_choice,omitempty"`
	Output     *wireOutput     `json:"output,omitempty"`
	Filtering  json.RawMessage `json:"filtering,omitempty"`
	Masking    json.RawMessage `json:"masking,omitempty"`
}

type wireLLMModule struct {
	ModelName    string         `json:"model_name"`
	ModelVersion string         `json:"model_version,omitempty"`
	ModelParams  map[string]any `json:"model_params,omitempty"`
}

type wireTemplating struct {
	Messages []wireMessage `json:"messages"`
}

// wireMessage is one message on the wire. Content is either a bare string
// or a []wireContentPart, matching what the service accepts per role.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string          `json:"type"`
	Function wireFunctionDef `json:"function"`
}

type wireFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// wireOutput is the response-format directive of the output module.
type wireOutput struct {
	Type       string          `json:"type"`
	JSONSchema *wireJSONSchema `json:"json_schema,omitempty"`
}

type wireJSONSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// wireResponse is the completed (non-streaming) response envelope. The
// orchestration result is the post-filtering output; module_results.llm
// carries the raw model output and is used as a fallback.
type wireResponse struct {
	RequestID           string             `json:"request_id,omitempty"`
	ModuleResults       *wireModuleResults `json:"module_results,omitempty"`
	OrchestrationResult *wireLLMResult     `json:"orchestration_result,omitempty"`
}

type wireModuleResults struct {
	LLM *wireLLMResult `json:"llm,omitempty"`
}

type wireLLMResult struct {
	ID      string       `json:"id,omitempty"`
	Model   string       `json:"model,omitempty"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
}

type wireChoice struct {
	Index        int               `json:"index"`
	Message      wireResultMessage `json:"message"`
	FinishReason string            `json:"finish_reason,omitempty"`
}

type wireResultMessage struct {
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

// wireUsage uses pointers throughout: the service omits counters it did
// not measure, and absent must stay distinguishable from zero.
type wireUsage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
}

// wireChunk is one SSE streaming chunk. A chunk with no choices may still
// carry the final aggregate usage for the whole stream.
type wireChunk struct {
	RequestID           string           `json:"request_id,omitempty"`
	ModuleResults       *wireChunkModule `json:"module_results,omitempty"`
	OrchestrationResult *wireChunkResult `json:"orchestration_result,omitempty"`
}

type wireChunkModule struct {
	LLM *wireChunkResult `json:"llm,omitempty"`
}

type wireChunkResult struct {
	ID      string            `json:"id,omitempty"`
	Model   string            `json:"model,omitempty"`
	Choices []wireChunkChoice `json:"choices"`
	Usage   *wireUsage        `json:"usage,omitempty"`
}

type wireChunkChoice struct {
	Index        int            `json:"index"`
	Delta        wireChunkDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

// wireChunkDelta holds incremental content. Content is nullable: nil means
// no text in this chunk, while an explicit empty string is a meaningful
// zero-length delta.
type wireChunkDelta struct {
	Role      string              `json:"role,omitempty"`
	Content   *string             `json:"content"`
	ToolCalls []wireChunkToolCall `json:"tool_calls,omitempty"`
}

// wireChunkToolCall is one incremental tool call entry. Index is nullable;
// entries without a usable index are skipped defensively.
type wireChunkToolCall struct {
	Index    *int              `json:"index"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function wireChunkFunction `json:"function"`
}

type wireChunkFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// wireErrorEnvelope is the structured error body returned by the service,
// sometimes embedded as text inside a stream error message.
type wireErrorEnvelope struct {
	Error wireErrorBody `json:"error"`
}

type wireErrorBody struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Location  string `json:"location,omitempty"`
}
