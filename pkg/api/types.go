package api

import "encoding/json"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates the variants of a ContentPart.
type PartType string

const (
	PartText       PartType = "text"
	PartFile       PartType = "file"
	PartReasoning  PartType = "reasoning"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// ContentPart is one typed unit of message content. Type selects the
// variant; exactly one of the variant fields is meaningful. Code consuming
// parts must switch exhaustively on Type and treat unknown values as a
// translation failure rather than silently dropping them.
type ContentPart struct {
	Type PartType `json:"type"`

	// Text holds the content for PartText and PartReasoning.
	Text string `json:"text,omitempty"`

	// File is set for PartFile.
	File *FilePart `json:"file,omitempty"`

	// ToolCall is set for PartToolCall.
	ToolCall *ToolCallPart `json:"tool_call,omitempty"`

	// ToolResult is set for PartToolResult.
	ToolResult *ToolResultPart `json:"tool_result,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ReasoningPart builds a reasoning content part.
func ReasoningPart(text string) ContentPart {
	return ContentPart{Type: PartReasoning, Text: text}
}

// FilePart carries binary or referenced file content. Exactly one of
// DataURL, Bytes, or URL is set:
//
//   - DataURL: an RFC 2397 "data:" URL string
//   - Bytes:   raw file content
//   - URL:     a remote http(s) location
//
// Only image/* media types are accepted by the orchestration adapter.
type FilePart struct {
	MediaType string `json:"media_type"`
	DataURL   string `json:"data_url,omitempty"`
	Bytes     []byte `json:"bytes,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ToolCallPart represents a tool invocation requested by the assistant.
// Input holds the call arguments and may be a string (expected to contain
// JSON, but not guaranteed) or any JSON-encodable value; the adapter
// normalizes it to a JSON string on the wire.
type ToolCallPart struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input any    `json:"input,omitempty"`
}

// ToolResultPart carries the output of one executed tool call back to the
// model. Output may be a string or any JSON-encodable value.
type ToolResultPart struct {
	CallID string `json:"call_id"`
	Output any    `json:"output,omitempty"`
}

// Message is one role-tagged entry of a prompt. Content semantics vary by
// role: system messages carry a single text part, user messages an ordered
// sequence of text/file parts, assistant messages text/reasoning/tool-call
// parts, and tool messages tool-result parts (one wire message is emitted
// per result part).
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// SystemMessage builds a system message from plain text.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{TextPart(text)}}
}

// UserMessage builds a user message from the given parts.
func UserMessage(parts ...ContentPart) Message {
	return Message{Role: RoleUser, Content: parts}
}

// AssistantMessage builds an assistant message from the given parts.
func AssistantMessage(parts ...ContentPart) Message {
	return Message{Role: RoleAssistant, Content: parts}
}

// ToolDefinition describes one callable function tool. Parameters holds the
// JSON Schema for the tool's arguments; the adapter coerces absent or
// non-object schemas to an empty object schema before forwarding.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolChoiceMode controls how the model selects tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceTool     ToolChoiceMode = "tool"
)

// ToolChoice expresses the caller's tool selection policy. Name is set only
// for ToolChoiceTool. The orchestration adapter supports "auto" semantics
// only; other modes are forwarded with an advisory warning.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// Usage holds token accounting for one call. Each counter is optional:
// a nil pointer means the upstream did not report that value.
type Usage struct {
	InputTokens  *int `json:"input_tokens,omitempty"`
	OutputTokens *int `json:"output_tokens,omitempty"`
	TotalTokens  *int `json:"total_tokens,omitempty"`
}

// FinishKind is the canonical classification of why generation stopped.
type FinishKind string

const (
	FinishStop          FinishKind = "stop"
	FinishLength        FinishKind = "length"
	FinishToolCalls     FinishKind = "tool-calls"
	FinishContentFilter FinishKind = "content-filter"
	FinishError         FinishKind = "error"
	FinishUnknown       FinishKind = "unknown"
	FinishOther         FinishKind = "other"
)

// FinishReason pairs the canonical finish classification with the raw
// upstream string it was derived from. Raw is empty when the upstream never
// reported a reason.
type FinishReason struct {
	Kind FinishKind `json:"kind"`
	Raw  string     `json:"raw,omitempty"`
}

// WarningCode identifies the category of an advisory warning.
type WarningCode string

const (
	// WarnUnsupportedTool flags a tool entry the adapter cannot forward.
	WarnUnsupportedTool WarningCode = "unsupported_tool"

	// WarnUnsupportedSetting flags a generation parameter outside its
	// documented range or unsupported by the selected model family.
	WarnUnsupportedSetting WarningCode = "unsupported_setting"

	// WarnToolConflict flags tools supplied both by default settings and
	// at call time; the call-time list wins.
	WarnToolConflict WarningCode = "tool_conflict"

	// WarnSchemaCoerced flags a tool parameter schema that was replaced
	// with the empty object schema.
	WarnSchemaCoerced WarningCode = "schema_coerced"

	// WarnMissingToolName flags a streamed tool call that never received
	// a function name.
	WarnMissingToolName WarningCode = "missing_tool_name"

	// WarnToolChoice flags a tool-choice policy other than "auto".
	WarnToolChoice WarningCode = "tool_choice"
)

// Warning is a non-fatal advisory diagnostic. Warnings accumulate during a
// call and are returned alongside the result; they never abort the call.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`

	// Setting names the offending parameter or tool for setting-level
	// warnings.
	Setting string `json:"setting,omitempty"`
}
