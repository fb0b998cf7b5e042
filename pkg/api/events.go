package api

import "time"

// StreamEventType identifies the type of a canonical streaming event.
type StreamEventType string

const (
	// EventStreamStart opens the stream and carries warnings gathered
	// while building the request. The warning list is fixed at emission
	// time; warnings discovered later attach to the final result only.
	EventStreamStart StreamEventType = "stream-start"

	// EventResponseMetadata reports the serving model and timestamp.
	// Emitted once, on the first upstream chunk.
	EventResponseMetadata StreamEventType = "response-metadata"

	EventTextStart StreamEventType = "text-start"
	EventTextDelta StreamEventType = "text-delta"
	EventTextEnd   StreamEventType = "text-end"

	EventToolInputStart StreamEventType = "tool-input-start"
	EventToolInputDelta StreamEventType = "tool-input-delta"
	EventToolInputEnd   StreamEventType = "tool-input-end"

	// EventToolCall carries one fully accumulated tool invocation.
	EventToolCall StreamEventType = "tool-call"

	// EventFinish terminates a successful stream. Exactly one finish
	// event is emitted per stream, after all blocks are closed.
	EventFinish StreamEventType = "finish"

	// EventError terminates a failed stream with a classified error.
	EventError StreamEventType = "error"
)

// StreamEvent is one canonical, typed unit emitted while consuming an
// upstream streaming response. Type selects the variant; the remaining
// fields are populated per variant as documented on the constants.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// Warnings is set on stream-start.
	Warnings []Warning `json:"warnings,omitempty"`

	// ModelID and Timestamp are set on response-metadata.
	ModelID   string    `json:"model_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`

	// ID identifies the text block or tool call the event belongs to.
	// Text block ids are per-call ordinals ("0", "1", ...); tool call ids
	// come from the upstream.
	ID string `json:"id,omitempty"`

	// Delta carries incremental text or tool argument content. An empty
	// delta is meaningful for text-delta events and is still emitted.
	Delta string `json:"delta,omitempty"`

	// ToolName is set on tool-input-start and tool-call. Empty on
	// tool-call only when the upstream never supplied a name (a
	// missing_tool_name warning is recorded in that case).
	ToolName string `json:"tool_name,omitempty"`

	// ToolInput is the complete accumulated argument string, set on
	// tool-call.
	ToolInput string `json:"tool_input,omitempty"`

	// FinishReason and Usage are set on finish.
	FinishReason FinishReason `json:"finish_reason,omitzero"`
	Usage        *Usage       `json:"usage,omitempty"`

	// Err is set on error events and is always a *BridgeError.
	Err error `json:"-"`
}
