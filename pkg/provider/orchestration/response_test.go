package orchestration

import (
	"errors"
	"testing"

	"github.com/dirigent-llm/dirigent/pkg/api"
)

func wireResult(choices ...wireChoice) *wireLLMResult {
	return &wireLLMResult{
		ID:      "res-1",
		Model:   "phi-4",
		Choices: choices,
	}
}

func textChoice(content, finish string) wireChoice {
	return wireChoice{
		Message:      wireResultMessage{Role: "assistant", Content: content},
		FinishReason: finish,
	}
}

func TestParseResult_PrefersTopLevelResult(t *testing.T) {
	resp := &wireResponse{
		RequestID:           "req-1",
		OrchestrationResult: wireResult(textChoice("top level", "stop")),
		ModuleResults: &wireModuleResults{
			LLM: wireResult(textChoice("nested", "stop")),
		},
	}

	result, err := parseResult(resp, nil)
	if err != nil {
		t.Fatalf("parseResult error: %v", err)
	}
	if got := result.Text(); got != "top level" {
		t.Errorf("text = %q, want the top-level result", got)
	}
	if result.RequestID != "req-1" {
		t.Errorf("request id = %q", result.RequestID)
	}
	if result.Model != "phi-4" {
		t.Errorf("model = %q", result.Model)
	}
}

func TestParseResult_ModuleResultsFallback(t *testing.T) {
	resp := &wireResponse{
		ModuleResults: &wireModuleResults{
			LLM: wireResult(textChoice("nested", "stop")),
		},
	}

	result, err := parseResult(resp, nil)
	if err != nil {
		t.Fatalf("parseResult error: %v", err)
	}
	if got := result.Text(); got != "nested" {
		t.Errorf("text = %q", got)
	}
}

func TestParseResult_NoResult(t *testing.T) {
	_, err := parseResult(&wireResponse{RequestID: "req-2"}, nil)
	if err == nil {
		t.Fatal("expected an error for a response without a completion result")
	}
	var be *api.BridgeError
	if !errors.As(err, &be) || be.Kind != api.ErrorKindStreamProtocol {
		t.Errorf("error = %v, want stream-protocol classification", err)
	}
}

func TestParseResult_EmptyChoices(t *testing.T) {
	resp := &wireResponse{OrchestrationResult: wireResult()}

	result, err := parseResult(resp, nil)
	if err != nil {
		t.Fatalf("empty choices must not fail: %v", err)
	}
	if len(result.Content) != 0 {
		t.Errorf("content = %+v, want empty", result.Content)
	}
	if result.FinishReason.Kind != api.FinishUnknown {
		t.Errorf("finish reason = %+v, want unknown", result.FinishReason)
	}
}

func TestParseResult_ToolCalls(t *testing.T) {
	choice := wireChoice{
		Message: wireResultMessage{
			Role:    "assistant",
			Content: "calling a tool",
			ToolCalls: []wireToolCall{
				{
					ID:   "call_1",
					Type: "function",
					Function: wireFunctionCall{
						Name:      "lookup",
						Arguments: `{"q":"weather"}`,
					},
				},
			},
		},
		FinishReason: "tool_calls",
	}

	result, err := parseResult(&wireResponse{OrchestrationResult: wireResult(choice)}, nil)
	if err != nil {
		t.Fatalf("parseResult error: %v", err)
	}

	if result.FinishReason.Kind != api.FinishToolCalls {
		t.Errorf("finish reason = %+v", result.FinishReason)
	}
	// Text precedes tool calls in the content list.
	if len(result.Content) != 2 {
		t.Fatalf("content length = %d, want 2", len(result.Content))
	}
	if result.Content[0].Type != api.PartText {
		t.Errorf("first part = %s, want text", result.Content[0].Type)
	}
	calls := result.ToolCalls()
	if len(calls) != 1 || calls[0].ID != "call_1" || calls[0].Name != "lookup" {
		t.Fatalf("tool calls = %+v", calls)
	}
	if calls[0].Input != `{"q":"weather"}` {
		t.Errorf("tool input = %v, want the raw argument string", calls[0].Input)
	}
}

func TestParseResult_Warnings(t *testing.T) {
	warnings := []api.Warning{{Code: api.WarnToolConflict, Setting: "tools"}}
	resp := &wireResponse{OrchestrationResult: wireResult(textChoice("ok", "stop"))}

	result, err := parseResult(resp, warnings)
	if err != nil {
		t.Fatalf("parseResult error: %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Code != api.WarnToolConflict {
		t.Errorf("warnings = %+v, want build warnings carried through", result.Warnings)
	}
}

func TestUnwrapContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain text untouched", "just text", "just text"},
		{"wrapped content unwrapped", `{"content":"inner text"}`, "inner text"},
		{"wrapped empty string unwrapped", `{"content":""}`, ""},
		{"object without content kept raw", `{"role":"assistant"}`, `{"role":"assistant"}`},
		{"explicit null content kept raw", `{"content":null}`, `{"content":null}`},
		{"json array kept raw", `[1,2]`, `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unwrapContent(tt.raw); got != tt.want {
				t.Errorf("unwrapContent(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCanonicalFinishReason(t *testing.T) {
	strPtr := func(s string) *string { return &s }

	tests := []struct {
		name string
		raw  *string
		want api.FinishKind
	}{
		{"nil", nil, api.FinishUnknown},
		{"empty", strPtr(""), api.FinishUnknown},
		{"stop", strPtr("stop"), api.FinishStop},
		{"end_turn", strPtr("end_turn"), api.FinishStop},
		{"stop_sequence", strPtr("stop_sequence"), api.FinishStop},
		{"uppercase stop", strPtr("STOP"), api.FinishStop},
		{"length", strPtr("length"), api.FinishLength},
		{"max_tokens", strPtr("max_tokens"), api.FinishLength},
		{"tool_calls", strPtr("tool_calls"), api.FinishToolCalls},
		{"function_call", strPtr("function_call"), api.FinishToolCalls},
		{"content_filter", strPtr("content_filter"), api.FinishContentFilter},
		{"error", strPtr("error"), api.FinishError},
		{"unrecognized", strPtr("paused"), api.FinishOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := canonicalFinishReason(tt.raw)
			if got.Kind != tt.want {
				t.Errorf("kind = %s, want %s", got.Kind, tt.want)
			}
			if tt.raw != nil && *tt.raw != "" && got.Raw != *tt.raw {
				t.Errorf("raw = %q, want %q preserved", got.Raw, *tt.raw)
			}
		})
	}
}

func TestConvertUsage(t *testing.T) {
	if got := convertUsage(nil); got.TotalTokens != nil || got.InputTokens != nil || got.OutputTokens != nil {
		t.Errorf("nil usage = %+v, want all-absent", got)
	}

	got := convertUsage(&wireUsage{
		PromptTokens:     intPtr(10),
		CompletionTokens: intPtr(5),
		TotalTokens:      intPtr(15),
	})
	if got.InputTokens == nil || *got.InputTokens != 10 {
		t.Errorf("input tokens = %v", got.InputTokens)
	}
	if got.OutputTokens == nil || *got.OutputTokens != 5 {
		t.Errorf("output tokens = %v", got.OutputTokens)
	}
	if got.TotalTokens == nil || *got.TotalTokens != 15 {
		t.Errorf("total tokens = %v", got.TotalTokens)
	}
}
