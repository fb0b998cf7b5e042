package orchestration

import (
	"encoding/json"
	"strings"

	"github.com/dirigent-llm/dirigent/pkg/api"
	"github.com/dirigent-llm/dirigent/pkg/provider"
)

// parseResult extracts the canonical result from a completed upstream
// response. Absence of both text and tool calls yields an empty content
// list, not an error.
func parseResult(resp *wireResponse, warnings []api.Warning) (*provider.Result, error) {
	llm := resp.OrchestrationResult
	if llm == nil && resp.ModuleResults != nil {
		llm = resp.ModuleResults.LLM
	}
	if llm == nil {
		return nil, api.NewStreamProtocolError("upstream response carries no completion result", nil)
	}

	result := &provider.Result{
		Warnings:  warnings,
		Model:     llm.Model,
		RequestID: resp.RequestID,
		Usage:     convertUsage(llm.Usage),
	}

	if len(llm.Choices) == 0 {
		result.FinishReason = canonicalFinishReason(nil)
		return result, nil
	}

	choice := llm.Choices[0]
	result.FinishReason = canonicalFinishReason(&choice.FinishReason)

	if choice.Message.Content != "" {
		result.Content = append(result.Content, api.TextPart(unwrapContent(choice.Message.Content)))
	}

	for _, tc := range choice.Message.ToolCalls {
		result.Content = append(result.Content, api.ContentPart{
			Type: api.PartToolCall,
			ToolCall: &api.ToolCallPart{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: tc.Function.Arguments,
			},
		})
	}

	return result, nil
}

// unwrapContent applies the one content heuristic the service requires:
// some module pipelines wrap the generated text in a JSON object with a
// "content" field. If the raw string parses as such an object, the field
// value is the text; otherwise the raw string is used verbatim.
func unwrapContent(raw string) string {
	var wrapped struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Content != nil {
		return *wrapped.Content
	}
	return raw
}

// convertUsage maps wire usage to canonical usage, preserving absence.
func convertUsage(u *wireUsage) api.Usage {
	if u == nil {
		return api.Usage{}
	}
	return api.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

// canonicalFinishReason maps an upstream finish-reason string to the
// canonical classification, case-insensitively, preserving the raw value.
// A nil or empty reason maps to unknown.
func canonicalFinishReason(raw *string) api.FinishReason {
	if raw == nil || *raw == "" {
		return api.FinishReason{Kind: api.FinishUnknown}
	}

	reason := api.FinishReason{Raw: *raw}
	switch strings.ToLower(*raw) {
	case "stop", "end_turn", "stop_sequence", "eos":
		reason.Kind = api.FinishStop
	case "length", "max_tokens", "max_tokens_reached":
		reason.Kind = api.FinishLength
	case "tool_calls", "tool_call", "function_call":
		reason.Kind = api.FinishToolCalls
	case "content_filter":
		reason.Kind = api.FinishContentFilter
	case "error":
		reason.Kind = api.FinishError
	default:
		reason.Kind = api.FinishOther
	}
	return reason
}
