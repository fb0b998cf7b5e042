package orchestration

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dirigent-llm/dirigent/pkg/api"
)

// reasoningOpen and reasoningClose wrap inlined assistant reasoning so the
// upstream can tell it apart from regular text. Reasoning is only inlined
// when the include_reasoning setting is on.
const (
	reasoningOpen  = "<reasoning>"
	reasoningClose = "</reasoning>"
)

// translateMessages converts the ordered canonical prompt into the ordered
// wire message list. It fails with a typed validation error for any file
// part whose media type is not image/* and for any content part kind with
// no defined mapping. Tool messages expand to one wire message per result
// part; all other roles map one to one.
func translateMessages(messages []api.Message, includeReasoning bool) ([]wireMessage, error) {
	var out []wireMessage

	for i, msg := range messages {
		switch msg.Role {
		case api.RoleSystem:
			text, err := systemText(msg)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			out = append(out, wireMessage{Role: "system", Content: text})

		case api.RoleUser:
			wm, err := translateUserMessage(msg)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			out = append(out, wm)

		case api.RoleAssistant:
			wm, err := translateAssistantMessage(msg, includeReasoning)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			out = append(out, wm)

		case api.RoleTool:
			wms, err := translateToolMessage(msg)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			out = append(out, wms...)

		default:
			return nil, errUnsupportedContent(fmt.Sprintf("message role %q", msg.Role))
		}
	}

	return out, nil
}

// systemText extracts the plain text of a system message. System messages
// carry text parts only.
func systemText(msg api.Message) (string, error) {
	var sb strings.Builder
	for _, part := range msg.Content {
		if part.Type != api.PartText {
			return "", errUnsupportedContent(fmt.Sprintf("%s part in system message", part.Type))
		}
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// translateUserMessage maps a user message to the wire. A single text part
// collapses to a bare content string; anything else keeps the multipart
// array form.
func translateUserMessage(msg api.Message) (wireMessage, error) {
	if len(msg.Content) == 1 && msg.Content[0].Type == api.PartText {
		return wireMessage{Role: "user", Content: msg.Content[0].Text}, nil
	}

	parts := make([]wireContentPart, 0, len(msg.Content))
	for _, part := range msg.Content {
		switch part.Type {
		case api.PartText:
			parts = append(parts, wireContentPart{Type: "text", Text: part.Text})

		case api.PartFile:
			url, err := fileURL(part.File)
			if err != nil {
				return wireMessage{}, err
			}
			parts = append(parts, wireContentPart{
				Type:     "image_url",
				ImageURL: &wireImageURL{URL: url},
			})

		default:
			return wireMessage{}, errUnsupportedContent(fmt.Sprintf("%s part in user message", part.Type))
		}
	}

	return wireMessage{Role: "user", Content: parts}, nil
}

// translateAssistantMessage maps an assistant message to the wire. All text
// parts concatenate into one string. Reasoning parts are dropped unless
// includeReasoning is set, in which case they are inlined with an explicit
// wrapper marker. Tool call arguments are normalized to a JSON string.
func translateAssistantMessage(msg api.Message, includeReasoning bool) (wireMessage, error) {
	var sb strings.Builder
	var toolCalls []wireToolCall

	for _, part := range msg.Content {
		switch part.Type {
		case api.PartText:
			sb.WriteString(part.Text)

		case api.PartReasoning:
			if includeReasoning {
				sb.WriteString(reasoningOpen)
				sb.WriteString(part.Text)
				sb.WriteString(reasoningClose)
			}

		case api.PartToolCall:
			if part.ToolCall == nil {
				return wireMessage{}, errUnsupportedContent("tool-call part without call data")
			}
			args, err := normalizeArguments(part.ToolCall.Input)
			if err != nil {
				return wireMessage{}, err
			}
			toolCalls = append(toolCalls, wireToolCall{
				ID:   part.ToolCall.ID,
				Type: "function",
				Function: wireFunctionCall{
					Name:      part.ToolCall.Name,
					Arguments: args,
				},
			})

		default:
			return wireMessage{}, errUnsupportedContent(fmt.Sprintf("%s part in assistant message", part.Type))
		}
	}

	return wireMessage{
		Role:      "assistant",
		Content:   sb.String(),
		ToolCalls: toolCalls,
	}, nil
}

// translateToolMessage expands a tool message into one wire message per
// result part. Results are never merged into a single message.
func translateToolMessage(msg api.Message) ([]wireMessage, error) {
	var out []wireMessage

	for _, part := range msg.Content {
		if part.Type != api.PartToolResult || part.ToolResult == nil {
			return nil, errUnsupportedContent(fmt.Sprintf("%s part in tool message", part.Type))
		}

		content, err := stringifyOutput(part.ToolResult.Output)
		if err != nil {
			return nil, err
		}
		out = append(out, wireMessage{
			Role:       "tool",
			Content:    content,
			ToolCallID: part.ToolResult.CallID,
		})
	}

	return out, nil
}

// normalizeArguments produces the wire argument string for a tool call.
// The wire always carries a JSON string. The string case is an explicit
// two-outcome parse attempt, not error-driven control flow:
//
//   - a string that is already valid JSON passes through unchanged (this
//     prevents double-encoding)
//   - a string that is not valid JSON is treated as the intended scalar
//     argument and re-encoded as a JSON string
//   - any non-string value is encoded directly
func normalizeArguments(input any) (string, error) {
	if s, ok := input.(string); ok {
		if json.Valid([]byte(s)) {
			return s, nil
		}
		encoded, err := json.Marshal(s)
		if err != nil {
			return "", api.NewValidationError(fmt.Sprintf("encoding tool call arguments: %s", err))
		}
		return string(encoded), nil
	}

	encoded, err := json.Marshal(input)
	if err != nil {
		return "", api.NewValidationError(fmt.Sprintf("encoding tool call arguments: %s", err))
	}
	return string(encoded), nil
}

// stringifyOutput converts a tool result output to wire content. Strings
// pass through; everything else is JSON-encoded.
func stringifyOutput(output any) (string, error) {
	if s, ok := output.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return "", api.NewValidationError(fmt.Sprintf("encoding tool result: %s", err))
	}
	return string(data), nil
}

// fileURL normalizes a file part to a URL the wire accepts. Remote URLs
// pass through; data URLs pass through; raw bytes become a
// data:<mediaType>;base64,<payload> string. Only image media types are
// accepted.
func fileURL(file *api.FilePart) (string, error) {
	if file == nil {
		return "", errUnsupportedContent("file part without file data")
	}
	if !strings.HasPrefix(file.MediaType, "image/") {
		return "", errUnsupportedContent(fmt.Sprintf("file media type %q (only image/* is supported)", file.MediaType))
	}

	switch {
	case file.URL != "":
		return file.URL, nil
	case file.DataURL != "":
		return file.DataURL, nil
	case len(file.Bytes) > 0:
		return "data:" + file.MediaType + ";base64," + base64.StdEncoding.EncodeToString(file.Bytes), nil
	default:
		return "", errUnsupportedContent("file part without content")
	}
}

// errUnsupportedContent builds the typed failure for content the adapter
// has no mapping for.
func errUnsupportedContent(what string) *api.BridgeError {
	return api.NewValidationError("unsupported content: " + what)
}
