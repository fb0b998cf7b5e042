package orchestration

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dirigent-llm/dirigent/pkg/api"
	"github.com/dirigent-llm/dirigent/pkg/provider"
)

// emptyObjectSchema is the minimal parameter schema substituted for tools
// whose schema is absent, empty, or not object-typed.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{},"required":[]}`)

// noMultiCompletionFamilies lists model-name prefixes of families known to
// reject a completion count greater than one. The parameter is omitted for
// them entirely instead of forwarding a value the service would reject.
var noMultiCompletionFamilies = []string{"o1", "o3", "claude", "gemini"}

// builtRequest is the outcome of the request builder: the module payload
// plus everything the client needs to dispatch it. Both wire envelopes are
// derived from the same payload; the client picks which to send.
type builtRequest struct {
	modules  wireModules
	stream   bool
	warnings []api.Warning

	// legacyOnly forces the legacy envelope without trying the unified
	// shape first.
	legacyOnly bool
}

// unified marshals the v2 request envelope.
func (b *builtRequest) unified() ([]byte, error) {
	req := wireRequest{
		Config: wireConfig{Modules: b.modules},
		Stream: b.stream,
	}
	if b.stream {
		req.StreamOptions = &wireStreamOptions{IncludeUsage: true}
	}
	return json.Marshal(req)
}

// legacy marshals the pre-v2 request envelope.
func (b *builtRequest) legacy() ([]byte, error) {
	req := legacyRequest{
		OrchestrationConfig: legacyConfig{ModuleConfigurations: b.modules},
		Stream:              b.stream,
	}
	if b.stream {
		req.StreamOptions = &wireStreamOptions{IncludeUsage: true}
	}
	return json.Marshal(req)
}

// buildRequest assembles the full upstream request from the canonical
// request, the per-call provider options, and the adapter defaults, in
// that precedence order. Building is deterministic: identical inputs yield
// structurally identical wire output. Parameter range violations never
// fail the build; they append warnings and the value is still forwarded.
func buildRequest(req *provider.Request, defaults Settings, stream bool) (*builtRequest, error) {
	opts, err := decodeOptions(req.ProviderOptions)
	if err != nil {
		return nil, api.NewValidationError(err.Error())
	}
	cfg := resolveSettings(opts, defaults)

	messages, err := translateMessages(req.Messages, cfg.includeReasoning)
	if err != nil {
		return nil, err
	}

	built := &builtRequest{
		stream:     stream,
		legacyOnly: cfg.legacyFormat,
	}

	// Generation parameters, most specific layer first.
	params := map[string]any{}
	putFloat(params, "temperature", mergeParam(req.Temperature, opts.Temperature, defaults.Temperature))
	putFloat(params, "top_p", mergeParam(req.TopP, opts.TopP, defaults.TopP))
	putInt(params, "top_k", mergeParam(req.TopK, opts.TopK, defaults.TopK))
	putFloat(params, "frequency_penalty", mergeParam(req.FrequencyPenalty, opts.FrequencyPenalty, defaults.FrequencyPenalty))
	putFloat(params, "presence_penalty", mergeParam(req.PresencePenalty, opts.PresencePenalty, defaults.PresencePenalty))
	putInt(params, "max_tokens", mergeParam(req.MaxTokens, opts.MaxTokens, defaults.MaxTokens))

	stop := req.StopSequences
	if len(stop) == 0 {
		stop = defaults.StopSequences
	}
	if len(stop) > 0 {
		params["stop"] = stop
	}
	if req.Seed != nil {
		params["seed"] = *req.Seed
	}
	if req.ParallelToolCalls != nil {
		params["parallel_tool_calls"] = *req.ParallelToolCalls
	}

	if req.CompletionCount != nil {
		if supportsMultipleCompletions(req.Model) {
			params["n"] = *req.CompletionCount
		} else {
			built.warn(api.WarnUnsupportedSetting, "completion_count",
				fmt.Sprintf("model %q does not support multiple completions; the parameter is omitted", req.Model))
		}
	}

	built.warnings = append(built.warnings, validateParams(params)...)

	modelVersion := req.ModelVersion
	if modelVersion == "" {
		modelVersion = cfg.modelVersion
	}

	built.modules = wireModules{
		LLM: wireLLMModule{
			ModelName:    req.Model,
			ModelVersion: modelVersion,
			ModelParams:  params,
		},
		Templating: wireTemplating{Messages: messages},
		Filtering:  cfg.filtering,
		Masking:    cfg.masking,
	}

	// Tool selection: call-time tools win over default-settings tools;
	// both non-empty records an advisory conflict warning.
	tools := req.Tools
	if len(defaults.Tools) > 0 {
		if len(tools) > 0 {
			built.warn(api.WarnToolConflict, "tools",
				"tools supplied both in default settings and at call time; using the call-time tools")
		} else {
			tools = defaults.Tools
		}
	}
	built.modules.Tools = built.translateTools(tools)

	if req.ToolChoice != nil {
		built.modules.ToolChoice = built.translateToolChoice(req.ToolChoice)
	}

	built.modules.Output = built.translateResponseFormat(req.ResponseFormat, len(tools) > 0)

	return built, nil
}

// warn appends an advisory warning to the build.
func (b *builtRequest) warn(code api.WarningCode, setting, message string) {
	b.warnings = append(b.warnings, api.Warning{Code: code, Setting: setting, Message: message})
}

// translateTools maps tool definitions to the wire, normalizing every
// parameter schema to an object-typed JSON Schema.
func (b *builtRequest) translateTools(tools []api.ToolDefinition) []wireTool {
	if len(tools) == 0 {
		return nil
	}

	out := make([]wireTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunctionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  b.normalizeSchema(tool),
			},
		})
	}
	return out
}

// normalizeSchema coerces a tool parameter schema to an object-typed JSON
// Schema. Absent schemas and schemas without declared properties become the
// empty object schema silently; a declared non-object top-level type or an
// unparseable schema is coerced with a warning rather than propagating an
// invalid shape.
func (b *builtRequest) normalizeSchema(tool api.ToolDefinition) json.RawMessage {
	if len(tool.Parameters) == 0 {
		return emptyObjectSchema
	}

	var shape struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(tool.Parameters, &shape); err != nil {
		b.warn(api.WarnSchemaCoerced, tool.Name,
			fmt.Sprintf("tool %q parameter schema is not valid JSON; using an empty object schema", tool.Name))
		return emptyObjectSchema
	}

	if shape.Type != "" && shape.Type != "object" {
		b.warn(api.WarnSchemaCoerced, tool.Name,
			fmt.Sprintf("tool %q declares a %q parameter schema; using an empty object schema", tool.Name, shape.Type))
		return emptyObjectSchema
	}

	if len(shape.Properties) == 0 {
		return emptyObjectSchema
	}

	return tool.Parameters
}

// translateToolChoice maps the tool selection policy to the wire. Only
// "auto" semantics are supported downstream; anything else is forwarded
// with an advisory warning.
func (b *builtRequest) translateToolChoice(choice *api.ToolChoice) any {
	switch choice.Mode {
	case api.ToolChoiceAuto:
		return "auto"
	case api.ToolChoiceNone:
		b.warnToolChoice(string(choice.Mode))
		return "none"
	case api.ToolChoiceRequired:
		b.warnToolChoice(string(choice.Mode))
		return "required"
	case api.ToolChoiceTool:
		b.warnToolChoice(fmt.Sprintf("tool %q", choice.Name))
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": choice.Name},
		}
	default:
		b.warnToolChoice(string(choice.Mode))
		return string(choice.Mode)
	}
}

func (b *builtRequest) warnToolChoice(mode string) {
	b.warn(api.WarnToolChoice, "tool_choice",
		fmt.Sprintf("tool choice %s is forwarded but only auto selection is supported downstream", mode))
}

// translateResponseFormat maps the response-format directive. With no
// directive and no tools the output defaults to plain text; with tools in
// play the module is omitted so the service applies its own default.
func (b *builtRequest) translateResponseFormat(format *provider.ResponseFormat, hasTools bool) *wireOutput {
	if format == nil {
		if hasTools {
			return nil
		}
		return &wireOutput{Type: "text"}
	}

	switch format.Type {
	case provider.ResponseFormatText:
		return &wireOutput{Type: "text"}

	case provider.ResponseFormatJSONObject:
		return &wireOutput{Type: "json_object"}

	case provider.ResponseFormatJSONSchema:
		if len(format.Schema) == 0 {
			return &wireOutput{Type: "json_object"}
		}
		return &wireOutput{
			Type: "json_schema",
			JSONSchema: &wireJSONSchema{
				Name:        format.Name,
				Description: format.Description,
				Schema:      format.Schema,
				Strict:      format.Strict,
			},
		}

	default:
		b.warn(api.WarnUnsupportedSetting, "response_format",
			fmt.Sprintf("unknown response format %q; requesting plain text", format.Type))
		return &wireOutput{Type: "text"}
	}
}

// validateParams checks generation parameters against their documented
// ranges. Violations never fail the build: the upstream service is
// authoritative, so the value is forwarded and a warning describes the
// suspect setting.
func validateParams(params map[string]any) []api.Warning {
	var warnings []api.Warning

	outOfRange := func(setting, detail string) {
		warnings = append(warnings, api.Warning{
			Code:    api.WarnUnsupportedSetting,
			Setting: setting,
			Message: fmt.Sprintf("%s %s", setting, detail),
		})
	}

	if v, ok := params["temperature"].(float64); ok && (v < 0 || v > 2) {
		outOfRange("temperature", fmt.Sprintf("%v is outside [0, 2]", v))
	}
	if v, ok := params["top_p"].(float64); ok && (v < 0 || v > 1) {
		outOfRange("top_p", fmt.Sprintf("%v is outside [0, 1]", v))
	}
	if v, ok := params["frequency_penalty"].(float64); ok && (v < -2 || v > 2) {
		outOfRange("frequency_penalty", fmt.Sprintf("%v is outside [-2, 2]", v))
	}
	if v, ok := params["presence_penalty"].(float64); ok && (v < -2 || v > 2) {
		outOfRange("presence_penalty", fmt.Sprintf("%v is outside [-2, 2]", v))
	}
	if v, ok := params["max_tokens"].(int); ok && v <= 0 {
		outOfRange("max_tokens", fmt.Sprintf("%d must be greater than zero", v))
	}
	if v, ok := params["n"].(int); ok && v <= 0 {
		outOfRange("n", fmt.Sprintf("%d must be greater than zero", v))
	}

	return warnings
}

// supportsMultipleCompletions reports whether the model family accepts a
// completion count parameter.
func supportsMultipleCompletions(model string) bool {
	name := strings.ToLower(model)
	for _, prefix := range noMultiCompletionFamilies {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	return true
}

// putFloat and putInt add a parameter only when it was set at some layer.

func putFloat(params map[string]any, key string, v *float64) {
	if v != nil {
		params[key] = *v
	}
}

func putInt(params map[string]any, key string, v *int) {
	if v != nil {
		params[key] = *v
	}
}
