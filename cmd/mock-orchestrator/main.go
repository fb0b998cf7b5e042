// Command mock-orchestrator runs a deterministic orchestration service
// for development and conformance testing. It returns predictable
// responses based on request content analysis and supports both the
// unified v2 envelope and the legacy orchestration_config envelope.
//
// Configuration:
//
//	MOCK_PORT        - Listen port (default: 9091)
//	MOCK_LEGACY_ONLY - When set, reject the unified envelope with a 400
//	                   so clients exercise their legacy fallback
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9091"
	}
	legacyOnly := os.Getenv("MOCK_LEGACY_ONLY") != ""

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/completion", func(w http.ResponseWriter, r *http.Request) {
		handleCompletion(w, r, legacyOnly)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock orchestrator starting", "port", port, "legacy_only", legacyOnly)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock orchestrator failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock orchestrator shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type completionRequest struct {
	Config              *moduleWrapper `json:"config"`
	OrchestrationConfig *legacyWrapper `json:"orchestration_config"`
	Stream              bool           `json:"stream"`
}

type moduleWrapper struct {
	Modules moduleConfig `json:"modules"`
}

type legacyWrapper struct {
	ModuleConfigurations moduleConfig `json:"module_configurations"`
}

type moduleConfig struct {
	LLM        llmModule  `json:"llm"`
	Templating templating `json:"templating"`
	Tools      []any      `json:"tools,omitempty"`
}

type llmModule struct {
	ModelName string `json:"model_name"`
}

type templating struct {
	Messages []wireMessage `json:"messages"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// --- Response types ---

type completionResponse struct {
	RequestID           string    `json:"request_id"`
	OrchestrationResult llmResult `json:"orchestration_result"`
}

type llmResult struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []choice  `json:"choices"`
	Usage   *tokenUse `json:"usage,omitempty"`
}

type choice struct {
	Index        int        `json:"index"`
	Message      resultMsg  `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type resultMsg struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function funcCall `json:"function"`
}

type funcCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type tokenUse struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Handler ---

func handleCompletion(w http.ResponseWriter, r *http.Request, legacyOnly bool) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var modules *moduleConfig
	switch {
	case req.Config != nil:
		if legacyOnly {
			writeError(w, http.StatusBadRequest, `unknown field "config"`)
			return
		}
		modules = &req.Config.Modules
	case req.OrchestrationConfig != nil:
		modules = &req.OrchestrationConfig.ModuleConfigurations
	default:
		writeError(w, http.StatusBadRequest, "request carries no module configuration")
		return
	}

	// Scripted failures, triggered by the prompt text.
	prompt := strings.ToLower(lastUserMessage(modules))
	switch {
	case strings.Contains(prompt, "trigger rate limit"):
		writeError(w, http.StatusTooManyRequests, "quota exceeded for deployment")
		return
	case strings.Contains(prompt, "trigger auth error"):
		writeError(w, http.StatusUnauthorized, "token invalid or expired")
		return
	case strings.Contains(prompt, "trigger content filter"):
		writeError(w, http.StatusBadRequest, "prompt filtered by content management policy")
		return
	}

	if req.Stream {
		handleStreaming(w, modules, prompt)
		return
	}

	resp := classifyAndRespond(modules, prompt)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func classifyAndRespond(modules *moduleConfig, prompt string) completionResponse {
	if len(modules.Tools) > 0 {
		return toolCallResponse(modules)
	}
	text := "Hello, nice day!"
	if strings.Contains(prompt, "count from 1 to 5") {
		text = "1, 2, 3, 4, 5"
	}
	return makeTextResponse(modules, text, "stop")
}

func makeTextResponse(modules *moduleConfig, text, finish string) completionResponse {
	return completionResponse{
		RequestID: "mock-req-1",
		OrchestrationResult: llmResult{
			ID:    "mock-res-1",
			Model: modelName(modules),
			Choices: []choice{{
				Message:      resultMsg{Role: "assistant", Content: text},
				FinishReason: finish,
			}},
			Usage: &tokenUse{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
}

func toolCallResponse(modules *moduleConfig) completionResponse {
	return completionResponse{
		RequestID: "mock-req-tool",
		OrchestrationResult: llmResult{
			ID:    "mock-res-tool",
			Model: modelName(modules),
			Choices: []choice{{
				Message: resultMsg{
					Role: "assistant",
					ToolCalls: []toolCall{{
						ID:   "call_mock_1",
						Type: "function",
						Function: funcCall{
							Name:      "get_weather",
							Arguments: `{"location":"San Francisco","unit":"celsius"}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
			Usage: &tokenUse{PromptTokens: 20, CompletionTokens: 15, TotalTokens: 35},
		},
	}
}

// --- Streaming ---

func handleStreaming(w http.ResponseWriter, modules *moduleConfig, prompt string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	model := modelName(modules)

	if len(modules.Tools) > 0 {
		streamToolCall(w, flusher, model)
		return
	}

	tokens := []string{"Hello", ", ", "nice", " ", "day", "!"}
	if strings.Contains(prompt, "count from 1 to 5") {
		tokens = []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	}

	writeChunk(w, model, map[string]any{"role": "assistant"}, nil)
	flusher.Flush()

	for _, token := range tokens {
		writeChunk(w, model, map[string]any{"content": token}, nil)
		flusher.Flush()
	}

	finish := "stop"
	writeChunk(w, model, map[string]any{}, &finish)
	writeUsageChunk(w, model, len(tokens))
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// streamToolCall emits a tool call the way real deployments do: id and
// name in the first delta, arguments split across later ones.
func streamToolCall(w http.ResponseWriter, flusher http.Flusher, model string) {
	idx := 0
	deltas := []map[string]any{
		{"tool_calls": []any{map[string]any{
			"index": idx, "id": "call_mock_1", "type": "function",
			"function": map[string]any{"name": "get_weather", "arguments": ""},
		}}},
		{"tool_calls": []any{map[string]any{
			"index":    idx,
			"function": map[string]any{"arguments": `{"location":`},
		}}},
		{"tool_calls": []any{map[string]any{
			"index":    idx,
			"function": map[string]any{"arguments": `"San Francisco"}`},
		}}},
	}

	for _, delta := range deltas {
		writeChunk(w, model, delta, nil)
		flusher.Flush()
	}

	finish := "tool_calls"
	writeChunk(w, model, map[string]any{}, &finish)
	writeUsageChunk(w, model, 8)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeChunk(w http.ResponseWriter, model string, delta map[string]any, finish *string) {
	chunk := map[string]any{
		"request_id": "mock-req-stream",
		"orchestration_result": map[string]any{
			"id":    "mock-res-stream",
			"model": model,
			"choices": []any{map[string]any{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		},
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// writeUsageChunk emits the choice-free wrapper chunk carrying aggregate
// accounting.
func writeUsageChunk(w http.ResponseWriter, model string, tokenCount int) {
	chunk := map[string]any{
		"request_id": "mock-req-stream",
		"orchestration_result": map[string]any{
			"id":      "mock-res-stream",
			"model":   model,
			"choices": []any{},
			"usage": map[string]any{
				"prompt_tokens":     10,
				"completion_tokens": tokenCount,
				"total_tokens":      10 + tokenCount,
			},
		},
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":       code,
			"message":    message,
			"request_id": "mock-req-err",
			"location":   "mock",
		},
	})
}

// --- Helpers ---

func modelName(modules *moduleConfig) string {
	if modules.LLM.ModelName != "" {
		return modules.LLM.ModelName
	}
	return "mock-model"
}

func lastUserMessage(modules *moduleConfig) string {
	messages := modules.Templating.Messages
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		switch v := messages[i].Content.(type) {
		case string:
			return v
		case []any:
			for _, part := range v {
				if m, ok := part.(map[string]any); ok {
					if t, ok := m["type"].(string); ok && t == "text" {
						if text, ok := m["text"].(string); ok {
							return text
						}
					}
				}
			}
		}
	}
	return ""
}
