package orchestration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dirigent-llm/dirigent/pkg/api"
)

func newCollectingTransformer(model string) (*streamTransformer, *[]api.StreamEvent) {
	events := &[]api.StreamEvent{}
	t := newStreamTransformer(model, func(ev api.StreamEvent) {
		*events = append(*events, ev)
	})
	return t, events
}

func deltaChunk(choice wireChunkChoice) *wireChunk {
	return &wireChunk{
		OrchestrationResult: &wireChunkResult{
			Model:   "phi-4",
			Choices: []wireChunkChoice{choice},
		},
	}
}

func textDeltaChunk(content string) *wireChunk {
	return deltaChunk(wireChunkChoice{Delta: wireChunkDelta{Content: &content}})
}

func finishChunk(reason string) *wireChunk {
	return deltaChunk(wireChunkChoice{FinishReason: &reason})
}

func toolDeltaChunk(index int, id, name, args string) *wireChunk {
	return deltaChunk(wireChunkChoice{
		Delta: wireChunkDelta{
			ToolCalls: []wireChunkToolCall{{
				Index:    &index,
				ID:       id,
				Function: wireChunkFunction{Name: name, Arguments: args},
			}},
		},
	})
}

func eventTypes(events []api.StreamEvent) []api.StreamEventType {
	types := make([]api.StreamEventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func assertEventTypes(t *testing.T, events []api.StreamEvent, want ...api.StreamEventType) {
	t.Helper()
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (full sequence %v)", i, got[i], want[i], got)
		}
	}
}

func TestTransformer_TextSequence(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	tr.processChunk(textDeltaChunk("Hello"))
	tr.processChunk(textDeltaChunk(", world"))
	tr.processChunk(finishChunk("stop"))
	tr.finish()

	assertEventTypes(t, *events,
		api.EventResponseMetadata,
		api.EventTextStart,
		api.EventTextDelta,
		api.EventTextDelta,
		api.EventTextEnd,
		api.EventFinish,
	)

	if (*events)[0].ModelID != "phi-4" {
		t.Errorf("metadata model = %q", (*events)[0].ModelID)
	}
	if (*events)[2].Delta != "Hello" || (*events)[3].Delta != ", world" {
		t.Errorf("deltas = %q, %q", (*events)[2].Delta, (*events)[3].Delta)
	}
	// start, deltas, and end share one block id
	if (*events)[1].ID != (*events)[2].ID || (*events)[1].ID != (*events)[4].ID {
		t.Error("text block events carry mismatched ids")
	}

	final := (*events)[len(*events)-1]
	if final.FinishReason.Kind != api.FinishStop || final.FinishReason.Raw != "stop" {
		t.Errorf("finish reason = %+v", final.FinishReason)
	}
}

func TestTransformer_EmptyDeltaSemantics(t *testing.T) {
	t.Run("nil content is a no-op", func(t *testing.T) {
		tr, events := newCollectingTransformer("phi-4")

		tr.processChunk(deltaChunk(wireChunkChoice{Delta: wireChunkDelta{Role: "assistant"}}))
		tr.finish()

		assertEventTypes(t, *events, api.EventResponseMetadata, api.EventFinish)
	})

	t.Run("empty string still opens the block", func(t *testing.T) {
		tr, events := newCollectingTransformer("phi-4")

		tr.processChunk(textDeltaChunk(""))
		tr.finish()

		assertEventTypes(t, *events,
			api.EventResponseMetadata,
			api.EventTextStart,
			api.EventTextDelta,
			api.EventTextEnd,
			api.EventFinish,
		)
		if (*events)[2].Delta != "" {
			t.Errorf("delta = %q, want empty", (*events)[2].Delta)
		}
	})
}

func TestTransformer_ToolCallAccumulation(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	tr.processChunk(toolDeltaChunk(0, "call_1", "lookup", `{"q":`))
	tr.processChunk(toolDeltaChunk(0, "", "", `"weather"}`))
	tr.processChunk(finishChunk("tool_calls"))
	tr.finish()

	assertEventTypes(t, *events,
		api.EventResponseMetadata,
		api.EventToolInputStart,
		api.EventToolInputDelta,
		api.EventToolInputDelta,
		api.EventToolInputEnd,
		api.EventToolCall,
		api.EventFinish,
	)

	call := (*events)[5]
	if call.ID != "call_1" || call.ToolName != "lookup" {
		t.Errorf("tool call = %+v", call)
	}
	if call.ToolInput != `{"q":"weather"}` {
		t.Errorf("tool input = %q, want concatenated arguments", call.ToolInput)
	}
}

func TestTransformer_LateToolName(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	// Arguments arrive before the function name; they are buffered and
	// surface only through the terminal tool-call event.
	tr.processChunk(toolDeltaChunk(0, "call_1", "", `{"a":`))
	tr.processChunk(toolDeltaChunk(0, "", "lookup", ""))
	tr.processChunk(toolDeltaChunk(0, "", "", `1}`))
	tr.finish()

	assertEventTypes(t, *events,
		api.EventResponseMetadata,
		api.EventToolInputStart,
		api.EventToolInputDelta,
		api.EventToolInputEnd,
		api.EventToolCall,
		api.EventFinish,
	)

	if (*events)[2].Delta != `1}` {
		t.Errorf("only post-start arguments stream as deltas, got %q", (*events)[2].Delta)
	}
	if (*events)[4].ToolInput != `{"a":1}` {
		t.Errorf("tool input = %q, want full buffered arguments", (*events)[4].ToolInput)
	}
}

func TestTransformer_TextSuppressedAfterToolMode(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	tr.processChunk(textDeltaChunk("preamble"))
	tr.processChunk(toolDeltaChunk(0, "call_1", "lookup", "{}"))
	tr.processChunk(textDeltaChunk("stray text after tools"))
	tr.processChunk(finishChunk("tool_calls"))
	tr.finish()

	for i, ev := range *events {
		if ev.Type == api.EventTextDelta && ev.Delta == "stray text after tools" {
			t.Errorf("event %d: text delta emitted after tool mode began", i)
		}
	}
	// The open text block is closed before tool-input-start.
	types := eventTypes(*events)
	endIdx, startIdx := -1, -1
	for i, typ := range types {
		if typ == api.EventTextEnd && endIdx == -1 {
			endIdx = i
		}
		if typ == api.EventToolInputStart && startIdx == -1 {
			startIdx = i
		}
	}
	if endIdx == -1 || startIdx == -1 || endIdx > startIdx {
		t.Errorf("text-end must precede tool-input-start: %v", types)
	}
}

func TestTransformer_FinishReasonPromotion(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	tr.processChunk(toolDeltaChunk(0, "call_1", "lookup", "{}"))
	// Upstream reports a plain stop even though a tool call completed.
	tr.processChunk(finishChunk("stop"))
	tr.finish()

	final := (*events)[len(*events)-1]
	if final.Type != api.EventFinish {
		t.Fatalf("last event = %s", final.Type)
	}
	if final.FinishReason.Kind != api.FinishToolCalls {
		t.Errorf("finish kind = %s, want promotion to tool-calls", final.FinishReason.Kind)
	}
	if final.FinishReason.Raw != "stop" {
		t.Errorf("raw reason = %q, want the upstream value preserved", final.FinishReason.Raw)
	}
}

func TestTransformer_MultipleToolCallsFlushInIndexOrder(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	tr.processChunk(toolDeltaChunk(1, "call_b", "second", "{}"))
	tr.processChunk(toolDeltaChunk(0, "call_a", "first", "{}"))
	tr.finish()

	var calls []api.StreamEvent
	for _, ev := range *events {
		if ev.Type == api.EventToolCall {
			calls = append(calls, ev)
		}
	}
	if len(calls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(calls))
	}
	if calls[0].ID != "call_a" || calls[1].ID != "call_b" {
		t.Errorf("flush order = %q, %q, want index order", calls[0].ID, calls[1].ID)
	}
}

func TestTransformer_MissingIndexSkipped(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	tr.processChunk(deltaChunk(wireChunkChoice{
		Delta: wireChunkDelta{
			ToolCalls: []wireChunkToolCall{{
				ID:       "call_x",
				Function: wireChunkFunction{Name: "orphan"},
			}},
		},
	}))
	tr.finish()

	for _, ev := range *events {
		if ev.Type == api.EventToolCall || ev.Type == api.EventToolInputStart {
			t.Errorf("indexless delta produced %s", ev.Type)
		}
	}
}

func TestTransformer_MissingToolNameWarning(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	tr.processChunk(toolDeltaChunk(0, "call_1", "", `{"a":1}`))
	tr.finish()

	final := (*events)[len(*events)-1]
	if final.Type != api.EventFinish {
		t.Fatalf("last event = %s", final.Type)
	}
	assertWarning(t, final.Warnings, api.WarnMissingToolName, "")

	var call *api.StreamEvent
	for i := range *events {
		if (*events)[i].Type == api.EventToolCall {
			call = &(*events)[i]
		}
	}
	if call == nil {
		t.Fatal("nameless accumulator was never flushed")
	}
	if call.ToolName != "" || call.ToolInput != `{"a":1}` {
		t.Errorf("flushed call = %+v", call)
	}
}

func TestTransformer_WrapperUsageWins(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	chunk := textDeltaChunk("hi")
	chunk.OrchestrationResult.Usage = &wireUsage{TotalTokens: intPtr(3)}
	tr.processChunk(chunk)

	// Choice-free wrapper chunk carrying the aggregate accounting.
	tr.processChunk(&wireChunk{
		OrchestrationResult: &wireChunkResult{
			Usage: &wireUsage{TotalTokens: intPtr(42)},
		},
	})
	tr.finish()

	final := (*events)[len(*events)-1]
	if final.Usage == nil || final.Usage.TotalTokens == nil || *final.Usage.TotalTokens != 42 {
		t.Errorf("usage = %+v, want the wrapper aggregate", final.Usage)
	}
}

func TestTransformer_ChunkUsageFallback(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	chunk := textDeltaChunk("hi")
	chunk.OrchestrationResult.Usage = &wireUsage{TotalTokens: intPtr(3)}
	tr.processChunk(chunk)
	tr.finish()

	final := (*events)[len(*events)-1]
	if final.Usage == nil || final.Usage.TotalTokens == nil || *final.Usage.TotalTokens != 3 {
		t.Errorf("usage = %+v, want the per-chunk snapshot", final.Usage)
	}
}

func TestTransformer_FinishIsTerminal(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")

	tr.processChunk(textDeltaChunk("hi"))
	tr.finish()
	tr.finish()
	tr.fail(errors.New("late failure"))

	finishes := 0
	for _, ev := range *events {
		if ev.Type == api.EventFinish || ev.Type == api.EventError {
			finishes++
		}
	}
	if finishes != 1 {
		t.Errorf("terminal events = %d, want exactly 1", finishes)
	}
}

func TestTransformer_ModuleResultsChunks(t *testing.T) {
	tr, events := newCollectingTransformer("phi-4")
	content := "nested"

	tr.processChunk(&wireChunk{
		ModuleResults: &wireChunkModule{
			LLM: &wireChunkResult{
				Model:   "phi-4-nested",
				Choices: []wireChunkChoice{{Delta: wireChunkDelta{Content: &content}}},
			},
		},
	})
	tr.finish()

	assertEventTypes(t, *events,
		api.EventResponseMetadata,
		api.EventTextStart,
		api.EventTextDelta,
		api.EventTextEnd,
		api.EventFinish,
	)
	if (*events)[0].ModelID != "phi-4-nested" {
		t.Errorf("metadata model = %q, want the chunk's model", (*events)[0].ModelID)
	}
}

func TestParseSSEStream_Done(t *testing.T) {
	stream := "data: {\"orchestration_result\":{\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}}\n" +
		"\n" +
		"data: {\"orchestration_result\":{\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}}\n" +
		"\n" +
		"data: [DONE]\n" +
		"\n"

	tr, events := newCollectingTransformer("phi-4")
	parseSSEStream(context.Background(), strings.NewReader(stream), tr)

	assertEventTypes(t, *events,
		api.EventResponseMetadata,
		api.EventTextStart,
		api.EventTextDelta,
		api.EventTextEnd,
		api.EventFinish,
	)
}

func TestParseSSEStream_EOFWithoutDone(t *testing.T) {
	stream := "data: {\"orchestration_result\":{\"choices\":[{\"index\":0,\"delta\":{\"content\":\"partial\"}}]}}\n"

	tr, events := newCollectingTransformer("phi-4")
	parseSSEStream(context.Background(), strings.NewReader(stream), tr)

	final := (*events)[len(*events)-1]
	if final.Type != api.EventFinish {
		t.Errorf("last event = %s, want a clean finish on upstream EOF", final.Type)
	}
}

func TestParseSSEStream_MalformedPayload(t *testing.T) {
	stream := "data: {\"orchestration_result\":{\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ok\"}}]}}\n" +
		"\n" +
		"data: {not json\n"

	tr, events := newCollectingTransformer("phi-4")
	parseSSEStream(context.Background(), strings.NewReader(stream), tr)

	final := (*events)[len(*events)-1]
	if final.Type != api.EventError {
		t.Fatalf("last event = %s, want a single error event", final.Type)
	}
	var be *api.BridgeError
	if !errors.As(final.Err, &be) || be.Kind != api.ErrorKindStreamProtocol {
		t.Errorf("error = %v, want stream-protocol classification", final.Err)
	}
	for _, ev := range (*events)[:len(*events)-1] {
		if ev.Type == api.EventFinish || ev.Type == api.EventError {
			t.Error("terminal event emitted before the error")
		}
	}
}

func TestParseSSEStream_IgnoresNonDataLines(t *testing.T) {
	stream := ": keep-alive comment\n" +
		"event: message\n" +
		"data: [DONE]\n"

	tr, events := newCollectingTransformer("phi-4")
	parseSSEStream(context.Background(), strings.NewReader(stream), tr)

	assertEventTypes(t, *events, api.EventFinish)
}

func TestParseSSEStream_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := "data: {\"orchestration_result\":{\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}}\n" +
		"data: [DONE]\n"

	tr, events := newCollectingTransformer("phi-4")
	parseSSEStream(ctx, strings.NewReader(stream), tr)

	for _, ev := range *events {
		if ev.Type == api.EventError {
			t.Errorf("cancellation must not surface as a stream failure: %v", ev.Err)
		}
	}
}
