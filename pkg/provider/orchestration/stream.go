package orchestration

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dirigent-llm/dirigent/pkg/api"
)

// toolCallAccumulator tracks incremental tool call assembly for a single
// numeric tool index. Entries are created lazily on first delta and live
// only for the duration of one streaming call.
type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder

	// started records that tool-input-start was emitted; argument deltas
	// buffered before that are emitted only through the final tool-call.
	started bool

	// flushed records that the terminal tool-call event was emitted.
	// Each index flushes at most once.
	flushed bool
}

// streamTransformer is the single-pass state machine that turns upstream
// chunks into the canonical event sequence. One transformer serves exactly
// one streaming call; nothing is shared across calls, so no locking.
type streamTransformer struct {
	emit  func(api.StreamEvent)
	model string

	firstChunk bool
	toolMode   bool

	activeText bool
	textSeq    int

	toolCalls map[int]*toolCallAccumulator

	finishRaw    *string
	chunkUsage   *wireUsage
	wrapperUsage *wireUsage

	flushedCalls int
	warnings     []api.Warning
	finished     bool
}

func newStreamTransformer(model string, emit func(api.StreamEvent)) *streamTransformer {
	return &streamTransformer{
		emit:       emit,
		model:      model,
		firstChunk: true,
		toolCalls:  make(map[int]*toolCallAccumulator),
	}
}

// processChunk applies one upstream chunk to the state machine.
func (t *streamTransformer) processChunk(chunk *wireChunk) {
	if t.firstChunk {
		t.firstChunk = false
		t.emit(api.StreamEvent{
			Type:      api.EventResponseMetadata,
			ModelID:   t.chunkModel(chunk),
			Timestamp: time.Now(),
		})
	}

	result := chunkResult(chunk)
	if result == nil {
		return
	}

	// A chunk without choices is the stream wrapper's final accounting;
	// its usage wins over any per-chunk snapshot.
	if len(result.Choices) == 0 {
		if result.Usage != nil {
			t.wrapperUsage = result.Usage
		}
		return
	}

	choice := result.Choices[0]

	// Any tool-call delta switches the stream into tool-calling mode for
	// its remainder. Tool calls and text are not interleaved in the
	// canonical output, so later text deltas are suppressed outright.
	if len(choice.Delta.ToolCalls) > 0 {
		t.toolMode = true
	}

	// A nil content pointer is a no-op; an explicit empty string is a
	// meaningful zero-length delta and still opens the block.
	if !t.toolMode && choice.Delta.Content != nil {
		t.ensureTextOpen()
		t.emit(api.StreamEvent{
			Type:  api.EventTextDelta,
			ID:    t.textID(),
			Delta: *choice.Delta.Content,
		})
	}

	for _, tc := range choice.Delta.ToolCalls {
		t.applyToolDelta(tc)
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		t.finishRaw = choice.FinishReason
		if canonicalFinishReason(choice.FinishReason).Kind == api.FinishToolCalls {
			t.closeText()
			t.flushToolCalls()
		}
	}

	if result.Usage != nil {
		t.chunkUsage = result.Usage
	}
}

// applyToolDelta folds one incremental tool call entry into its
// accumulator, creating it lazily. Entries without a usable index are
// skipped defensively; the name may arrive in a later chunk than the id.
func (t *streamTransformer) applyToolDelta(tc wireChunkToolCall) {
	if tc.Index == nil {
		slog.Warn("skipping tool call delta without index", "id", tc.ID)
		return
	}
	idx := *tc.Index

	acc := t.toolCalls[idx]
	if acc == nil {
		acc = &toolCallAccumulator{}
		t.toolCalls[idx] = acc
	}

	if tc.ID != "" && acc.id == "" {
		acc.id = tc.ID
	}
	if tc.Function.Name != "" && acc.name == "" {
		acc.name = tc.Function.Name
	}

	// tool-input-start goes out exactly once, as soon as a name is known.
	if !acc.started && acc.name != "" {
		acc.started = true
		t.closeText()
		t.emit(api.StreamEvent{
			Type:     api.EventToolInputStart,
			ID:       acc.id,
			ToolName: acc.name,
		})
	}

	if tc.Function.Arguments != "" {
		acc.args.WriteString(tc.Function.Arguments)
		if acc.started {
			t.emit(api.StreamEvent{
				Type:  api.EventToolInputDelta,
				ID:    acc.id,
				Delta: tc.Function.Arguments,
			})
		}
	}
}

// flushToolCalls emits the terminal events for every accumulator that has
// not flushed yet, in index order. An accumulator that never saw a name is
// flushed with an empty name and a missing_tool_name warning.
func (t *streamTransformer) flushToolCalls() {
	if len(t.toolCalls) == 0 {
		return
	}

	indices := make([]int, 0, len(t.toolCalls))
	for idx := range t.toolCalls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		acc := t.toolCalls[idx]
		if acc.flushed {
			continue
		}
		acc.flushed = true
		t.flushedCalls++

		if !acc.started {
			if acc.name == "" {
				t.warnings = append(t.warnings, api.Warning{
					Code:    api.WarnMissingToolName,
					Message: "streamed tool call never received a function name",
				})
			}
			t.emit(api.StreamEvent{
				Type:     api.EventToolInputStart,
				ID:       acc.id,
				ToolName: acc.name,
			})
		}

		t.emit(api.StreamEvent{Type: api.EventToolInputEnd, ID: acc.id})
		t.emit(api.StreamEvent{
			Type:      api.EventToolCall,
			ID:        acc.id,
			ToolName:  acc.name,
			ToolInput: acc.args.String(),
		})
	}
}

// finish closes the stream after the last chunk: remaining accumulators
// are flushed (a tool call may complete without the upstream ever sending
// the tool-calls finish signal), any open text block is closed, and
// exactly one finish event goes out.
func (t *streamTransformer) finish() {
	if t.finished {
		return
	}
	t.finished = true

	t.closeText()
	t.flushToolCalls()

	t.emit(api.StreamEvent{
		Type:         api.EventFinish,
		FinishReason: t.finalReason(),
		Usage:        t.finalUsage(),
		Warnings:     t.warnings,
	})
}

// fail replaces the terminal finish with a single classified error event.
// The consumer never sees a raw failure from stream consumption.
func (t *streamTransformer) fail(err error) {
	if t.finished {
		return
	}
	t.finished = true

	t.emit(api.StreamEvent{
		Type: api.EventError,
		Err:  Classify(err),
	})
}

// finalReason resolves the finish reason for the terminal event. A flushed
// tool call promotes the reason to tool-calls even when the upstream
// reported a plain stop; with no tool calls the explicit upstream value
// wins, and with neither the reason is unknown.
func (t *streamTransformer) finalReason() api.FinishReason {
	if t.flushedCalls > 0 {
		reason := api.FinishReason{Kind: api.FinishToolCalls}
		if t.finishRaw != nil {
			reason.Raw = *t.finishRaw
		}
		return reason
	}
	return canonicalFinishReason(t.finishRaw)
}

// finalUsage prefers the stream wrapper's aggregate usage over the last
// per-chunk snapshot.
func (t *streamTransformer) finalUsage() *api.Usage {
	wire := t.wrapperUsage
	if wire == nil {
		wire = t.chunkUsage
	}
	if wire == nil {
		return nil
	}
	usage := convertUsage(wire)
	return &usage
}

func (t *streamTransformer) ensureTextOpen() {
	if t.activeText {
		return
	}
	t.activeText = true
	t.emit(api.StreamEvent{Type: api.EventTextStart, ID: t.textID()})
}

func (t *streamTransformer) closeText() {
	if !t.activeText {
		return
	}
	t.emit(api.StreamEvent{Type: api.EventTextEnd, ID: t.textID()})
	t.activeText = false
	t.textSeq++
}

func (t *streamTransformer) textID() string {
	return strconv.Itoa(t.textSeq)
}

// chunkModel picks the model id reported by the chunk, falling back to the
// requested model.
func (t *streamTransformer) chunkModel(chunk *wireChunk) string {
	if result := chunkResult(chunk); result != nil && result.Model != "" {
		return result.Model
	}
	return t.model
}

// chunkResult selects the chunk's completion payload: the orchestration
// result when present, otherwise the raw llm module result.
func chunkResult(chunk *wireChunk) *wireChunkResult {
	if chunk.OrchestrationResult != nil {
		return chunk.OrchestrationResult
	}
	if chunk.ModuleResults != nil {
		return chunk.ModuleResults.LLM
	}
	return nil
}

// parseSSEStream reads SSE chunks from the reader, drives the transformer,
// and guarantees a single terminal event. The channel itself is managed by
// the caller.
//
// Expected format:
//
//	data: {"request_id":"...","orchestration_result":{...}}\n
//	\n
//	data: [DONE]\n
//	\n
//
// A malformed data payload terminates the stream with a classified
// stream-protocol error. Context cancellation stops reading and is not
// reported as a stream failure.
func parseSSEStream(ctx context.Context, body io.Reader, transformer *streamTransformer) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		// Lines without a data field are SSE delimiters or comments.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		if payload == "[DONE]" {
			transformer.finish()
			return
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("malformed SSE payload terminates stream",
				"error", err.Error(),
				"data", truncate(payload, 200),
			)
			transformer.fail(api.NewStreamProtocolError("malformed SSE payload from upstream", err))
			return
		}

		transformer.processChunk(&chunk)
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		transformer.fail(err)
		return
	}

	// EOF without the [DONE] sentinel still ends the stream cleanly; the
	// transformer flushes whatever is pending.
	transformer.finish()
}

// truncate limits a string to maxLen bytes for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
