package pipeline

import (
	"context"
	"time"

	"github.com/shilvister/devochat/internal/domain"
)

// Non-streaming providers are normalized to look streaming: the full response
// text is re-chunked into fixed-size slices with a small delay between them.
const (
	rechunkSize  = 10
	rechunkDelay = 30 * time.Millisecond
)

// Emitter wraps a queue with the stateful emission discipline shared by all
// adapters: thinking spans open lazily and close on the first non-thinking
// content, tool identities are retained from start to completion, and
// citations are buffered until Finish.
type Emitter struct {
	q         *Queue
	thinking  bool
	citations []string
	tools     map[string]ToolCall
	finished  bool
}

// NewEmitter creates an emitter over the queue.
func NewEmitter(q *Queue) *Emitter {
	return &Emitter{q: q, tools: make(map[string]ToolCall)}
}

// Thinking emits a reasoning fragment, opening the thinking span first if
// none is open.
func (e *Emitter) Thinking(ctx context.Context, delta string) {
	if !e.thinking {
		e.thinking = true
		e.q.Push(ctx, Event{Kind: KindThinkingOpen})
	}
	if delta != "" {
		e.q.Push(ctx, Event{Kind: KindThinkingDelta, Text: delta})
	}
}

// CloseThinking ends the open thinking span, if any.
func (e *Emitter) CloseThinking(ctx context.Context) {
	if e.thinking {
		e.thinking = false
		e.q.Push(ctx, Event{Kind: KindThinkingClose})
	}
}

// Text emits an answer fragment, closing any open thinking span first.
func (e *Emitter) Text(ctx context.Context, delta string) {
	if delta == "" {
		return
	}
	e.CloseThinking(ctx)
	e.q.Push(ctx, Event{Kind: KindTextDelta, Text: delta})
}

// ToolUse records a tool invocation start. The identity is retained so the
// completion event can be correlated even when the vendor omits it there.
func (e *Emitter) ToolUse(ctx context.Context, toolID, serverName, toolName string) {
	call := ToolCall{ToolID: toolID, ServerName: serverName, ToolName: toolName}
	e.tools[toolID] = call
	e.q.Push(ctx, Event{Kind: KindToolUse, Tool: &call})
}

// ToolIdentity returns the identity recorded at ToolUse time.
func (e *Emitter) ToolIdentity(toolID string) (ToolCall, bool) {
	call, ok := e.tools[toolID]
	return call, ok
}

// ToolResult emits a tool completion correlated by id.
func (e *Emitter) ToolResult(ctx context.Context, toolID string, isError bool, result string) {
	call := e.tools[toolID]
	call.ToolID = toolID
	call.IsError = isError
	call.Result = result
	e.q.Push(ctx, Event{Kind: KindToolResult, Tool: &call})
}

// Cite buffers citation URLs for the single Citations event at Finish.
func (e *Emitter) Cite(urls ...string) {
	e.citations = append(e.citations, urls...)
}

// Usage emits the final token accounting.
func (e *Emitter) Usage(ctx context.Context, usage domain.TokenUsage) {
	e.q.Push(ctx, Event{Kind: KindUsage, Usage: &usage})
}

// Error emits a terminal provider error.
func (e *Emitter) Error(ctx context.Context, err error) {
	if err == nil {
		return
	}
	e.q.Push(ctx, Event{Kind: KindError, Text: err.Error()})
}

// Rechunk streams pre-assembled text as fixed-size deltas with the configured
// inter-chunk delay, stopping early on cancellation.
func (e *Emitter) Rechunk(ctx context.Context, text string) {
	runes := []rune(text)
	for i := 0; i < len(runes); i += rechunkSize {
		end := i + rechunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if !e.q.Push(ctx, Event{Kind: KindTextDelta, Text: string(runes[i:end])}) {
			return
		}

		select {
		case <-time.After(rechunkDelay):
		case <-ctx.Done():
			return
		}
	}
}

// Finish runs the guaranteed-cleanup path: it closes a dangling thinking
// span, flushes buffered citations, and pushes the End sentinel. Meant to be
// deferred at the top of every adapter Run; safe to call once only.
func (e *Emitter) Finish(ctx context.Context) {
	if e.finished {
		return
	}
	e.finished = true

	e.CloseThinking(ctx)
	if len(e.citations) > 0 {
		e.q.Push(ctx, Event{Kind: KindCitations, Citations: e.citations})
	}
	e.q.End(ctx)
}
