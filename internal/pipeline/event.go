// Package pipeline implements the canonical streaming core: the provider-
// agnostic event vocabulary, the per-request FIFO queue between a provider
// adapter (producer) and the relay loop (consumer), and the wire-level
// rendering of events into the in-band markup clients understand.
package pipeline

import "github.com/shilvister/devochat/internal/domain"

// Kind discriminates canonical stream events.
type Kind int

const (
	// KindTextDelta carries a fragment of answer text.
	KindTextDelta Kind = iota

	// KindThinkingOpen marks the start of a reasoning span.
	KindThinkingOpen

	// KindThinkingDelta carries a fragment of reasoning text.
	KindThinkingDelta

	// KindThinkingClose marks the end of a reasoning span.
	KindThinkingClose

	// KindToolUse marks a tool invocation start.
	KindToolUse

	// KindToolResult carries a completed tool invocation's result.
	KindToolResult

	// KindCitations carries the ordered citation URLs, emitted once after
	// the main content finishes.
	KindCitations

	// KindUsage carries the final token accounting. Never forwarded to the
	// client as content.
	KindUsage

	// KindError carries a terminal provider error message.
	KindError

	// KindEnd is the stream sentinel. Exactly one End terminates every
	// stream, including errored and cancelled ones.
	KindEnd
)

// ToolCall identifies one tool invocation. The identity fields are captured
// at start time; completion events are correlated by ToolID.
type ToolCall struct {
	ToolID     string
	ServerName string
	ToolName   string
	IsError    bool
	Result     string
}

// Event is the canonical unit every adapter pushes onto the relay queue.
type Event struct {
	Kind      Kind
	Text      string
	Tool      *ToolCall
	Citations []string
	Usage     *domain.TokenUsage
}
