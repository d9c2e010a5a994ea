package pipeline

import (
	"context"
	"strings"

	"github.com/shilvister/devochat/internal/domain"
)

// Sink receives wire-level frames from the relay loop. The HTTP layer
// implements it over an SSE response; tests implement it in memory.
type Sink interface {
	// Content writes one content frame.
	Content(text string) error

	// Error writes one terminal error frame.
	Error(message string) error
}

// Result is what the relay loop hands to conversation persistence.
type Result struct {
	// Text is the accumulated response, markup included.
	Text string

	// Usage is the last-seen token accounting, nil if the stream never
	// delivered one.
	Usage *domain.TokenUsage
}

// Relay is the single consumer of the canonical event queue. It drains events
// in FIFO order, renders text-bearing ones into content frames, retains usage
// for billing, and stops on End, on a terminal error frame, or when ctx
// reports the client gone. Whatever text accumulated by then is returned for
// persistence; the producer's own cleanup path is the safety net for events
// never drained.
func Relay(ctx context.Context, q *Queue, sink Sink) Result {
	var (
		buf   strings.Builder
		usage *domain.TokenUsage
	)

	for {
		select {
		case <-ctx.Done():
			return Result{Text: buf.String(), Usage: usage}

		case ev := <-q.Events():
			switch ev.Kind {
			case KindEnd:
				return Result{Text: buf.String(), Usage: usage}

			case KindError:
				_ = sink.Error(ev.Text)
				return Result{Text: buf.String(), Usage: usage}

			case KindUsage:
				usage = ev.Usage

			default:
				text := Render(ev)
				if text == "" {
					continue
				}
				buf.WriteString(text)
				if err := sink.Content(text); err != nil {
					return Result{Text: buf.String(), Usage: usage}
				}
			}
		}
	}
}
