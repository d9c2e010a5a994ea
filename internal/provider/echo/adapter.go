// Package echo provides a testing adapter that echoes back the user message.
// It produces a deterministic event stream without external API calls, which
// makes it useful for development and for exercising the relay end to end.
package echo

import (
	"context"
	"time"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/observability"
	"github.com/shilvister/devochat/internal/pipeline"
)

const (
	adapterName = "echo"
	chunkDelay  = 10 * time.Millisecond
	chunkSize   = 10
)

// Adapter implements pipeline.Adapter by echoing the last user message.
type Adapter struct{}

// NewAdapter creates a new echo adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Name returns the endpoint name for this adapter.
func (a *Adapter) Name() string {
	return adapterName
}

// Run echoes the trailing text of the last user message back as a sequence of
// text deltas, preceded by a short thinking span, and reports synthetic usage.
func (a *Adapter) Run(ctx context.Context, q *pipeline.Queue, req *domain.ChatRequest, history []domain.Message) {
	em := pipeline.NewEmitter(q)
	defer em.Finish(ctx)

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	text := lastUserText(history)

	em.Thinking(ctx, "echoing "+req.Model)

	runes := []rune(text)
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		em.Text(ctx, string(runes[i:end]))

		select {
		case <-time.After(chunkDelay):
		case <-ctx.Done():
			return
		}
	}

	em.Usage(ctx, domain.TokenUsage{
		InputTokens:  len(runes),
		OutputTokens: len(runes),
	})
}

func lastUserText(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != domain.RoleUser {
			continue
		}
		for j := len(history[i].Parts) - 1; j >= 0; j-- {
			if history[i].Parts[j].Type == domain.PartText {
				return history[i].Parts[j].Text
			}
		}
		return history[i].Text
	}
	return ""
}
