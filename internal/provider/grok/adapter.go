// Package grok provides a stream adapter for the xAI API. The wire dialect is
// OpenAI-compatible; reasoning arrives as reasoning_content deltas and live
// search citations ride on the final chunk.
package grok

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/observability"
	"github.com/shilvister/devochat/internal/pipeline"
	"github.com/shilvister/devochat/internal/provider/sse"
)

const (
	adapterName = "grok"

	// The API emits this reasoning delta as a keepalive for models that do
	// not expose their reasoning trace.
	thinkingKeepalive = "Thinking..."

	doneSentinel = "[DONE]"
)

// Adapter implements pipeline.Adapter for the xAI API.
type Adapter struct {
	config Config
	client *sse.Client
}

// NewAdapter creates a Grok adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("Grok API key is required")
	}
	return &Adapter{
		config: config,
		client: sse.NewClient(config.Timeout),
	}, nil
}

// Name returns the endpoint name for this adapter.
func (a *Adapter) Name() string {
	return adapterName
}

// Run executes one exchange against the xAI API and feeds the queue.
func (a *Adapter) Run(ctx context.Context, q *pipeline.Queue, req *domain.ChatRequest, history []domain.Message) {
	em := pipeline.NewEmitter(q)
	defer em.Finish(ctx)

	logger := observability.FromContext(ctx)
	body := a.toRequest(req, history)

	if req.Stream {
		a.stream(ctx, em, logger, body)
		return
	}
	a.complete(ctx, em, logger, body)
}

func (a *Adapter) stream(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, body chatRequest) {
	body.Stream = true
	body.StreamOptions = &streamOptions{IncludeUsage: true}

	scanner, err := a.client.Stream(ctx, a.config.BaseURL+"/chat/completions", a.headers(), body)
	if err != nil {
		logger.Error("Grok stream request failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}
	defer scanner.Close()

	var usage domain.TokenUsage

	for scanner.Next() {
		data := scanner.Event().Data
		if data == doneSentinel {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.Warn("skipping malformed stream chunk", zap.Error(err))
			continue
		}

		em.Cite(chunk.Citations...)

		if chunk.Usage != nil {
			usage = toUsage(chunk.Usage)
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.ReasoningContent != "" && strings.TrimSpace(delta.ReasoningContent) != thinkingKeepalive {
			em.Thinking(ctx, delta.ReasoningContent)
		}
		em.Text(ctx, delta.Content)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Grok stream failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	em.Usage(ctx, usage)
}

func (a *Adapter) complete(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, body chatRequest) {
	var resp chatResponse
	if err := a.client.PostJSON(ctx, a.config.BaseURL+"/chat/completions", a.headers(), body, &resp); err != nil {
		logger.Error("Grok call failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	var full string
	if len(resp.Choices) > 0 {
		message := resp.Choices[0].Message
		if message.ReasoningContent != "" {
			full = "<think>\n" + message.ReasoningContent + "\n</think>\n\n"
		}
		full += message.Content
	}

	em.Rechunk(ctx, full)
	em.Cite(resp.Citations...)

	if resp.Usage != nil {
		em.Usage(ctx, toUsage(resp.Usage))
	}
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.config.APIKey}
}

func (a *Adapter) toRequest(req *domain.ChatRequest, history []domain.Message) chatRequest {
	messages := make([]wireMessage, 0, len(history)+1)
	if req.Instructions != "" {
		messages = append(messages, wireMessage{Role: "system", Content: req.Instructions})
	}
	for _, msg := range history {
		messages = append(messages, toWireMessage(msg))
	}

	body := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.EffectiveTemperature(),
	}

	if req.Control.Verbosity && req.Verbosity > 0 {
		body.MaxTokens = domain.TokenBudget(req.Verbosity, domain.MaxVerbosityTokens)
	}

	if req.Control.Reason && req.Reason > 0 {
		body.ReasoningEffort = domain.BinaryTier(req.Reason)
	}

	if req.Search {
		body.SearchParameters = &searchParameters{Mode: "on", ReturnCitations: true}
	}

	return body
}

func toWireMessage(msg domain.Message) wireMessage {
	if msg.Role == domain.RoleAssistant {
		return wireMessage{Role: domain.RoleAssistant, Content: domain.NormalizeAssistantContent(msg.Text)}
	}

	parts := make([]contentPart, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case domain.PartImage:
			parts = append(parts, contentPart{
				Type: "image_url",
				ImageURL: &imageURL{
					URL:    "data:image/jpeg;base64," + part.Content,
					Detail: "high",
				},
			})
		default:
			parts = append(parts, contentPart{Type: "text", Text: part.Text})
		}
	}

	return wireMessage{Role: domain.RoleUser, Content: parts}
}

func toUsage(usage *wireUsage) domain.TokenUsage {
	return domain.TokenUsage{
		InputTokens:     usage.PromptTokens,
		OutputTokens:    usage.CompletionTokens,
		ReasoningTokens: usage.CompletionTokensDetails.ReasoningTokens,
	}
}
