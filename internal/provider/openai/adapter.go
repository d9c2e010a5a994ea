// Package openai provides a stream adapter for OpenAI-compatible chat
// completion backends using the official SDK. The same adapter serves every
// backend that speaks this wire dialect; vendor extensions such as
// reasoning_content and citations are read opportunistically from the
// response's extra fields.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/observability"
	"github.com/shilvister/devochat/internal/pipeline"
)

// Adapter implements pipeline.Adapter for chat-completions backends.
type Adapter struct {
	client openai.Client
	name   string
}

// NewAdapter creates an adapter for one chat-completions backend. The name is
// the endpoint the adapter is mounted under.
func NewAdapter(name string, config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", name)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Adapter{
		client: openai.NewClient(opts...),
		name:   name,
	}, nil
}

// Name returns the endpoint name for this adapter.
func (a *Adapter) Name() string {
	return a.name
}

// Run executes one exchange against the backend and feeds the queue.
func (a *Adapter) Run(ctx context.Context, q *pipeline.Queue, req *domain.ChatRequest, history []domain.Message) {
	em := pipeline.NewEmitter(q)
	defer em.Finish(ctx)

	logger := observability.FromContext(ctx)
	params := a.toParams(req, history)

	if req.Stream {
		a.stream(ctx, em, logger, params)
		return
	}
	a.complete(ctx, em, logger, params)
}

func (a *Adapter) stream(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, params openai.ChatCompletionNewParams) {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var citations []string

	for stream.Next() {
		chunk := stream.Current()

		if urls := decodeCitations(chunk.JSON.ExtraFields["citations"].Raw()); len(urls) > 0 {
			citations = urls
		}

		if chunk.JSON.Usage.Valid() {
			em.Usage(ctx, chunkUsage(chunk.Usage))
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if reasoning := decodeString(delta.JSON.ExtraFields["reasoning_content"].Raw()); reasoning != "" {
			em.Thinking(ctx, reasoning)
		}

		if delta.Content != "" {
			em.Text(ctx, delta.Content)
		}
	}

	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("chat completion stream failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	em.Cite(citations...)
}

func (a *Adapter) complete(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, params openai.ChatCompletionNewParams) {
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("chat completion call failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	var text string
	if len(resp.Choices) > 0 {
		message := resp.Choices[0].Message
		if reasoning := decodeString(message.JSON.ExtraFields["reasoning_content"].Raw()); reasoning != "" {
			text = "<think>\n" + reasoning + "\n</think>\n\n"
		}
		text += message.Content
	}

	em.Rechunk(ctx, text)
	em.Cite(decodeCitations(resp.JSON.ExtraFields["citations"].Raw())...)
	em.Usage(ctx, chunkUsage(resp.Usage))
}

func (a *Adapter) toParams(req *domain.ChatRequest, history []domain.Message) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, msg := range history {
		messages = append(messages, toSDKMessage(msg))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.EffectiveTemperature()),
	}

	if req.Control.Verbosity {
		if budget := domain.TokenBudget(req.Verbosity, domain.MaxVerbosityTokens); budget > 0 {
			params.MaxTokens = openai.Int(int64(budget))
		}
	}

	if req.Control.Reason {
		if tier := domain.Tier(req.Reason); tier != "" {
			params.ReasoningEffort = shared.ReasoningEffort(tier)
		}
	}

	return params
}

func toSDKMessage(msg domain.Message) openai.ChatCompletionMessageParamUnion {
	if msg.Role == domain.RoleAssistant {
		return openai.AssistantMessage(domain.NormalizeAssistantContent(msg.Text))
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case domain.PartImage:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:image/jpeg;base64," + part.Content,
			}))
		default:
			parts = append(parts, openai.TextContentPart(part.Text))
		}
	}

	return openai.UserMessage(parts)
}

func chunkUsage(usage openai.CompletionUsage) domain.TokenUsage {
	return domain.TokenUsage{
		InputTokens:     int(usage.PromptTokens),
		OutputTokens:    int(usage.CompletionTokens),
		ReasoningTokens: int(usage.CompletionTokensDetails.ReasoningTokens),
	}
}

// decodeString parses a raw JSON string field; malformed or absent input
// yields "".
func decodeString(raw string) string {
	if raw == "" {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return ""
	}
	return s
}

// decodeCitations parses a raw JSON array of URL strings.
func decodeCitations(raw string) []string {
	if raw == "" {
		return nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return nil
	}
	return urls
}
