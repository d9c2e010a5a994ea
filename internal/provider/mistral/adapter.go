// Package mistral provides a stream adapter for the Mistral chat API. The
// dialect is OpenAI-compatible and carries plain text only; there is no
// reasoning channel and no tool traffic.
package mistral

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/observability"
	"github.com/shilvister/devochat/internal/pipeline"
	"github.com/shilvister/devochat/internal/provider/sse"
)

const (
	adapterName  = "mistral"
	doneSentinel = "[DONE]"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Adapter implements pipeline.Adapter for the Mistral API.
type Adapter struct {
	config Config
	client *sse.Client
}

// NewAdapter creates a Mistral adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("Mistral API key is required")
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

// Run executes one exchange against the Mistral API and feeds the queue.
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

	scanner, err := a.client.Stream(ctx, a.config.BaseURL+"/chat/completions", a.headers(), body)
	if err != nil {
		logger.Error("Mistral stream request failed", zap.Error(err))
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

		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}

		if len(chunk.Choices) > 0 {
			em.Text(ctx, chunk.Choices[0].Delta.Content)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Mistral stream failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	em.Usage(ctx, usage)
}

func (a *Adapter) complete(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, body chatRequest) {
	var resp chatResponse
	if err := a.client.PostJSON(ctx, a.config.BaseURL+"/chat/completions", a.headers(), body, &resp); err != nil {
		logger.Error("Mistral call failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	var full string
	if len(resp.Choices) > 0 {
		full = resp.Choices[0].Message.Content
	}
	em.Rechunk(ctx, full)

	if resp.Usage != nil {
		em.Usage(ctx, domain.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		})
	}
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.config.APIKey}
}

func (a *Adapter) toRequest(req *domain.ChatRequest, history []domain.Message) chatRequest {
	messages := make([]wireMessage, 0, len(history)+1)
	if req.Instructions != "" {
		messages = append(messages, wireMessage{
			Role:    "system",
			Content: []contentPart{{Type: "text", Text: req.Instructions}},
		})
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
				Type:     "image_url",
				ImageURL: "data:image/jpeg;base64," + part.Content,
			})
		default:
			parts = append(parts, contentPart{Type: "text", Text: part.Text})
		}
	}

	return wireMessage{Role: domain.RoleUser, Content: parts}
}
