// Package google provides a stream adapter for the Gemini API. Reasoning is
// signalled per part via the thought flag rather than by block boundaries, and
// search grounding arrives as citation metadata on candidates.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/observability"
	"github.com/shilvister/devochat/internal/pipeline"
	"github.com/shilvister/devochat/internal/provider/sse"
)

const (
	adapterName = "gemini"

	// Model role on the Gemini wire; the API does not use "assistant".
	roleModel = "model"

	aliasTemperature = 0.1
	aliasMaxTokens   = 10
)

// Adapter implements pipeline.Adapter for the Gemini API.
type Adapter struct {
	config Config
	client *sse.Client
}

// NewAdapter creates a Gemini adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("Gemini API key is required")
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

// Run executes one exchange against the Gemini API and feeds the queue.
func (a *Adapter) Run(ctx context.Context, q *pipeline.Queue, req *domain.ChatRequest, history []domain.Message) {
	em := pipeline.NewEmitter(q)
	defer em.Finish(ctx)

	logger := observability.FromContext(ctx)
	body := a.toRequest(req, history)

	if req.Stream {
		a.stream(ctx, em, logger, req.Model, body)
		return
	}
	a.complete(ctx, em, logger, req.Model, body)
}

func (a *Adapter) stream(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, model string, body generateRequest) {
	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", a.config.BaseURL, url.PathEscape(model))

	scanner, err := a.client.Stream(ctx, endpoint, a.headers(), body)
	if err != nil {
		logger.Error("Gemini stream request failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}
	defer scanner.Close()

	var usage domain.TokenUsage

	for scanner.Next() {
		var chunk generateResponse
		if err := json.Unmarshal([]byte(scanner.Event().Data), &chunk); err != nil {
			logger.Warn("skipping malformed stream chunk", zap.Error(err))
			continue
		}

		a.consumeCandidates(ctx, em, chunk.Candidates)

		if chunk.UsageMetadata != nil {
			usage = toUsage(chunk.UsageMetadata)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Gemini stream failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	em.Usage(ctx, usage)
}

func (a *Adapter) consumeCandidates(ctx context.Context, em *pipeline.Emitter, candidates []candidate) {
	for _, cand := range candidates {
		if cand.GroundingMetadata != nil {
			for _, chunk := range cand.GroundingMetadata.GroundingChunks {
				if chunk.Web != nil {
					em.Cite(chunk.Web.URI)
				}
			}
		}

		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text == "" {
				continue
			}
			if part.Thought {
				em.Thinking(ctx, part.Text)
			} else {
				em.Text(ctx, part.Text)
			}
		}
	}
}

func (a *Adapter) complete(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, model string, body generateRequest) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.config.BaseURL, url.PathEscape(model))

	var resp generateResponse
	if err := a.client.PostJSON(ctx, endpoint, a.headers(), body, &resp); err != nil {
		logger.Error("Gemini call failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	var thinking, text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.GroundingMetadata != nil {
			for _, chunk := range cand.GroundingMetadata.GroundingChunks {
				if chunk.Web != nil {
					em.Cite(chunk.Web.URI)
				}
			}
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Thought {
				thinking.WriteString(part.Text)
			} else {
				text.WriteString(part.Text)
			}
		}
	}

	var full string
	if thinking.Len() > 0 {
		full = "<think>\n" + thinking.String() + "\n</think>\n\n"
	}
	full += text.String()

	em.Rechunk(ctx, full)

	if resp.UsageMetadata != nil {
		em.Usage(ctx, toUsage(resp.UsageMetadata))
	}
}

// GenerateAlias asks the fast alias model for a short conversation title.
func (a *Adapter) GenerateAlias(ctx context.Context, instructions, text string) (string, error) {
	body := generateRequest{
		Contents: []wireContent{{
			Role:  domain.RoleUser,
			Parts: []wirePart{{Text: text}},
		}},
		SystemInstruction: &wireContent{Parts: []wirePart{{Text: instructions}}},
		GenerationConfig: &generateConfig{
			Temperature:     aliasTemperature,
			MaxOutputTokens: aliasMaxTokens,
		},
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.config.BaseURL, url.PathEscape(a.config.AliasModel))

	var resp generateResponse
	if err := a.client.PostJSON(ctx, endpoint, a.headers(), body, &resp); err != nil {
		return "", fmt.Errorf("alias generation failed: %w", err)
	}

	var alias strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			alias.WriteString(part.Text)
		}
	}

	return strings.TrimSpace(alias.String()), nil
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"x-goog-api-key": a.config.APIKey}
}

func toUsage(meta *usageMetadata) domain.TokenUsage {
	return domain.TokenUsage{
		InputTokens:     meta.PromptTokenCount,
		OutputTokens:    meta.CandidatesTokenCount,
		ReasoningTokens: meta.ThoughtsTokenCount,
	}
}

func (a *Adapter) toRequest(req *domain.ChatRequest, history []domain.Message) generateRequest {
	contents := make([]wireContent, 0, len(history))
	for _, msg := range history {
		contents = append(contents, toWireContent(msg))
	}

	config := &generateConfig{
		Temperature:     req.EffectiveTemperature(),
		MaxOutputTokens: domain.MaxVerbosityTokens,
	}

	if req.Control.Verbosity && req.Verbosity > 0 {
		config.MaxOutputTokens = domain.TokenBudget(req.Verbosity, domain.MaxVerbosityTokens)
	}

	if req.Control.Reason && req.Reason > 0 {
		budget := domain.TokenBudget(req.Reason, domain.MaxReasonTokens)
		config.MaxOutputTokens += budget
		config.ThinkingConfig = &thinkingConfig{
			ThinkingBudget:  budget,
			IncludeThoughts: true,
		}
	}

	body := generateRequest{
		Contents:         contents,
		GenerationConfig: config,
	}

	if req.Instructions != "" {
		body.SystemInstruction = &wireContent{Parts: []wirePart{{Text: req.Instructions}}}
	}

	if req.Search {
		body.Tools = []wireTool{{GoogleSearch: &struct{}{}}}
	}

	return body
}

func toWireContent(msg domain.Message) wireContent {
	if msg.Role == domain.RoleAssistant {
		return wireContent{
			Role:  roleModel,
			Parts: []wirePart{{Text: domain.NormalizeAssistantContent(msg.Text)}},
		}
	}

	parts := make([]wirePart, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case domain.PartImage:
			parts = append(parts, wirePart{InlineData: &inlineData{
				MimeType: "image/jpeg",
				Data:     part.Content,
			}})
		default:
			parts = append(parts, wirePart{Text: part.Text})
		}
	}

	return wireContent{Role: domain.RoleUser, Parts: parts}
}
