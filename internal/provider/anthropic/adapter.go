// Package anthropic provides a stream adapter for the Anthropic Messages API.
// It decodes the content-block event protocol, including extended thinking,
// MCP tool calls and server-side web search.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/observability"
	"github.com/shilvister/devochat/internal/pipeline"
	"github.com/shilvister/devochat/internal/provider/sse"
)

const (
	adapterName = "claude"

	webSearchToolType = "web_search_20250305"
	mcpBeta           = "mcp-client-2025-04-04"

	// Server-side tools report under the vendor's own name.
	builtinServerName = "Claude"
	webSearchToolName = "web_search"
)

// Adapter implements pipeline.Adapter for the Messages API.
type Adapter struct {
	config Config
	client *sse.Client
}

// NewAdapter creates an Anthropic adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
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

// Run executes one exchange against the Messages API and feeds the queue.
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

func (a *Adapter) stream(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, body messageRequest) {
	body.Stream = true

	scanner, err := a.client.Stream(ctx, a.config.BaseURL+"/v1/messages", a.headers(len(body.MCPServers) > 0), body)
	if err != nil {
		logger.Error("Anthropic stream request failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}
	defer scanner.Close()

	var usage domain.TokenUsage

	for scanner.Next() {
		var ev streamEvent
		if err := json.Unmarshal([]byte(scanner.Event().Data), &ev); err != nil {
			logger.Warn("skipping malformed stream event", zap.Error(err))
			continue
		}

		switch ev.Type {
		case "content_block_start":
			a.handleBlockStart(ctx, em, ev.ContentBlock)
		case "content_block_delta":
			a.handleDelta(ctx, em, ev.Delta)
		case "content_block_stop":
			em.CloseThinking(ctx)
		case "message_start":
			if ev.Message != nil && ev.Message.Usage != nil {
				usage.InputTokens = ev.Message.Usage.InputTokens
			}
		case "message_delta":
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
				if ev.Usage.InputTokens > 0 {
					usage.InputTokens = ev.Usage.InputTokens
				}
			}
		case "error":
			message := "stream error"
			if ev.Error != nil {
				message = ev.Error.Message
			}
			em.Error(ctx, errors.New(message))
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Anthropic stream failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	em.Usage(ctx, usage)
}

func (a *Adapter) handleBlockStart(ctx context.Context, em *pipeline.Emitter, block *contentBlock) {
	if block == nil {
		return
	}

	switch block.Type {
	case "mcp_tool_use":
		em.ToolUse(ctx, block.ID, block.ServerName, block.Name)
	case "server_tool_use":
		em.ToolUse(ctx, block.ID, builtinServerName, block.Name)
	case "mcp_tool_result":
		var result strings.Builder
		for _, chunk := range block.Content {
			result.WriteString(chunk.Text)
		}
		em.ToolResult(ctx, block.ToolUseID, block.IsError, result.String())
	case "web_search_tool_result":
		if _, ok := em.ToolIdentity(block.ToolUseID); !ok {
			em.ToolUse(ctx, block.ToolUseID, builtinServerName, webSearchToolName)
		}

		lines := make([]string, 0, len(block.Content))
		for i, item := range block.Content {
			lines = append(lines, fmt.Sprintf("[%d] %s", i+1, item.Title))
			em.Cite(item.URL)
		}
		em.ToolResult(ctx, block.ToolUseID, false, strings.Join(lines, "\n"))
	}
}

func (a *Adapter) handleDelta(ctx context.Context, em *pipeline.Emitter, delta *blockDelta) {
	if delta == nil {
		return
	}
	switch delta.Type {
	case "thinking_delta":
		em.Thinking(ctx, delta.Thinking)
	case "text_delta":
		em.Text(ctx, delta.Text)
	}
}

func (a *Adapter) complete(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, body messageRequest) {
	var resp messageResponse
	if err := a.client.PostJSON(ctx, a.config.BaseURL+"/v1/messages", a.headers(len(body.MCPServers) > 0), body, &resp); err != nil {
		logger.Error("Anthropic call failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	var thinking, text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "thinking":
			thinking.WriteString(block.Thinking)
		case "text":
			text.WriteString(block.Text)
		}
	}

	var full string
	if thinking.Len() > 0 {
		full = "<think>\n" + thinking.String() + "\n</think>\n\n"
	}
	full += text.String()

	em.Rechunk(ctx, full)

	if resp.Usage != nil {
		em.Usage(ctx, domain.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		})
	}
}

func (a *Adapter) headers(mcp bool) map[string]string {
	headers := map[string]string{
		"x-api-key":         a.config.APIKey,
		"anthropic-version": a.config.Version,
	}
	if mcp {
		headers["anthropic-beta"] = mcpBeta
	}
	return headers
}

func (a *Adapter) toRequest(req *domain.ChatRequest, history []domain.Message) messageRequest {
	messages := make([]wireMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, toWireMessage(msg))
	}

	body := messageRequest{
		Model:       req.Model,
		System:      req.Instructions,
		Messages:    messages,
		Temperature: req.EffectiveTemperature(),
		MaxTokens:   domain.MaxVerbosityTokens,
	}

	if req.Control.Verbosity && req.Verbosity > 0 {
		body.MaxTokens = domain.TokenBudget(req.Verbosity, domain.MaxVerbosityTokens)
	}

	if req.Control.Reason && req.Reason > 0 {
		budget := domain.TokenBudget(req.Reason, domain.MaxReasonTokens)
		body.MaxTokens += budget
		body.Thinking = &thinkingParam{Type: "enabled", BudgetTokens: budget}
	}

	if req.Search {
		body.Tools = []toolParam{{Name: webSearchToolName, Type: webSearchToolType}}
	}

	for _, server := range req.Servers {
		body.MCPServers = append(body.MCPServers, mcpServerSpec{
			Type:               "url",
			URL:                server.URL,
			Name:               server.Name,
			AuthorizationToken: server.AuthorizationToken,
		})
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
				Type: "image",
				Source: &imageSource{
					Type:      "base64",
					MediaType: "image/jpeg",
					Data:      part.Content,
				},
			})
		default:
			parts = append(parts, contentPart{Type: "text", Text: part.Text})
		}
	}

	return wireMessage{Role: domain.RoleUser, Content: parts}
}
