// Package responses provides a stream adapter for the OpenAI Responses API.
// Reasoning arrives as summary text deltas grouped by summary index, and tool
// traffic (MCP calls, built-in web search) arrives as output items.
package responses

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
	adapterName = "gpt"

	// Built-in tools report under the vendor's own name.
	builtinServerName = "GPT"
	webSearchToolName = "web_search"
)

// Adapter implements pipeline.Adapter for the Responses API.
type Adapter struct {
	config Config
	client *sse.Client
}

// NewAdapter creates a Responses API adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
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

// Run executes one exchange against the Responses API and feeds the queue.
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

func (a *Adapter) stream(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, body responseRequest) {
	body.Stream = true

	scanner, err := a.client.Stream(ctx, a.config.BaseURL+"/responses", a.headers(), body)
	if err != nil {
		logger.Error("Responses stream request failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}
	defer scanner.Close()

	// Reasoning summaries come in numbered sections; a section switch gets a
	// paragraph break inside the thinking span.
	var summaryIndex *int

	for scanner.Next() {
		var ev streamEvent
		if err := json.Unmarshal([]byte(scanner.Event().Data), &ev); err != nil {
			logger.Warn("skipping malformed stream event", zap.Error(err))
			continue
		}

		switch ev.Type {
		case "response.reasoning_summary_text.delta":
			if ev.SummaryIndex == nil || summaryIndex == nil || *ev.SummaryIndex != *summaryIndex {
				em.Thinking(ctx, "\n\n")
			}
			summaryIndex = ev.SummaryIndex
			em.Thinking(ctx, ev.Delta)
		case "response.output_text.delta":
			summaryIndex = nil
			em.Text(ctx, ev.Delta)
		case "response.output_item.added":
			a.handleItemAdded(ctx, em, ev.Item)
		case "response.output_item.done":
			a.handleItemDone(ctx, em, ev.Item)
		case "response.completed":
			if ev.Response != nil && ev.Response.Usage != nil {
				em.Usage(ctx, toUsage(ev.Response.Usage))
			}
		case "response.failed", "error":
			message := ev.Message
			if message == "" {
				message = "response failed"
			}
			em.Error(ctx, errors.New(message))
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Responses stream failed", zap.Error(err))
		em.Error(ctx, err)
	}
}

func (a *Adapter) handleItemAdded(ctx context.Context, em *pipeline.Emitter, item *outputItem) {
	if item == nil {
		return
	}
	switch item.Type {
	case "mcp_call":
		em.ToolUse(ctx, item.ID, item.ServerLabel, item.Name)
	case "web_search_call":
		em.ToolUse(ctx, item.ID, builtinServerName, webSearchToolName)
	}
}

func (a *Adapter) handleItemDone(ctx context.Context, em *pipeline.Emitter, item *outputItem) {
	if item == nil {
		return
	}
	if _, ok := em.ToolIdentity(item.ID); !ok {
		return
	}

	switch item.Type {
	case "mcp_call":
		isError := len(item.Error) > 0 && string(item.Error) != "null"
		result := item.Output
		if isError {
			result = decodeErrorText(item.Error)
		}
		em.ToolResult(ctx, item.ID, isError, result)
	case "web_search_call":
		var query string
		if item.Action != nil {
			query = item.Action.Query
		}
		em.ToolResult(ctx, item.ID, item.Status != "completed", query)
	}
}

func (a *Adapter) complete(ctx context.Context, em *pipeline.Emitter, logger *zap.Logger, body responseRequest) {
	var resp responseBody
	if err := a.client.PostJSON(ctx, a.config.BaseURL+"/responses", a.headers(), body, &resp); err != nil {
		logger.Error("Responses call failed", zap.Error(err))
		em.Error(ctx, err)
		return
	}

	text := resp.OutputText
	if text == "" {
		for _, item := range resp.Output {
			if item.Type != "message" {
				continue
			}
			for _, content := range item.Content {
				if content.Type == "output_text" {
					text += content.Text
				}
			}
		}
	}

	em.Rechunk(ctx, text)

	if resp.Usage != nil {
		em.Usage(ctx, toUsage(resp.Usage))
	}
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.config.APIKey}
}

func (a *Adapter) toRequest(req *domain.ChatRequest, history []domain.Message) responseRequest {
	input := make([]wireMessage, 0, len(history))
	for _, msg := range history {
		input = append(input, toWireMessage(msg))
	}

	body := responseRequest{
		Model:        req.Model,
		Temperature:  req.EffectiveTemperature(),
		Instructions: req.Instructions,
		Input:        input,
		// Background execution keeps long responses alive server-side, but
		// the MCP tool transport does not support it.
		Background: req.Stream && len(req.Servers) == 0,
	}

	if req.Control.Verbosity {
		if tier := domain.Tier(req.Verbosity); tier != "" {
			body.Text = &textParam{Verbosity: tier}
		}
	}

	if req.Control.Reason {
		if tier := domain.Tier(req.Reason); tier != "" {
			body.Reasoning = &reasoningParam{Effort: tier, Summary: "auto"}
		}
	}

	switch {
	case req.DeepResearch:
		body.Tools = []any{
			builtinTool{Type: "web_search_preview"},
			builtinTool{Type: "code_interpreter", Container: &container{Type: "auto"}},
		}
	case req.Search:
		body.Tools = []any{builtinTool{Type: "web_search_preview"}}
	}

	for _, server := range req.Servers {
		body.Tools = append(body.Tools, mcpTool{
			Type:            "mcp",
			ServerLabel:     server.Name,
			ServerURL:       server.URL,
			RequireApproval: "never",
			Headers:         map[string]string{"Authorization": "Bearer " + server.AuthorizationToken},
		})
	}

	return body
}

func toWireMessage(msg domain.Message) wireMessage {
	if msg.Role == domain.RoleAssistant {
		return wireMessage{Role: domain.RoleAssistant, Content: domain.NormalizeAssistantContent(msg.Text)}
	}

	parts := make([]inputPart, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case domain.PartImage:
			parts = append(parts, inputPart{
				Type:     "input_image",
				ImageURL: "data:image/jpeg;base64," + part.Content,
			})
		default:
			parts = append(parts, inputPart{Type: "input_text", Text: part.Text})
		}
	}

	return wireMessage{Role: domain.RoleUser, Content: parts}
}

func toUsage(usage *wireUsage) domain.TokenUsage {
	return domain.TokenUsage{
		InputTokens:     usage.InputTokens,
		OutputTokens:    usage.OutputTokens,
		ReasoningTokens: usage.OutputTokensDetails.ReasoningTokens,
	}
}

func decodeErrorText(raw json.RawMessage) string {
	var ec errorContent
	if err := json.Unmarshal(raw, &ec); err == nil && len(ec.Content) > 0 {
		return ec.Content[0].Text
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
