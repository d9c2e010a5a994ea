package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/httpserver/middleware"
	"github.com/shilvister/devochat/internal/observability"
	"github.com/shilvister/devochat/internal/pipeline"
	"github.com/shilvister/devochat/internal/provider/registry"
	redisstore "github.com/shilvister/devochat/internal/store/redis"
)

// historyWindow is how many prior messages are replayed as model context.
const historyWindow = 6

// defaultAlias is returned when alias generation fails.
const defaultAlias = "New Chat"

// AliasGenerator produces a short conversation title from its first message.
type AliasGenerator interface {
	GenerateAlias(ctx context.Context, instructions, text string) (string, error)
}

// Handler handles HTTP requests.
type Handler struct {
	registry      *registry.Registry
	gate          *domain.PermissionGate
	prompts       domain.Prompts
	resolver      *domain.PartResolver
	mcpDirectory  domain.MCPDirectory
	conversations domain.ConversationStore
	alias         AliasGenerator
}

// NewHandler creates a new HTTP handler (DI constructor). alias may be nil
// when no alias backend is configured.
func NewHandler(
	reg *registry.Registry,
	gate *domain.PermissionGate,
	prompts domain.Prompts,
	resolver *domain.PartResolver,
	mcpDirectory domain.MCPDirectory,
	conversations domain.ConversationStore,
	alias AliasGenerator,
) *Handler {
	return &Handler{
		registry:      reg,
		gate:          gate,
		prompts:       prompts,
		resolver:      resolver,
		mcpDirectory:  mcpDirectory,
		conversations: conversations,
		alias:         alias,
	}
}

// HandleChat runs one chat exchange against the endpoint's provider and
// streams the response as SSE frames.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	endpoint := r.PathValue("provider")
	adapter, err := h.registry.Get(endpoint)
	if err != nil {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	req := domain.DefaultChatRequest()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx = observability.WithProvider(ctx, endpoint)
	ctx = observability.WithModel(ctx, req.Model)
	ctx = observability.WithConversationID(ctx, req.ConversationID)
	logger := observability.FromContext(ctx)

	sink, ok := newSSESink(w)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	errMsg, rate, allowed := h.gate.Check(user, &req)
	if !allowed {
		logger.Warn("request rejected", zap.String("reason", errMsg))
		_ = sink.Error(errMsg)
		return
	}

	servers, mcpErr := h.mcpDirectory.Resolve(ctx, req.MCP, user)
	if mcpErr != "" {
		_ = sink.Error(mcpErr)
		return
	}
	req.Servers = servers
	req.Instructions = domain.BuildInstructions(h.prompts, &req)

	userMessage := domain.Message{Role: domain.RoleUser, Parts: req.UserMessage}

	history, err := h.conversations.History(ctx, user.UserID, req.ConversationID, historyWindow)
	if err != nil {
		logger.Error("history fetch failed", zap.Error(err))
		_ = sink.Error("conversation unavailable")
		return
	}
	history = append(history, userMessage)

	resolved := h.resolver.ResolveMessages(ctx, history)
	if req.DAN && h.prompts.DAN != "" {
		domain.AppendPersonaSuffix(resolved)
	}

	logger.Info("chat request started",
		zap.String("username", user.Name),
		zap.Bool("stream", req.Stream),
		zap.Int("history", len(resolved)))

	// The producer gets its own cancellation scope: it is cancelled when the
	// relay stops for any reason, so a blocked Push can never leak it.
	producerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q := pipeline.NewQueue()
	go adapter.Run(producerCtx, q, &req, resolved)

	result := pipeline.Relay(ctx, q, sink)
	cancel()

	h.persistExchange(ctx, user, &req, userMessage, result, rate)
}

// persistExchange settles the exchange after the relay stops, regardless of
// how it stopped. Runs on a context detached from the client connection so a
// disconnect cannot abort persistence.
func (h *Handler) persistExchange(ctx context.Context, user domain.User, req *domain.ChatRequest, userMessage domain.Message, result pipeline.Result, rate domain.BillingRate) {
	logger := observability.FromContext(ctx)

	var usage domain.TokenUsage
	if result.Usage != nil {
		usage = *result.Usage
	}

	cost, err := h.conversations.AppendExchange(context.WithoutCancel(ctx), user, req, userMessage, result.Text, usage, rate)
	if err != nil {
		logger.Error("exchange persistence failed", zap.Error(err))
		return
	}

	logger.Info("exchange persisted",
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Int("reasoning_tokens", usage.ReasoningTokens),
		zap.Float64("cost", cost))
}

type aliasRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// HandleChatAlias generates and stores a short title for a conversation.
func (h *Handler) HandleChatAlias(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req aliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if h.alias == nil {
		writeJSON(w, http.StatusOK, map[string]string{"alias": defaultAlias})
		return
	}

	alias, err := h.alias.GenerateAlias(ctx, h.prompts.ChatAlias, req.Text)
	if err != nil {
		logger.Error("alias generation failed", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"alias": defaultAlias, "error": err.Error()})
		return
	}

	if err := h.conversations.Rename(ctx, user.UserID, req.ConversationID, alias); err != nil {
		logger.Error("alias save failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]string{"alias": alias})
}

// HandleNewConversation allocates an empty chat conversation.
func (h *Handler) HandleNewConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	summary, err := h.conversations.CreateConversation(ctx, user.UserID, "chat")
	if err != nil {
		observability.FromContext(ctx).Error("conversation create failed", zap.Error(err))
		http.Error(w, "conversation create failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// HandleListConversations lists the user's conversations.
func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	summaries, err := h.conversations.ListConversations(ctx, user.UserID)
	if err != nil {
		observability.FromContext(ctx).Error("conversation list failed", zap.Error(err))
		http.Error(w, "conversation list failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

// HandleGetConversation returns the full conversation record.
func (h *Handler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	record, err := h.conversations.GetConversation(ctx, user.UserID, r.PathValue("conversation_id"))
	if errors.Is(err, redisstore.ErrNotFound) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		observability.FromContext(ctx).Error("conversation fetch failed", zap.Error(err))
		http.Error(w, "conversation fetch failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// HandleRenameConversation sets the conversation alias.
func (h *Handler) HandleRenameConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var body struct {
		Alias string `json:"alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	conversationID := r.PathValue("conversation_id")
	if err := h.conversations.Rename(ctx, user.UserID, conversationID, body.Alias); err != nil {
		observability.FromContext(ctx).Error("rename failed", zap.Error(err))
		http.Error(w, "rename failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"conversation_id": conversationID,
		"new_alias":       body.Alias,
	})
}

// HandleStarConversation sets or clears the starred flag.
func (h *Handler) HandleStarConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var body struct {
		Starred bool `json:"starred"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	conversationID := r.PathValue("conversation_id")
	if err := h.conversations.Star(ctx, user.UserID, conversationID, body.Starred); err != nil {
		observability.FromContext(ctx).Error("star update failed", zap.Error(err))
		http.Error(w, "star update failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"starred":         body.Starred,
	})
}

// HandleDeleteConversation removes one conversation.
func (h *Handler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conversationID := r.PathValue("conversation_id")
	if err := h.conversations.Delete(ctx, user.UserID, conversationID); err != nil {
		observability.FromContext(ctx).Error("delete failed", zap.Error(err))
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": conversationID})
}

// HandleDeleteAllConversations removes every conversation owned by the user.
func (h *Handler) HandleDeleteAllConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	if err := h.conversations.DeleteAll(ctx, user.UserID); err != nil {
		observability.FromContext(ctx).Error("delete all failed", zap.Error(err))
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleTruncateConversation drops all messages at the given index and after,
// for regenerate-from-here flows.
func (h *Handler) HandleTruncateConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	startIndex, err := strconv.Atoi(r.PathValue("start_index"))
	if err != nil || startIndex < 0 {
		http.Error(w, "invalid start index", http.StatusBadRequest)
		return
	}

	conversationID := r.PathValue("conversation_id")
	if err := h.conversations.TruncateFrom(ctx, user.UserID, conversationID, startIndex); err != nil {
		observability.FromContext(ctx).Error("truncate failed", zap.Error(err))
		http.Error(w, "truncate failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"start_index":     startIndex,
	})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
