// Package redis implements the durable user and conversation stores on Redis.
// Conversation history is an append-only list per conversation; user counters
// are mutated exclusively through atomic hash increments so concurrent
// exchanges never race on a read-modify-write window.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/observability"
)

// ErrNotFound is returned when a user, token, or conversation does not exist.
var ErrNotFound = errors.New("not found")

// Store implements domain.UserStore and domain.ConversationStore.
type Store struct {
	client *redis.Client
}

// NewStore creates a store over the given Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func userKey(userID string) string {
	return "user:" + userID
}

func tokenKey(token string) string {
	return "token:" + token
}

func convKey(userID, conversationID string) string {
	return "conv:" + userID + ":" + conversationID
}

func convLogKey(userID, conversationID string) string {
	return convKey(userID, conversationID) + ":log"
}

func convIndexKey(userID string) string {
	return userKey(userID) + ":convs"
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	fields, err := s.client.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return domain.User{}, fmt.Errorf("fetching user %s: %w", userID, err)
	}
	if len(fields) == 0 {
		return domain.User{}, ErrNotFound
	}

	return domain.User{
		UserID:         userID,
		Name:           fields["name"],
		Email:          fields["email"],
		Billing:        parseFloat(fields["billing"]),
		Admin:          fields["admin"] == "1",
		Trial:          fields["trial"] == "1",
		TrialRemaining: parseInt(fields["trial_remaining"]),
	}, nil
}

// UserByToken resolves an opaque session token to a user.
func (s *Store) UserByToken(ctx context.Context, token string) (domain.User, error) {
	userID, err := s.client.Get(ctx, tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("resolving token: %w", err)
	}
	return s.GetUser(ctx, userID)
}

// CreateConversation allocates an empty conversation of the given type.
func (s *Store) CreateConversation(ctx context.Context, userID, convType string) (domain.ConversationSummary, error) {
	now := time.Now().UTC()
	summary := domain.ConversationSummary{
		UserID:         userID,
		ConversationID: uuid.NewString(),
		Type:           convType,
		CreatedAt:      now,
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, convKey(userID, summary.ConversationID), map[string]any{
		"conversation_id": summary.ConversationID,
		"type":            convType,
		"alias":           "",
		"starred":         "0",
		"created_at":      now.Format(time.RFC3339Nano),
	})
	pipe.ZAdd(ctx, convIndexKey(userID), redis.Z{
		Score:  float64(now.UnixNano()),
		Member: summary.ConversationID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.ConversationSummary{}, fmt.Errorf("creating conversation: %w", err)
	}

	return summary, nil
}

// ListConversations returns the user's conversations, starred first, then by
// starred time, then by creation time, newest first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	ids, err := s.client.ZRevRange(ctx, convIndexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	logger := observability.FromContext(ctx)
	summaries := make([]domain.ConversationSummary, 0, len(ids))
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, convKey(userID, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("fetching conversation %s: %w", id, err)
		}
		if len(fields) == 0 {
			logger.Warn("conversation index entry without record", zap.String("conversation_id", id))
			continue
		}
		summaries = append(summaries, toSummary(userID, fields))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.Starred != b.Starred {
			return a.Starred
		}
		if a.Starred && b.Starred && a.StarredAt != nil && b.StarredAt != nil && !a.StarredAt.Equal(*b.StarredAt) {
			return a.StarredAt.After(*b.StarredAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	return summaries, nil
}

// GetConversation fetches the full record including the message log.
func (s *Store) GetConversation(ctx context.Context, userID, conversationID string) (*domain.ConversationRecord, error) {
	fields, err := s.client.HGetAll(ctx, convKey(userID, conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching conversation %s: %w", conversationID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	messages, err := s.History(ctx, userID, conversationID, 0)
	if err != nil {
		return nil, err
	}

	var mcp []string
	if raw := fields["mcp"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &mcp)
	}

	return &domain.ConversationRecord{
		ConversationID: conversationID,
		Alias:          fields["alias"],
		Model:          fields["model"],
		Temperature:    parseFloat(fields["temperature"]),
		Reason:         parseFloat(fields["reason"]),
		Verbosity:      parseFloat(fields["verbosity"]),
		SystemMessage:  fields["system_message"],
		Inference:      fields["inference"] == "1",
		Search:         fields["search"] == "1",
		DeepResearch:   fields["deep_research"] == "1",
		DAN:            fields["dan"] == "1",
		MCP:            mcp,
		Messages:       messages,
	}, nil
}

// History returns the last n messages; n <= 0 returns the whole log.
func (s *Store) History(ctx context.Context, userID, conversationID string, n int) ([]domain.Message, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}

	raw, err := s.client.LRange(ctx, convLogKey(userID, conversationID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}

	logger := observability.FromContext(ctx)
	messages := make([]domain.Message, 0, len(raw))
	for _, entry := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			logger.Warn("skipping unreadable history entry", zap.Error(err))
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// AppendExchange appends the user/assistant pair, refreshes the request
// metadata on the record, and settles billing in the same transaction.
func (s *Store) AppendExchange(ctx context.Context, user domain.User, req *domain.ChatRequest, userMessage domain.Message, assistantText string, usage domain.TokenUsage, rate domain.BillingRate) (float64, error) {
	if assistantText == "" {
		assistantText = domain.EmptyResponsePlaceholder
	}

	userRaw, err := json.Marshal(userMessage)
	if err != nil {
		return 0, fmt.Errorf("encoding user message: %w", err)
	}
	assistantRaw, err := json.Marshal(domain.Message{Role: domain.RoleAssistant, Text: assistantText})
	if err != nil {
		return 0, fmt.Errorf("encoding assistant message: %w", err)
	}

	mcpRaw, _ := json.Marshal(req.MCP)
	now := time.Now().UTC()
	cost := domain.Cost(usage, rate)

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, convLogKey(user.UserID, req.ConversationID), userRaw, assistantRaw)
	pipe.HSet(ctx, convKey(user.UserID, req.ConversationID), map[string]any{
		"conversation_id": req.ConversationID,
		"model":           req.Model,
		"temperature":     formatFloat(req.Temperature),
		"reason":          formatFloat(req.Reason),
		"verbosity":       formatFloat(req.Verbosity),
		"system_message":  req.SystemMessage,
		"inference":       boolField(req.Inference),
		"search":          boolField(req.Search),
		"deep_research":   boolField(req.DeepResearch),
		"dan":             boolField(req.DAN),
		"mcp":             string(mcpRaw),
	})
	pipe.HSetNX(ctx, convKey(user.UserID, req.ConversationID), "type", "chat")
	pipe.HSetNX(ctx, convKey(user.UserID, req.ConversationID), "starred", "0")
	pipe.HSetNX(ctx, convKey(user.UserID, req.ConversationID), "created_at", now.Format(time.RFC3339Nano))
	pipe.ZAddNX(ctx, convIndexKey(user.UserID), redis.Z{
		Score:  float64(now.UnixNano()),
		Member: req.ConversationID,
	})

	if user.Trial {
		pipe.HIncrBy(ctx, userKey(user.UserID), "trial_remaining", -1)
	} else if cost > 0 {
		pipe.HIncrByFloat(ctx, userKey(user.UserID), "billing", cost)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("appending exchange: %w", err)
	}

	return cost, nil
}

// Rename sets the conversation alias.
func (s *Store) Rename(ctx context.Context, userID, conversationID, alias string) error {
	return s.client.HSet(ctx, convKey(userID, conversationID), "alias", alias).Err()
}

// Star sets or clears the starred flag.
func (s *Store) Star(ctx context.Context, userID, conversationID string, starred bool) error {
	fields := map[string]any{"starred": boolField(starred)}
	if starred {
		fields["starred_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	} else {
		fields["starred_at"] = ""
	}
	return s.client.HSet(ctx, convKey(userID, conversationID), fields).Err()
}

// Delete removes one conversation.
func (s *Store) Delete(ctx context.Context, userID, conversationID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, convKey(userID, conversationID), convLogKey(userID, conversationID))
	pipe.ZRem(ctx, convIndexKey(userID), conversationID)
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteAll removes every conversation owned by the user.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	ids, err := s.client.ZRange(ctx, convIndexKey(userID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, convKey(userID, id), convLogKey(userID, id))
	}
	pipe.Del(ctx, convIndexKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}

// TruncateFrom drops all messages at index startIndex and after.
func (s *Store) TruncateFrom(ctx context.Context, userID, conversationID string, startIndex int) error {
	key := convLogKey(userID, conversationID)
	if startIndex <= 0 {
		return s.client.Del(ctx, key).Err()
	}
	return s.client.LTrim(ctx, key, 0, int64(startIndex-1)).Err()
}

func toSummary(userID string, fields map[string]string) domain.ConversationSummary {
	summary := domain.ConversationSummary{
		UserID:         userID,
		ConversationID: fields["conversation_id"],
		Type:           fields["type"],
		Alias:          fields["alias"],
		Starred:        fields["starred"] == "1",
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		summary.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["starred_at"]); err == nil {
		summary.StarredAt = &t
	}
	return summary
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
