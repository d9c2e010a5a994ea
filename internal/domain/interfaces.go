package domain

import "context"

// UserStore resolves and mutates per-user account state. Counter updates must
// be atomic at the storage layer (increment primitives, not read-then-write).
type UserStore interface {
	// GetUser fetches a user by id.
	GetUser(ctx context.Context, userID string) (User, error)

	// UserByToken resolves an opaque session token to a user.
	UserByToken(ctx context.Context, token string) (User, error)
}

// ConversationStore owns the durable conversation history.
type ConversationStore interface {
	// CreateConversation allocates an empty conversation of the given type.
	CreateConversation(ctx context.Context, userID, convType string) (ConversationSummary, error)

	// ListConversations returns the user's conversations, starred first,
	// then most recently starred, then most recently created.
	ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error)

	// GetConversation fetches the full record including the message log.
	GetConversation(ctx context.Context, userID, conversationID string) (*ConversationRecord, error)

	// History returns the last n messages for context-window construction.
	History(ctx context.Context, userID, conversationID string, n int) ([]Message, error)

	// AppendExchange appends the user/assistant pair, updates request
	// metadata on the record, and settles billing: trial users lose one
	// trial credit, others accrue the computed cost. Returns the cost.
	AppendExchange(ctx context.Context, user User, req *ChatRequest, userMessage Message, assistantText string, usage TokenUsage, rate BillingRate) (float64, error)

	// Rename sets the conversation alias.
	Rename(ctx context.Context, userID, conversationID, alias string) error

	// Star sets or clears the starred flag.
	Star(ctx context.Context, userID, conversationID string, starred bool) error

	// Delete removes one conversation.
	Delete(ctx context.Context, userID, conversationID string) error

	// DeleteAll removes every conversation owned by the user.
	DeleteAll(ctx context.Context, userID string) error

	// TruncateFrom drops all messages at index startIndex and after.
	TruncateFrom(ctx context.Context, userID, conversationID string, startIndex int) error
}
