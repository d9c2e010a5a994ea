package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Content part types as stored in conversation history.
const (
	PartText  = "text"
	PartURL   = "url"
	PartFile  = "file"
	PartImage = "image"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EmptyResponsePlaceholder is persisted when a stream produced no text, so
// that history keeps strict user/assistant alternation. Zero-width space.
const EmptyResponsePlaceholder = "​"

// User is the authenticated caller, resolved by the auth collaborator.
type User struct {
	UserID         string  `json:"user_id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Billing        float64 `json:"billing"`
	Admin          bool    `json:"admin"`
	Trial          bool    `json:"trial"`
	TrialRemaining int     `json:"trial_remaining"`
}

// ContentPart is one tagged element of a user message. Text parts carry their
// payload in Text; url/file/image parts carry a reference in Content.
type ContentPart struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
}

// Message is one stored conversation turn. User turns hold structured parts,
// assistant turns hold the rendered response text (including in-band markup).
type Message struct {
	Role  string
	Parts []ContentPart
	Text  string
}

type messageWire struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON stores assistant content as a plain string and user content as
// an ordered part array, matching the persisted history format.
func (m Message) MarshalJSON() ([]byte, error) {
	var content any
	if m.Role == RoleAssistant {
		content = m.Text
	} else {
		parts := m.Parts
		if parts == nil {
			parts = []ContentPart{}
		}
		content = parts
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}

	return json.Marshal(messageWire{Role: m.Role, Content: raw})
}

// UnmarshalJSON accepts both content encodings.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	m.Role = wire.Role
	m.Parts = nil
	m.Text = ""

	if len(wire.Content) == 0 {
		return nil
	}

	var text string
	if err := json.Unmarshal(wire.Content, &text); err == nil {
		m.Text = text
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(wire.Content, &parts); err != nil {
		return fmt.Errorf("message content is neither string nor part list: %w", err)
	}
	m.Parts = parts

	return nil
}

// ControlFlags select which request parameters are honored by the adapter.
type ControlFlags struct {
	Temperature   bool `json:"temperature"`
	Reason        bool `json:"reason"`
	Verbosity     bool `json:"verbosity"`
	SystemMessage bool `json:"system_message"`
}

// ChatRequest is the per-call value object posted to every chat endpoint.
type ChatRequest struct {
	ConversationID string        `json:"conversation_id"`
	Model          string        `json:"model"`
	Temperature    float64       `json:"temperature"`
	Reason         float64       `json:"reason"`
	Verbosity      float64       `json:"verbosity"`
	SystemMessage  string        `json:"system_message"`
	UserMessage    []ContentPart `json:"user_message"`
	Inference      bool          `json:"inference"`
	Search         bool          `json:"search"`
	DeepResearch   bool          `json:"deep_research"`
	DAN            bool          `json:"dan"`
	MCP            []string      `json:"mcp"`
	Stream         bool          `json:"stream"`
	Control        ControlFlags  `json:"control"`

	// Derived by the handler before dispatch, never decoded from the body.
	Instructions string      `json:"-"`
	Servers      []MCPServer `json:"-"`
}

// DefaultChatRequest returns a request with the documented field defaults.
// Decode the HTTP body over it so absent fields keep their defaults.
func DefaultChatRequest() ChatRequest {
	return ChatRequest{
		Temperature: 1.0,
		Stream:      true,
		Control: ControlFlags{
			Temperature:   true,
			Reason:        true,
			Verbosity:     true,
			SystemMessage: true,
		},
	}
}

// EffectiveTemperature applies the temperature control flag.
func (r *ChatRequest) EffectiveTemperature() float64 {
	if r.Control.Temperature {
		return r.Temperature
	}
	return 1.0
}

// TokenUsage is the final accounting for one exchange. Applied to billing only
// after the stream fully resolves, never incrementally.
type TokenUsage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	ReasoningTokens int `json:"reasoning_tokens"`
}

// BillingRate is the USD-equivalent price per million tokens for one model.
type BillingRate struct {
	InBilling  float64 `json:"in_billing"`
	OutBilling float64 `json:"out_billing"`
}

// ConversationSummary is one row of a user's conversation listing.
type ConversationSummary struct {
	UserID         string     `json:"user_id"`
	ConversationID string     `json:"conversation_id"`
	Type           string     `json:"type"`
	Alias          string     `json:"alias"`
	Starred        bool       `json:"starred"`
	StarredAt      *time.Time `json:"starred_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ConversationRecord is the full stored conversation: the request metadata
// from the most recent exchange plus the ordered message log.
type ConversationRecord struct {
	ConversationID string        `json:"conversation_id"`
	Alias          string        `json:"alias"`
	Model          string        `json:"model"`
	Temperature    float64       `json:"temperature"`
	Reason         float64       `json:"reason"`
	Verbosity      float64       `json:"verbosity"`
	SystemMessage  string        `json:"system_message"`
	Inference      bool          `json:"inference"`
	Search         bool          `json:"search"`
	DeepResearch   bool          `json:"deep_research"`
	DAN            bool          `json:"dan"`
	MCP            []string      `json:"mcp"`
	Messages       []Message     `json:"messages"`
}
