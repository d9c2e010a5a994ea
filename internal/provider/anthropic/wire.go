package anthropic

// Messages API wire format. Only the fields the adapter reads are declared.

type messageRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []wireMessage   `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream"`
	Thinking    *thinkingParam  `json:"thinking,omitempty"`
	Tools       []toolParam     `json:"tools,omitempty"`
	MCPServers  []mcpServerSpec `json:"mcp_servers,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type thinkingParam struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type toolParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type mcpServerSpec struct {
	Type               string `json:"type"`
	URL                string `json:"url"`
	Name               string `json:"name"`
	AuthorizationToken string `json:"authorization_token,omitempty"`
}

type streamEvent struct {
	Type         string        `json:"type"`
	ContentBlock *contentBlock `json:"content_block"`
	Delta        *blockDelta   `json:"delta"`
	Message      *messageBody  `json:"message"`
	Usage        *usageBody    `json:"usage"`
	Error        *apiError     `json:"error"`
}

type contentBlock struct {
	Type       string        `json:"type"`
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	ServerName string        `json:"server_name"`
	ToolUseID  string        `json:"tool_use_id"`
	IsError    bool          `json:"is_error"`
	Content    []resultChunk `json:"content"`
}

type resultChunk struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type blockDelta struct {
	Type     string `json:"type"`
	Thinking string `json:"thinking"`
	Text     string `json:"text"`
}

type messageBody struct {
	Content []responseBlock `json:"content"`
	Usage   *usageBody      `json:"usage"`
}

type usageBody struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type responseBlock struct {
	Type     string `json:"type"`
	Thinking string `json:"thinking"`
	Text     string `json:"text"`
}

type messageResponse struct {
	Content []responseBlock `json:"content"`
	Usage   *usageBody      `json:"usage"`
}
