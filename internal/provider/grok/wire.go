package grok

// xAI chat-completions wire format. The dialect is OpenAI-compatible with
// reasoning deltas and citation lists bolted on.

type chatRequest struct {
	Model            string            `json:"model"`
	Messages         []wireMessage     `json:"messages"`
	Temperature      float64           `json:"temperature"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	ReasoningEffort  string            `json:"reasoning_effort,omitempty"`
	SearchParameters *searchParameters `json:"search_parameters,omitempty"`
	Stream           bool              `json:"stream,omitempty"`
	StreamOptions    *streamOptions    `json:"stream_options,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type searchParameters struct {
	Mode            string `json:"mode"`
	ReturnCitations bool   `json:"return_citations"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatChunk struct {
	Choices   []chunkChoice `json:"choices"`
	Citations []string      `json:"citations"`
	Usage     *wireUsage    `json:"usage"`
}

type chunkChoice struct {
	Delta chunkDelta `json:"delta"`
}

type chunkDelta struct {
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
}

type chatResponse struct {
	Choices   []responseChoice `json:"choices"`
	Citations []string         `json:"citations"`
	Usage     *wireUsage       `json:"usage"`
}

type responseChoice struct {
	Message responseMessage `json:"message"`
}

type responseMessage struct {
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
}

type wireUsage struct {
	PromptTokens            int `json:"prompt_tokens"`
	CompletionTokens        int `json:"completion_tokens"`
	CompletionTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}
