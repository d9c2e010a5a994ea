package responses

import "encoding/json"

// Responses API wire format. Only the fields the adapter reads are declared.

type responseRequest struct {
	Model        string          `json:"model"`
	Temperature  float64         `json:"temperature"`
	Instructions string          `json:"instructions,omitempty"`
	Input        []wireMessage   `json:"input"`
	Stream       bool            `json:"stream"`
	Background   bool            `json:"background"`
	Text         *textParam      `json:"text,omitempty"`
	Reasoning    *reasoningParam `json:"reasoning,omitempty"`
	Tools        []any           `json:"tools,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type inputPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type textParam struct {
	Verbosity string `json:"verbosity"`
}

type reasoningParam struct {
	Effort  string `json:"effort"`
	Summary string `json:"summary"`
}

type builtinTool struct {
	Type      string     `json:"type"`
	Container *container `json:"container,omitempty"`
}

type container struct {
	Type string `json:"type"`
}

type mcpTool struct {
	Type            string            `json:"type"`
	ServerLabel     string            `json:"server_label"`
	ServerURL       string            `json:"server_url"`
	RequireApproval string            `json:"require_approval"`
	Headers         map[string]string `json:"headers,omitempty"`
}

type streamEvent struct {
	Type         string        `json:"type"`
	SummaryIndex *int          `json:"summary_index"`
	Delta        string        `json:"delta"`
	Item         *outputItem   `json:"item"`
	Response     *responseBody `json:"response"`
	Message      string        `json:"message"`
}

type outputItem struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ServerLabel string          `json:"server_label"`
	Status      string          `json:"status"`
	Output      string          `json:"output"`
	Error       json.RawMessage `json:"error"`
	Action      *itemAction     `json:"action"`
}

type itemAction struct {
	Query string `json:"query"`
}

type responseBody struct {
	OutputText string     `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage *wireUsage `json:"usage"`
}

type wireUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
}

type errorContent struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}
