package grok_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/pipeline"
	"github.com/shilvister/devochat/internal/provider/grok"
)

type collectSink struct {
	contents []string
	errors   []string
}

func (s *collectSink) Content(text string) error {
	s.contents = append(s.contents, text)
	return nil
}

func (s *collectSink) Error(message string) error {
	s.errors = append(s.errors, message)
	return nil
}

func runAdapter(t *testing.T, a *grok.Adapter, req *domain.ChatRequest, history []domain.Message) (pipeline.Result, *collectSink) {
	t.Helper()

	q := pipeline.NewQueue()
	sink := &collectSink{}

	ctx := context.Background()
	done := make(chan pipeline.Result, 1)
	go func() {
		done <- pipeline.Relay(ctx, q, sink)
	}()

	a.Run(ctx, q, req, history)
	return <-done, sink
}

func TestStreamReasoningAndCitations(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_, _ = w.Write([]byte(
			`data: {"choices":[{"delta":{"reasoning_content":"Thinking..."}}]}` + "\n\n" +
				`data: {"choices":[{"delta":{"reasoning_content":"real reasoning"}}]}` + "\n\n" +
				`data: {"choices":[{"delta":{"content":"final answer"}}]}` + "\n\n" +
				`data: {"choices":[],"citations":["https://x.example"],"usage":{"prompt_tokens":8,"completion_tokens":4,"completion_tokens_details":{"reasoning_tokens":2}}}` + "\n\n" +
				"data: [DONE]\n\n",
		))
	}))
	defer srv.Close()

	a, err := grok.NewAdapter(grok.Config{APIKey: "xai-key", BaseURL: srv.URL, Timeout: 5})
	require.NoError(t, err)
	require.Equal(t, "grok", a.Name())

	req := domain.DefaultChatRequest()
	req.Model = "grok-4"
	req.Instructions = "be direct"
	req.Reason = 0.9
	req.Search = true

	history := []domain.Message{
		{Role: domain.RoleUser, Parts: []domain.ContentPart{{Type: domain.PartText, Text: "question"}}},
	}

	result, sink := runAdapter(t, a, &req, history)

	require.Equal(t, "Bearer xai-key", gotAuth)
	require.Equal(t, "high", gotBody["reasoning_effort"])
	require.Equal(t, true, gotBody["stream"])
	require.Equal(t, map[string]any{"include_usage": true}, gotBody["stream_options"])
	require.Equal(t, map[string]any{"mode": "on", "return_citations": true}, gotBody["search_parameters"])

	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 2)
	require.Equal(t, "system", messages[0].(map[string]any)["role"])
	require.Equal(t, "be direct", messages[0].(map[string]any)["content"])

	// The keepalive reasoning delta is dropped, the real one kept.
	require.Equal(t, "<think>\nreal reasoning\n</think>\n\nfinal answer"+
		"\n<citations>\n\n[1] https://x.example</citations>\n", result.Text)
	require.NotNil(t, result.Usage)
	require.Equal(t, 8, result.Usage.InputTokens)
	require.Equal(t, 4, result.Usage.OutputTokens)
	require.Equal(t, 2, result.Usage.ReasoningTokens)
	require.Empty(t, sink.errors)
}

func TestStreamLowReasoningTier(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"ok"}}]}` + "\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	a, err := grok.NewAdapter(grok.Config{APIKey: "xai-key", BaseURL: srv.URL, Timeout: 5})
	require.NoError(t, err)

	req := domain.DefaultChatRequest()
	req.Model = "grok-4"
	req.Reason = 0.3

	result, _ := runAdapter(t, a, &req, nil)
	require.Equal(t, "low", gotBody["reasoning_effort"])
	require.Equal(t, "ok", result.Text)
}

func TestNonStreamingCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "assembled", "reasoning_content": "quick check"}}],
			"citations": ["https://x.example"],
			"usage": {"prompt_tokens": 3, "completion_tokens": 1}
		}`))
	}))
	defer srv.Close()

	a, err := grok.NewAdapter(grok.Config{APIKey: "xai-key", BaseURL: srv.URL, Timeout: 5})
	require.NoError(t, err)

	req := domain.DefaultChatRequest()
	req.Model = "grok-4"
	req.Stream = false

	result, _ := runAdapter(t, a, &req, nil)
	require.Equal(t, "<think>\nquick check\n</think>\n\nassembled"+
		"\n<citations>\n\n[1] https://x.example</citations>\n", result.Text)
	require.Equal(t, 3, result.Usage.InputTokens)
}

func TestNewAdapterRequiresKey(t *testing.T) {
	_, err := grok.NewAdapter(grok.Config{})
	require.Error(t, err)
}
