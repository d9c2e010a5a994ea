package google_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/pipeline"
	"github.com/shilvister/devochat/internal/provider/google"
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

func runAdapter(t *testing.T, a *google.Adapter, req *domain.ChatRequest, history []domain.Message) (pipeline.Result, *collectSink) {
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

func TestStreamThoughtsAndGrounding(t *testing.T) {
	var gotPath string
	var gotKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"thinking it over","thought":true}]}}]}` + "\n\n" +
				`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"grounded answer"}],"thought":false},"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://source.example","title":"Source"}}]}}]}` + "\n\n" +
				`data: {"candidates":[],"usageMetadata":{"promptTokenCount":11,"candidatesTokenCount":7,"thoughtsTokenCount":3}}` + "\n\n",
		))
	}))
	defer srv.Close()

	a, err := google.NewAdapter(google.Config{APIKey: "g-key", BaseURL: srv.URL, Timeout: 5})
	require.NoError(t, err)
	require.Equal(t, "gemini", a.Name())

	req := domain.DefaultChatRequest()
	req.Model = "gemini-2.5-pro"
	req.Instructions = "be brief"
	req.Reason = 0.25
	req.Search = true

	history := []domain.Message{
		{Role: domain.RoleUser, Parts: []domain.ContentPart{{Type: domain.PartText, Text: "question"}}},
		{Role: domain.RoleAssistant, Text: "<think>\nold\n</think>\n\nprior answer"},
		{Role: domain.RoleUser, Parts: []domain.ContentPart{{Type: domain.PartText, Text: "follow-up"}}},
	}

	result, sink := runAdapter(t, a, &req, history)

	require.Equal(t, "/models/gemini-2.5-pro:streamGenerateContent?alt=sse", gotPath)
	require.Equal(t, "g-key", gotKey)

	// Assistant history is normalized and mapped to the model role.
	contents := gotBody["contents"].([]any)
	require.Len(t, contents, 3)
	second := contents[1].(map[string]any)
	require.Equal(t, "model", second["role"])
	require.Equal(t, "prior answer", second["parts"].([]any)[0].(map[string]any)["text"])

	require.NotNil(t, gotBody["systemInstruction"])
	require.NotNil(t, gotBody["tools"])

	config := gotBody["generationConfig"].(map[string]any)
	thinkingConf := config["thinkingConfig"].(map[string]any)
	require.Equal(t, float64(4096), thinkingConf["thinkingBudget"])
	require.Equal(t, true, thinkingConf["includeThoughts"])

	require.Equal(t, "<think>\nthinking it over\n</think>\n\ngrounded answer"+
		"\n<citations>\n\n[1] https://source.example</citations>\n", result.Text)
	require.NotNil(t, result.Usage)
	require.Equal(t, 11, result.Usage.InputTokens)
	require.Equal(t, 7, result.Usage.OutputTokens)
	require.Equal(t, 3, result.Usage.ReasoningTokens)
	require.Empty(t, sink.errors)
}

func TestNonStreamingCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, ":generateContent")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "plain answer"}]}}],
			"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 2}
		}`))
	}))
	defer srv.Close()

	a, err := google.NewAdapter(google.Config{APIKey: "g-key", BaseURL: srv.URL, Timeout: 5})
	require.NoError(t, err)

	req := domain.DefaultChatRequest()
	req.Model = "gemini-2.5-flash"
	req.Stream = false

	result, _ := runAdapter(t, a, &req, nil)
	require.Equal(t, "plain answer", result.Text)
	require.Equal(t, 5, result.Usage.InputTokens)
}

func TestGenerateAlias(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  Trip Planning \n"}]}}]}`))
	}))
	defer srv.Close()

	a, err := google.NewAdapter(google.Config{
		APIKey:     "g-key",
		BaseURL:    srv.URL,
		AliasModel: "gemini-2.0-flash",
		Timeout:    5,
	})
	require.NoError(t, err)

	alias, err := a.GenerateAlias(context.Background(), "give a short title", "help me plan a trip")
	require.NoError(t, err)
	require.Equal(t, "Trip Planning", alias)

	require.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	config := gotBody["generationConfig"].(map[string]any)
	require.InDelta(t, 0.1, config["temperature"].(float64), 1e-9)
	require.Equal(t, float64(10), config["maxOutputTokens"])
}

func TestNewAdapterRequiresKey(t *testing.T) {
	_, err := google.NewAdapter(google.Config{})
	require.Error(t, err)
}
