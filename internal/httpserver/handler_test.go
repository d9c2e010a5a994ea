package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/httpserver"
	"github.com/shilvister/devochat/internal/httpserver/middleware"
	"github.com/shilvister/devochat/internal/provider/echo"
	"github.com/shilvister/devochat/internal/provider/registry"
	redisstore "github.com/shilvister/devochat/internal/store/redis"
)

type fakeAlias struct {
	alias string
	err   error
}

func (f *fakeAlias) GenerateAlias(_ context.Context, _, _ string) (string, error) {
	return f.alias, f.err
}

type fixture struct {
	handler *httpserver.Handler
	store   *redisstore.Store
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T, alias httpserver.AliasGenerator) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := redisstore.NewStore(client)

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(echo.NewAdapter()))

	gate := domain.NewPermissionGate(domain.BillingTable{
		"echo-model":    {InBilling: 1, OutBilling: 2},
		"premium-model": {InBilling: 50, OutBilling: 100},
	})

	directory := domain.MCPDirectory{
		"fetch": {ID: "fetch", Name: "fetch", URL: "https://mcp.example/fetch"},
		"ops":   {ID: "ops", Name: "ops", URL: "https://mcp.example/ops", Admin: true},
	}

	handler := httpserver.NewHandler(
		reg,
		gate,
		domain.Prompts{Default: "base prompt"},
		domain.NewPartResolver(t.TempDir()),
		directory,
		store,
		alias,
	)

	return &fixture{handler: handler, store: store, mr: mr}
}

func authedRequest(method, target string, body string, user domain.User) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	return r.WithContext(middleware.WithUser(r.Context(), user))
}

// sseFrames decodes every data frame in an SSE response body.
func sseFrames(t *testing.T, body string) []map[string]string {
	t.Helper()

	var frames []map[string]string
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]string
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	return frames
}

func joinContent(frames []map[string]string) string {
	var b strings.Builder
	for _, frame := range frames {
		b.WriteString(frame["content"])
	}
	return b.String()
}

func TestHandleChat(t *testing.T) {
	user := domain.User{UserID: "u1", Name: "Dev"}

	t.Run("should stream the exchange and persist it", func(t *testing.T) {
		f := newFixture(t, nil)

		body := `{"conversation_id":"c1","model":"echo-model","user_message":[{"type":"text","text":"repeat after me"}]}`
		r := authedRequest(http.MethodPost, "/chat/echo", body, user)
		r.SetPathValue("provider", "echo")
		w := httptest.NewRecorder()

		f.handler.HandleChat(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

		frames := sseFrames(t, w.Body.String())
		require.NotEmpty(t, frames)
		full := joinContent(frames)
		require.Equal(t, "repeat after me", domain.NormalizeAssistantContent(full))

		messages, err := f.store.History(context.Background(), "u1", "c1", 0)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		require.Equal(t, domain.RoleUser, messages[0].Role)
		require.Equal(t, "repeat after me", messages[0].Parts[0].Text)
		require.Equal(t, domain.RoleAssistant, messages[1].Role)
		require.Equal(t, full, messages[1].Text)
	})

	t.Run("should reject a gated request as an SSE error frame", func(t *testing.T) {
		f := newFixture(t, nil)

		body := `{"conversation_id":"c1","model":"premium-model","user_message":[{"type":"text","text":"hi"}]}`
		r := authedRequest(http.MethodPost, "/chat/echo", body, user)
		r.SetPathValue("provider", "echo")
		w := httptest.NewRecorder()

		f.handler.HandleChat(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		frames := sseFrames(t, w.Body.String())
		require.Len(t, frames, 1)
		require.Equal(t, domain.ErrMsgModelForbidden, frames[0]["error"])

		// Nothing persisted on rejection.
		messages, err := f.store.History(context.Background(), "u1", "c1", 0)
		require.NoError(t, err)
		require.Empty(t, messages)
	})

	t.Run("should reject an exhausted trial user before dispatch", func(t *testing.T) {
		f := newFixture(t, nil)

		trialUser := domain.User{UserID: "u2", Trial: true, TrialRemaining: 0}
		body := `{"conversation_id":"c1","model":"echo-model","user_message":[{"type":"text","text":"hi"}]}`
		r := authedRequest(http.MethodPost, "/chat/echo", body, trialUser)
		r.SetPathValue("provider", "echo")
		w := httptest.NewRecorder()

		f.handler.HandleChat(w, r)

		frames := sseFrames(t, w.Body.String())
		require.Len(t, frames, 1)
		require.NotEmpty(t, frames[0]["error"])
	})

	t.Run("should refuse an admin-only MCP server for a non-admin", func(t *testing.T) {
		f := newFixture(t, nil)

		body := `{"conversation_id":"c1","model":"echo-model","mcp":["ops"],"user_message":[{"type":"text","text":"hi"}]}`
		r := authedRequest(http.MethodPost, "/chat/echo", body, user)
		r.SetPathValue("provider", "echo")
		w := httptest.NewRecorder()

		f.handler.HandleChat(w, r)

		frames := sseFrames(t, w.Body.String())
		require.Len(t, frames, 1)
		require.Equal(t, domain.ErrMsgMCPForbidden, frames[0]["error"])
	})

	t.Run("should 404 an unknown provider endpoint", func(t *testing.T) {
		f := newFixture(t, nil)

		r := authedRequest(http.MethodPost, "/chat/nope", `{}`, user)
		r.SetPathValue("provider", "nope")
		w := httptest.NewRecorder()

		f.handler.HandleChat(w, r)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should 401 without an authenticated user", func(t *testing.T) {
		f := newFixture(t, nil)

		r := httptest.NewRequest(http.MethodPost, "/chat/echo", strings.NewReader(`{}`))
		r.SetPathValue("provider", "echo")
		w := httptest.NewRecorder()

		f.handler.HandleChat(w, r)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("should decrement the trial counter after a trial exchange", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mr.HSet("user:u3", "trial", "1")
		f.mr.HSet("user:u3", "trial_remaining", "2")

		trialUser := domain.User{UserID: "u3", Trial: true, TrialRemaining: 2}
		body := `{"conversation_id":"c1","model":"echo-model","user_message":[{"type":"text","text":"hi"}]}`
		r := authedRequest(http.MethodPost, "/chat/echo", body, trialUser)
		r.SetPathValue("provider", "echo")
		w := httptest.NewRecorder()

		f.handler.HandleChat(w, r)

		after, err := f.store.GetUser(context.Background(), "u3")
		require.NoError(t, err)
		require.Equal(t, 1, after.TrialRemaining)
	})
}

func TestHandleChatAlias(t *testing.T) {
	user := domain.User{UserID: "u1"}

	t.Run("should generate and store the alias", func(t *testing.T) {
		f := newFixture(t, &fakeAlias{alias: "Trip Planning"})

		summary, err := f.store.CreateConversation(context.Background(), "u1", "chat")
		require.NoError(t, err)

		body := `{"conversation_id":"` + summary.ConversationID + `","text":"help me plan a trip"}`
		r := authedRequest(http.MethodPost, "/chat/get_alias", body, user)
		w := httptest.NewRecorder()

		f.handler.HandleChatAlias(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, "Trip Planning", resp["alias"])

		record, err := f.store.GetConversation(context.Background(), "u1", summary.ConversationID)
		require.NoError(t, err)
		require.Equal(t, "Trip Planning", record.Alias)
	})

	t.Run("should fall back to the default alias on failure", func(t *testing.T) {
		f := newFixture(t, &fakeAlias{err: errors.New("backend down")})

		r := authedRequest(http.MethodPost, "/chat/get_alias", `{"conversation_id":"c1","text":"hi"}`, user)
		w := httptest.NewRecorder()

		f.handler.HandleChatAlias(w, r)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, "New Chat", resp["alias"])
		require.NotEmpty(t, resp["error"])
	})

	t.Run("should fall back when no alias backend is configured", func(t *testing.T) {
		f := newFixture(t, nil)

		r := authedRequest(http.MethodPost, "/chat/get_alias", `{"conversation_id":"c1","text":"hi"}`, user)
		w := httptest.NewRecorder()

		f.handler.HandleChatAlias(w, r)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, "New Chat", resp["alias"])
	})
}

func TestConversationEndpoints(t *testing.T) {
	user := domain.User{UserID: "u1"}

	t.Run("should create, list, star, rename, truncate, and delete", func(t *testing.T) {
		f := newFixture(t, nil)

		// Create.
		r := authedRequest(http.MethodPost, "/chat/new_conversation", "", user)
		w := httptest.NewRecorder()
		f.handler.HandleNewConversation(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		var created domain.ConversationSummary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		require.NotEmpty(t, created.ConversationID)
		require.Equal(t, "chat", created.Type)

		// List.
		r = authedRequest(http.MethodGet, "/conversations", "", user)
		w = httptest.NewRecorder()
		f.handler.HandleListConversations(w, r)

		var listing struct {
			Conversations []domain.ConversationSummary `json:"conversations"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
		require.Len(t, listing.Conversations, 1)

		// Star.
		r = authedRequest(http.MethodPut, "/conversation/"+created.ConversationID+"/star", `{"starred":true}`, user)
		r.SetPathValue("conversation_id", created.ConversationID)
		w = httptest.NewRecorder()
		f.handler.HandleStarConversation(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		// Rename.
		r = authedRequest(http.MethodPut, "/conversation/"+created.ConversationID+"/rename", `{"alias":"kept notes"}`, user)
		r.SetPathValue("conversation_id", created.ConversationID)
		w = httptest.NewRecorder()
		f.handler.HandleRenameConversation(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		var renamed map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &renamed))
		require.Equal(t, "kept notes", renamed["new_alias"])

		// Fetch and verify both updates.
		r = authedRequest(http.MethodGet, "/chat/conversation/"+created.ConversationID, "", user)
		r.SetPathValue("conversation_id", created.ConversationID)
		w = httptest.NewRecorder()
		f.handler.HandleGetConversation(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		var record domain.ConversationRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
		require.Equal(t, "kept notes", record.Alias)

		// Seed two exchanges, then truncate to the first.
		req := domain.DefaultChatRequest()
		req.ConversationID = created.ConversationID
		req.Model = "echo-model"
		for i := 0; i < 2; i++ {
			_, err := f.store.AppendExchange(context.Background(), user, &req,
				domain.Message{Role: domain.RoleUser, Parts: []domain.ContentPart{{Type: domain.PartText, Text: "q"}}},
				"a", domain.TokenUsage{}, domain.BillingRate{})
			require.NoError(t, err)
		}

		r = authedRequest(http.MethodDelete, "/conversation/"+created.ConversationID+"/2", "", user)
		r.SetPathValue("conversation_id", created.ConversationID)
		r.SetPathValue("start_index", "2")
		w = httptest.NewRecorder()
		f.handler.HandleTruncateConversation(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		messages, err := f.store.History(context.Background(), "u1", created.ConversationID, 0)
		require.NoError(t, err)
		require.Len(t, messages, 2)

		// Delete.
		r = authedRequest(http.MethodDelete, "/conversation/"+created.ConversationID, "", user)
		r.SetPathValue("conversation_id", created.ConversationID)
		w = httptest.NewRecorder()
		f.handler.HandleDeleteConversation(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		r = authedRequest(http.MethodGet, "/chat/conversation/"+created.ConversationID, "", user)
		r.SetPathValue("conversation_id", created.ConversationID)
		w = httptest.NewRecorder()
		f.handler.HandleGetConversation(w, r)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should delete all conversations", func(t *testing.T) {
		f := newFixture(t, nil)

		for i := 0; i < 3; i++ {
			_, err := f.store.CreateConversation(context.Background(), "u1", "chat")
			require.NoError(t, err)
		}

		r := authedRequest(http.MethodDelete, "/conversation/all", "", user)
		w := httptest.NewRecorder()
		f.handler.HandleDeleteAllConversations(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		list, err := f.store.ListConversations(context.Background(), "u1")
		require.NoError(t, err)
		require.Empty(t, list)
	})

	t.Run("should reject a negative truncate index", func(t *testing.T) {
		f := newFixture(t, nil)

		r := authedRequest(http.MethodDelete, "/conversation/c1/-1", "", user)
		r.SetPathValue("conversation_id", "c1")
		r.SetPathValue("start_index", "-1")
		w := httptest.NewRecorder()
		f.handler.HandleTruncateConversation(w, r)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.handler.HandleHealth(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}
