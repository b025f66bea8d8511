package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/capitalize-ai/chat-orchestrator/internal/handler"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/mocks/mock_llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/orchestrator"
	"github.com/capitalize-ai/chat-orchestrator/internal/service"
	"github.com/capitalize-ai/chat-orchestrator/internal/stream"
	"github.com/capitalize-ai/chat-orchestrator/internal/tools"
	"github.com/capitalize-ai/chat-orchestrator/internal/vault"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

const testSecret = "handler-test-secret"

type fakeSelector struct {
	client llm.Client
	gotKey string
}

func (f *fakeSelector) Select(providerID, apiKey string) (*llm.Factory, error) {
	p, err := llm.ParseProvider(providerID)
	if err != nil {
		return nil, err
	}
	f.gotKey = apiKey
	return llm.NewFactory(p, f.client, true), nil
}

func newChatHandler(t *testing.T) (*handler.ChatHandler, *mock_llm.MockClient, *fakeSelector) {
	t.Helper()
	client := mock_llm.NewMockClient(gomock.NewController(t))
	selector := &fakeSelector{client: client}
	svc := service.NewChatService(
		selector,
		tools.NewBuilder(tools.Deps{}),
		orchestrator.New(nil, logger.NewNop()),
		service.ChatConfig{EncryptionSecret: testSecret, DefaultSystemPrompt: "You are a helpful assistant."},
		logger.NewNop(),
	)
	return handler.NewChatHandler(svc, logger.NewNop()), client, selector
}

func keyCookie(t *testing.T, provider, key string) *http.Cookie {
	t.Helper()
	token, err := vault.Encrypt(key, testSecret)
	require.NoError(t, err)
	return &http.Cookie{Name: vault.CookieName(provider), Value: token}
}

const chatBody = `{"provider":"openai","model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`

func TestChatWithoutCookieIsUnauthorized(t *testing.T) {
	h, _, selector := newChatHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(chatBody))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "API key not found", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Empty(t, selector.gotKey)
}

func TestChatSetupFailures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		cookie *http.Cookie
		status int
	}{
		{"malformed body", `{"provider":`, nil, http.StatusBadRequest},
		{"missing model", `{"provider":"openai","messages":[{"role":"user","content":"hi"}]}`, &http.Cookie{}, http.StatusBadRequest},
		{"unsupported provider", `{"provider":"gemini","model":"x","messages":[{"role":"user","content":"hi"}]}`, nil, http.StatusBadRequest},
		{"invalid role", `{"provider":"openai","model":"gpt-4o","messages":[{"role":"robot","content":"hi"}]}`, &http.Cookie{}, http.StatusBadRequest},
		{"tampered cookie", chatBody, &http.Cookie{Name: "openai-api-key", Value: "00:11"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newChatHandler(t)

			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body))
			if tt.cookie != nil {
				c := tt.cookie
				if c.Name == "" {
					c = keyCookie(t, "openai", "sk-test")
				}
				req.AddCookie(c)
			}
			rec := httptest.NewRecorder()
			h.Chat(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.NotContains(t, rec.Body.String(), "sk-test")
		})
	}
}

func TestChatStreamsDataProtocol(t *testing.T) {
	h, client, selector := newChatHandler(t)

	client.EXPECT().
		CompleteStream(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
			require.NoError(t, cb("Hello!", 0))
			return &llm.CompletionResponse{Content: "Hello!", StopReason: model.FinishStop, TokensIn: 5, TokensOut: 2}, nil
		})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(chatBody))
	req.AddCookie(keyCookie(t, "openai", "sk-live"))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get(stream.DataStreamHeader))
	assert.Equal(t, "sk-live", selector.gotKey)
	assert.NotContains(t, rec.Body.String(), "sk-live")

	parts, err := stream.ParseDataStream(rec.Body)
	require.NoError(t, err)

	var codes []byte
	for _, p := range parts {
		codes = append(codes, p.Code)
	}
	assert.Equal(t, "f0ed", string(codes))

	text, err := parts[1].Text()
	require.NoError(t, err)
	assert.Equal(t, "Hello!", text)
}

func TestChatStreamsSSE(t *testing.T) {
	h, client, _ := newChatHandler(t)

	client.EXPECT().
		CompleteStream(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
			require.NoError(t, cb("Hi", 0))
			return &llm.CompletionResponse{Content: "Hi", StopReason: model.FinishStop}, nil
		})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(chatBody))
	req.Header.Set("Accept", "text/event-stream")
	req.AddCookie(keyCookie(t, "openai", "sk-live"))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: text\ndata: {\"delta\":\"Hi\"}\n\n")
	assert.Contains(t, rec.Body.String(), "event: finish\n")
}

func TestStoreKeySetsCookie(t *testing.T) {
	h := handler.NewKeyHandler(handler.KeyConfig{EncryptionSecret: testSecret, CookieSecure: true}, logger.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/encrypt", strings.NewReader(`{"provider":"Anthropic","apiKey":"sk-ant-secret"}`))
	rec := httptest.NewRecorder()
	h.Store(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "sk-ant-secret")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "anthropic-api-key", c.Name)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, 2100, c.Expires.Year())
	assert.NotContains(t, c.Value, "sk-ant-secret")

	plain, err := vault.Decrypt(c.Value, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-secret", plain)
}

func TestStoreKeyRejects(t *testing.T) {
	h := handler.NewKeyHandler(handler.KeyConfig{EncryptionSecret: testSecret}, logger.NewNop())

	for _, body := range []string{
		`{"provider":"gemini","apiKey":"k"}`,
		`{"provider":"openai","apiKey":"  "}`,
		`{"apiKey":"k"}`,
		`not json`,
	} {
		rec := httptest.NewRecorder()
		h.Store(rec, httptest.NewRequest(http.MethodPost, "/api/encrypt", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Empty(t, rec.Result().Cookies(), body)
	}
}

func TestClearKey(t *testing.T) {
	h := handler.NewKeyHandler(handler.KeyConfig{EncryptionSecret: testSecret}, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Clear(rec, httptest.NewRequest(http.MethodDelete, "/api/encrypt?provider=openrouter", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "openrouter-api-key", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)

	rec = httptest.NewRecorder()
	h.Clear(rec, httptest.NewRequest(http.MethodDelete, "/api/encrypt", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeSearch struct {
	result string
	err    error
}

func (f *fakeSearch) Name() string        { return "DuckDuckGo Search" }
func (f *fakeSearch) Description() string { return "web search" }
func (f *fakeSearch) Call(context.Context, string) (string, error) {
	return f.result, f.err
}

func newCompanionHandler(t *testing.T, search *fakeSearch) (*handler.CompanionHandler, *mock_llm.MockClient) {
	t.Helper()
	client := mock_llm.NewMockClient(gomock.NewController(t))
	companion := service.NewCompanionService(&fakeSelector{client: client}, service.CompanionConfig{
		EncryptionSecret: testSecret,
		OpenAIAPIKey:     "sk-server",
		TitleModel:       "gpt-3.5-turbo",
		MemoryModel:      "gpt-4o-mini",
	}, logger.NewNop())
	return handler.NewCompanionHandler(companion, service.NewSearchService(search, logger.NewNop()), logger.NewNop()), client
}

func TestTitleEndpoint(t *testing.T) {
	h, client := newCompanionHandler(t, &fakeSearch{})
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(&llm.CompletionResponse{Content: `"Weekend Plans"`}, nil)

	body := `{"messages":[{"role":"user","content":"plans?"},{"role":"assistant","content":"hiking"}]}`
	rec := httptest.NewRecorder()
	h.Title(rec, httptest.NewRequest(http.MethodPost, "/api/completion", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.TitleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Weekend Plans", resp.Title)

	rec = httptest.NewRecorder()
	h.Title(rec, httptest.NewRequest(http.MethodPost, "/api/completion", strings.NewReader(`{"messages":[{"role":"user","content":"x"}]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemoryEndpoint(t *testing.T) {
	h, client := newCompanionHandler(t, &fakeSearch{})
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(&llm.CompletionResponse{Content: `{"memory":["Has a cat","Likes tea"]}`}, nil)

	body := `{"messages":[{"role":"user","content":"my cat is called Miso"}],"previousMemory":["likes tea"]}`
	rec := httptest.NewRecorder()
	h.Memory(rec, httptest.NewRequest(http.MethodPost, "/api/memory", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"memory":["Has a cat"]}`, rec.Body.String())
}

func TestSearchEndpoint(t *testing.T) {
	search := &fakeSearch{result: "Title: Go"}
	h, _ := newCompanionHandler(t, search)

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"golang"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":"Title: Go"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	search.err = errors.New("upstream 403 with details")
	rec = httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"golang"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Search failed"}`, rec.Body.String())
}

type fakeConn bool

func (f fakeConn) IsConnected() bool { return bool(f) }

func TestReady(t *testing.T) {
	tests := []struct {
		name   string
		events handler.ConnectionChecker
		status int
	}{
		{"event sink disabled", nil, http.StatusOK},
		{"connected", fakeConn(true), http.StatusOK},
		{"disconnected", fakeConn(false), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.NewHealthHandler(tt.events).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
