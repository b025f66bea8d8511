package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/mocks/mock_llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/service"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

func newCompanion(t *testing.T, serverKey string) (*service.CompanionService, *mock_llm.MockClient, *fakeSelector) {
	t.Helper()
	client := mock_llm.NewMockClient(gomock.NewController(t))
	selector := &fakeSelector{client: client, supportsTools: true}
	svc := service.NewCompanionService(selector, service.CompanionConfig{
		EncryptionSecret: testSecret,
		OpenAIAPIKey:     serverKey,
		TitleModel:       "gpt-3.5-turbo",
		MemoryModel:      "gpt-4o-mini",
	}, logger.NewNop())
	return svc, client, selector
}

var firstTwo = []model.ChatMessage{
	{Role: model.RoleUser, Content: "Help me plan a trip to Kyoto"},
	{Role: model.RoleAssistant, Content: "Sure, when are you going?"},
}

func TestTitle(t *testing.T) {
	svc, client, selector := newCompanion(t, "")

	client.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			assert.Equal(t, "gpt-3.5-turbo", req.Model)
			assert.Equal(t, 50, req.MaxTokens)
			require.NotNil(t, req.Temperature)
			assert.Equal(t, 0.6, *req.Temperature)
			require.Len(t, req.Messages, 1)
			assert.Contains(t, req.Messages[0].Content, "Help me plan a trip to Kyoto")
			assert.Contains(t, req.Messages[0].Content, "Sure, when are you going?")
			return &llm.CompletionResponse{Content: "  \"Kyoto Trip Planning\"\n"}, nil
		})

	title, err := svc.Title(context.Background(), cookies(t, map[string]string{"openai": "sk-user"}), firstTwo)
	require.NoError(t, err)
	assert.Equal(t, "Kyoto Trip Planning", title)
	assert.Equal(t, "sk-user", selector.gotKey)
}

func TestTitlePrefersServerKey(t *testing.T) {
	svc, client, selector := newCompanion(t, "sk-server")

	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(&llm.CompletionResponse{Content: "Trip"}, nil)

	_, err := svc.Title(context.Background(), cookies(t, nil), firstTwo)
	require.NoError(t, err)
	assert.Equal(t, "sk-server", selector.gotKey)
}

func TestTitleErrors(t *testing.T) {
	t.Run("too few messages", func(t *testing.T) {
		svc, _, _ := newCompanion(t, "sk-server")
		_, err := svc.Title(context.Background(), nil, firstTwo[:1])
		assert.True(t, chaterr.Is(err, chaterr.KindInvalidRequest))
	})

	t.Run("no key anywhere", func(t *testing.T) {
		svc, _, _ := newCompanion(t, "")
		_, err := svc.Title(context.Background(), cookies(t, nil), firstTwo)
		assert.True(t, chaterr.Is(err, chaterr.KindCredentialNotFound))
	})

	t.Run("provider failure", func(t *testing.T) {
		svc, client, _ := newCompanion(t, "sk-server")
		client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(nil, errors.New("rate limited"))
		_, err := svc.Title(context.Background(), nil, firstTwo)
		require.Error(t, err)
		assert.Equal(t, "Failed to generate title", chaterr.PublicMessage(err))
	})
}

func TestFormatTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Kyoto Trip`, `Kyoto Trip`},
		{`  "Kyoto Trip"  `, `Kyoto Trip`},
		{`\"Kyoto Trip\"`, `Kyoto Trip`},
		{`The "Best" Trip`, `The "Best" Trip`},
		{`"`, `"`},
		{"\"Line one\nline two\"", "\"Line one\nline two\""},
		{``, ``},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, service.FormatTitle(tt.in), tt.in)
	}
}

func TestMemory(t *testing.T) {
	svc, client, _ := newCompanion(t, "sk-server")

	client.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			assert.Equal(t, "gpt-4o-mini", req.Model)
			assert.True(t, req.JSONObject)
			assert.NotEmpty(t, req.System)
			assert.Contains(t, req.Messages[0].Content, "user: I work remotely now")
			assert.Contains(t, req.Messages[0].Content, "Is a project manager")
			return &llm.CompletionResponse{
				Content: `{"memory":["Works remotely","is a project manager","Works remotely",""]}`,
			}, nil
		})

	memory, err := svc.Memory(context.Background(), nil, []model.ChatMessage{
		{Role: model.RoleUser, Content: "I work remotely now. Remember this, okay?"},
		{Role: model.RoleAssistant, Content: "Sure."},
	}, []string{"Is a project manager"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Works remotely"}, memory)
}

func TestMemoryNothingNew(t *testing.T) {
	svc, client, _ := newCompanion(t, "sk-server")
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(&llm.CompletionResponse{Content: `{"memory":[]}`}, nil)

	memory, err := svc.Memory(context.Background(), nil, firstTwo, nil)
	require.NoError(t, err)
	assert.NotNil(t, memory)
	assert.Empty(t, memory)
}

func TestMemoryMalformedResponse(t *testing.T) {
	svc, client, _ := newCompanion(t, "sk-server")
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(&llm.CompletionResponse{Content: `remember: tea`}, nil)

	_, err := svc.Memory(context.Background(), nil, firstTwo, nil)
	require.Error(t, err)
	assert.Equal(t, "Failed to extract memory", chaterr.PublicMessage(err))
}

func TestDedupeMemory(t *testing.T) {
	got := service.DedupeMemory(
		[]string{" Likes tea ", "likes TEA", "Has a dog", "  ", "Lives in Oslo"},
		[]string{"lives in oslo"},
	)
	assert.Equal(t, []string{"Likes tea", "Has a dog"}, got)
}

type fakeSearch struct {
	gotQuery string
	result   string
	err      error
}

func (f *fakeSearch) Name() string        { return "DuckDuckGo Search" }
func (f *fakeSearch) Description() string { return "web search" }
func (f *fakeSearch) Call(_ context.Context, input string) (string, error) {
	f.gotQuery = input
	return f.result, f.err
}

func TestSearch(t *testing.T) {
	tool := &fakeSearch{result: "Title: Go\nDescription: The Go language"}
	svc := service.NewSearchService(tool, logger.NewNop())

	results, err := svc.Search(context.Background(), "  golang  ")
	require.NoError(t, err)
	assert.Equal(t, "golang", tool.gotQuery)
	assert.Equal(t, tool.result, results)

	_, err = svc.Search(context.Background(), " ")
	assert.True(t, chaterr.Is(err, chaterr.KindMissingFields))

	tool.err = errors.New("ddg: 403")
	_, err = svc.Search(context.Background(), "golang")
	assert.Equal(t, "Search failed", chaterr.PublicMessage(err))
}
