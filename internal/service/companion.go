package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lctools "github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/duckduckgo"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

// Companion request parameters.
const (
	titleMaxTokens   = 50
	titleTemperature = 0.6
	searchMaxResults = 3
)

const titlePromptTemplate = `You are an AI assistant that creates concise, straightforward titles for chat interactions. Based on the following two messages, generate a title that represents the start of the conversation in a simple, professional, and friendly manner. The title should focus on summarizing the assistant's initial response or the main request from the user.

Here are the messages:

1. User: %q
2. Assistant: %q

The title should be:
- Simple and direct.
- Avoid any prefixes like "Ready to Help" or "How Can I Assist."
- Focus on the core question or statement.
- Do not include any additional words or formatting.

Just return the title, nothing else.`

const memorySystemPrompt = `Monitor the conversation between the user and assistant, focusing on identifying genuinely important information to remember, especially if explicitly stated by the user, and compare it with the previous context to avoid redundancy. Keep the output short.

Steps
1. Compare the current conversation with the previous memories to find new or updated information.
2. Pick out significant new details, prioritising anything the user explicitly asks to be remembered.
3. Summarise each detail as one concise standalone statement, leaving out anything already remembered.

Respond with a JSON object of the form {"memory": ["..."]}. Use an empty array when there is nothing new to remember.

Example
Previous memories: ["Planning a trip to Japan next spring"]
Conversation:
user: I've decided to visit Kyoto specifically. Remember this change.
assistant: Noted!
Output: {"memory": ["Visit Kyoto during trip to Japan"]}`

// CompanionConfig is the static configuration of the companion endpoints.
type CompanionConfig struct {
	EncryptionSecret string
	OpenAIAPIKey     string
	TitleModel       string
	MemoryModel      string
}

// CompanionService backs the title and memory endpoints. Both use OpenAI,
// with the server key when configured and the caller's stored key otherwise.
type CompanionService struct {
	selector ProviderSelector
	cfg      CompanionConfig
	logger   *logger.Logger
}

// NewCompanionService creates a new companion service.
func NewCompanionService(selector ProviderSelector, cfg CompanionConfig, log *logger.Logger) *CompanionService {
	return &CompanionService{
		selector: selector,
		cfg:      cfg,
		logger:   log,
	}
}

func (s *CompanionService) client(creds CredentialSource, modelID string) (llm.Client, error) {
	apiKey := s.cfg.OpenAIAPIKey
	if apiKey == "" {
		var err error
		apiKey, err = decryptCredential(creds, string(llm.ProviderOpenAI), s.cfg.EncryptionSecret)
		if err != nil {
			return nil, err
		}
	}

	factory, err := s.selector.Select(string(llm.ProviderOpenAI), apiKey)
	if err != nil {
		return nil, err
	}
	return factory.Model(modelID), nil
}

// Title generates a conversation title from its first two messages.
func (s *CompanionService) Title(ctx context.Context, creds CredentialSource, msgs []model.ChatMessage) (string, error) {
	if len(msgs) < 2 {
		return "", chaterr.New(chaterr.KindInvalidRequest, "Messages array must contain at least two messages")
	}

	client, err := s.client(creds, s.cfg.TitleModel)
	if err != nil {
		return "", err
	}

	resp, err := client.Complete(ctx, &llm.CompletionRequest{
		Messages: []llm.ChatMessage{{
			Role:    model.RoleUser,
			Content: fmt.Sprintf(titlePromptTemplate, msgs[0].Content, msgs[1].Content),
		}},
		MaxTokens:   titleMaxTokens,
		Temperature: llm.Float(titleTemperature),
	})
	if err != nil {
		s.logger.Error("failed to generate title", zap.Error(err))
		return "", chaterr.Wrap(chaterr.KindUnknown, err, "Failed to generate title")
	}

	return FormatTitle(resp.Content), nil
}

// FormatTitle trims whitespace, unescapes quotes and removes one pair of
// surrounding double quotes.
func FormatTitle(text string) string {
	title := strings.TrimSpace(text)
	title = strings.ReplaceAll(title, `\"`, `"`)
	if len(title) >= 2 && strings.HasPrefix(title, `"`) && strings.HasSuffix(title, `"`) && !strings.Contains(title, "\n") {
		title = title[1 : len(title)-1]
	}
	return title
}

// Memory extracts facts worth remembering that are not already in previous.
func (s *CompanionService) Memory(ctx context.Context, creds CredentialSource, msgs []model.ChatMessage, previous []string) ([]string, error) {
	if len(msgs) == 0 {
		return nil, chaterr.New(chaterr.KindMissingFields, chaterr.MsgMissingFields)
	}

	client, err := s.client(creds, s.cfg.MemoryModel)
	if err != nil {
		return nil, err
	}

	resp, err := client.Complete(ctx, &llm.CompletionRequest{
		System: memorySystemPrompt,
		Messages: []llm.ChatMessage{{
			Role:    model.RoleUser,
			Content: memoryPrompt(msgs, previous),
		}},
		JSONObject: true,
	})
	if err != nil {
		s.logger.Error("failed to extract memory", zap.Error(err))
		return nil, chaterr.Wrap(chaterr.KindUnknown, err, "Failed to extract memory")
	}

	extracted, err := parseMemory(resp.Content)
	if err != nil {
		s.logger.Warn("model returned malformed memory", zap.Error(err))
		return nil, chaterr.Wrap(chaterr.KindUnknown, err, "Failed to extract memory")
	}

	return DedupeMemory(extracted, previous), nil
}

func memoryPrompt(msgs []model.ChatMessage, previous []string) string {
	var b strings.Builder
	b.WriteString("Task: Extract new important information from this conversation.\n\nCurrent conversation:\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	b.WriteString("\nPrevious memories:\n")
	if len(previous) == 0 {
		b.WriteString("No previous memories\n")
	} else {
		b.WriteString(strings.Join(previous, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\nQuestion: Based on this conversation, what new information should be remembered that isn't already in the previous memories? Format as a memory array.")
	return b.String()
}

// parseMemory accepts {"memory": [...]} or a bare array.
func parseMemory(content string) ([]string, error) {
	content = strings.TrimSpace(content)

	var obj model.MemoryResponse
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		return obj.Memory, nil
	}

	var list []string
	if err := json.Unmarshal([]byte(content), &list); err != nil {
		return nil, fmt.Errorf("decode memory: %w", err)
	}
	return list, nil
}

// DedupeMemory drops blank entries, repeats and anything already in previous.
// Comparison ignores case and surrounding whitespace.
func DedupeMemory(extracted, previous []string) []string {
	seen := make(map[string]struct{}, len(previous)+len(extracted))
	for _, p := range previous {
		seen[memoryKey(p)] = struct{}{}
	}

	out := make([]string, 0, len(extracted))
	for _, m := range extracted {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		key := memoryKey(m)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

func memoryKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SearchService backs the web search endpoint.
type SearchService struct {
	tool   lctools.Tool
	logger *logger.Logger
}

// NewDuckDuckGo returns the DuckDuckGo search tool used by SearchService.
func NewDuckDuckGo() (lctools.Tool, error) {
	return duckduckgo.New(searchMaxResults, duckduckgo.DefaultUserAgent)
}

// NewSearchService creates a search service backed by tool.
func NewSearchService(tool lctools.Tool, log *logger.Logger) *SearchService {
	return &SearchService{tool: tool, logger: log}
}

// Search runs query through the search tool.
func (s *SearchService) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", chaterr.New(chaterr.KindMissingFields, "No query provided")
	}

	results, err := s.tool.Call(ctx, query)
	if err != nil {
		s.logger.Error("web search failed", zap.String("tool", s.tool.Name()), zap.Error(err))
		return "", chaterr.Wrap(chaterr.KindUnknown, err, "Search failed")
	}
	return results, nil
}
