// Package service implements the request pipelines behind the HTTP handlers.
package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/conversation"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/orchestrator"
	"github.com/capitalize-ai/chat-orchestrator/internal/stream"
	"github.com/capitalize-ai/chat-orchestrator/internal/tools"
	"github.com/capitalize-ai/chat-orchestrator/internal/vault"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
	"github.com/capitalize-ai/chat-orchestrator/pkg/metrics"
)

// ProviderSelector creates request-scoped provider clients.
type ProviderSelector interface {
	Select(providerID, apiKey string) (*llm.Factory, error)
}

// ToolBuilder creates the tool registry of a request.
type ToolBuilder interface {
	Build(pluginsJSON string) (*tools.Registry, error)
}

// CredentialSource looks up an encrypted credential by cookie name.
type CredentialSource func(name string) (string, bool)

// RequestMeta identifies the caller of a request.
type RequestMeta struct {
	CorrelationID string
	UserID        string
}

// ChatConfig is the static configuration of the chat pipeline.
type ChatConfig struct {
	EncryptionSecret    string
	DefaultSystemPrompt string
	RequestTimeout      time.Duration
}

// ChatService turns a chat request into a ready-to-stream run.
type ChatService struct {
	selector     ProviderSelector
	tools        ToolBuilder
	orchestrator *orchestrator.Orchestrator
	cfg          ChatConfig
	logger       *logger.Logger
}

// NewChatService creates a new chat service.
func NewChatService(
	selector ProviderSelector,
	toolBuilder ToolBuilder,
	orch *orchestrator.Orchestrator,
	cfg ChatConfig,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		selector:     selector,
		tools:        toolBuilder,
		orchestrator: orch,
		cfg:          cfg,
		logger:       log,
	}
}

// Prepare runs every check that can fail before the response stream opens.
// Errors are *chaterr.Error and map to an HTTP status.
func (s *ChatService) Prepare(req *model.ChatRequest, creds CredentialSource, meta RequestMeta) (*orchestrator.Run, error) {
	if strings.TrimSpace(req.Provider) == "" {
		return nil, chaterr.New(chaterr.KindMissingFields, chaterr.MsgMissingFields)
	}
	provider, err := llm.ParseProvider(req.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := decryptCredential(creds, string(provider), s.cfg.EncryptionSecret)
	if err != nil {
		return nil, err
	}

	if len(req.Messages) == 0 || strings.TrimSpace(req.Model) == "" {
		return nil, chaterr.New(chaterr.KindMissingFields, chaterr.MsgMissingFields)
	}

	factory, err := s.selector.Select(string(provider), apiKey)
	if err != nil {
		return nil, err
	}

	registry, err := s.tools.Build(string(req.Plugins))
	if err != nil {
		return nil, err
	}
	if !factory.SupportsTools() {
		registry = tools.Empty()
	}

	settings := req.Settings()
	chatCtx, err := conversation.Assemble(conversation.Input{
		History:             req.Messages,
		ContextLength:       settings.ContextLength,
		Memory:              req.Memory,
		SystemPrompt:        req.SystemPrompt,
		DefaultSystemPrompt: s.cfg.DefaultSystemPrompt,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithRequest(meta.CorrelationID, string(provider), req.Model).Debug("chat run prepared",
		zap.Int("history", len(req.Messages)),
		zap.Int("context_messages", len(chatCtx.Messages)),
		zap.Strings("tools", registry.Names()),
	)

	return s.orchestrator.NewRun(orchestrator.Request{
		CorrelationID: meta.CorrelationID,
		UserID:        meta.UserID,
		Provider:      provider,
		Model:         req.Model,
		Client:        factory.Model(req.Model),
		Context:       chatCtx,
		Settings:      settings,
		Tools:         registry,
	})
}

// Stream runs a prepared chat within the request budget.
func (s *ChatService) Stream(ctx context.Context, run *orchestrator.Run, w stream.Writer) error {
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	metrics.IncrementStreams()
	defer metrics.DecrementStreams()

	return run.Stream(ctx, w)
}

// decryptCredential reads and decrypts the stored key of provider. The
// plaintext is returned only to the caller and never logged.
func decryptCredential(creds CredentialSource, provider, secret string) (string, error) {
	token, ok := "", false
	if creds != nil {
		token, ok = creds(vault.CookieName(provider))
	}
	if !ok || token == "" {
		return "", chaterr.New(chaterr.KindCredentialNotFound, chaterr.MsgCredentialNotFound)
	}
	return vault.Decrypt(token, secret)
}
