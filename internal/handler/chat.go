package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/middleware"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/service"
	"github.com/capitalize-ai/chat-orchestrator/internal/stream"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

// ChatHandler handles the streaming chat endpoint.
type ChatHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: svc,
		logger:      log,
	}
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meta := service.RequestMeta{
		CorrelationID: middleware.GetCorrelationID(ctx),
		UserID:        middleware.GetUserID(ctx),
	}
	log := h.logger.With(zap.String("correlation_id", meta.CorrelationID))

	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeTextError(w, err)
		return
	}

	run, err := h.chatService.Prepare(&req, cookieSource(r), meta)
	if err != nil {
		logFailure(log, "chat request rejected", err)
		writeTextError(w, err)
		return
	}

	if err := middleware.ValidateMessages(req.Messages); err != nil {
		writeTextError(w, chaterr.Wrap(chaterr.KindInvalidRequest, err, err.Error()))
		return
	}

	sw, err := stream.Negotiate(w, r)
	if err != nil {
		log.Error("response writer cannot stream", zap.Error(err))
		writeTextError(w, chaterr.Wrap(chaterr.KindConfiguration, err, "streaming not supported"))
		return
	}
	w.WriteHeader(http.StatusOK)

	err = h.chatService.Stream(ctx, run, sw)
	usage := run.Usage()
	fields := []zap.Field{
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.String("state", run.State()),
		zap.Int("steps", run.Steps()),
		zap.Int("prompt_tokens", usage.PromptTokens),
		zap.Int("completion_tokens", usage.CompletionTokens),
	}
	switch {
	case err == nil:
		log.Info("chat stream completed", fields...)
	case errors.Is(err, context.Canceled):
		log.Info("chat client disconnected", fields...)
	default:
		log.Warn("chat stream failed", append(fields, zap.Stringer("kind", chaterr.KindOf(err)), zap.Error(err))...)
	}
}
