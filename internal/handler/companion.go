package handler

import (
	"net/http"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/middleware"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/service"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

// CompanionHandler handles the title, memory and search endpoints.
type CompanionHandler struct {
	companion *service.CompanionService
	search    *service.SearchService
	logger    *logger.Logger
}

// NewCompanionHandler creates a new companion handler.
func NewCompanionHandler(companion *service.CompanionService, search *service.SearchService, log *logger.Logger) *CompanionHandler {
	return &CompanionHandler{
		companion: companion,
		search:    search,
		logger:    log,
	}
}

// Title handles POST /api/completion
func (h *CompanionHandler) Title(w http.ResponseWriter, r *http.Request) {
	var req model.TitleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeKindError(w, err)
		return
	}
	if err := middleware.ValidateMessages(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	title, err := h.companion.Title(r.Context(), cookieSource(r), req.Messages)
	if err != nil {
		logFailure(h.logger, "title request failed", err)
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.TitleResponse{Title: title})
}

// Memory handles POST /api/memory
func (h *CompanionHandler) Memory(w http.ResponseWriter, r *http.Request) {
	var req model.MemoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeKindError(w, err)
		return
	}
	if err := middleware.ValidateMessages(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMemory(req.PreviousMemory); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	memory, err := h.companion.Memory(r.Context(), cookieSource(r), req.Messages, req.PreviousMemory)
	if err != nil {
		logFailure(h.logger, "memory request failed", err)
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.MemoryResponse{Memory: memory})
}

// Search handles POST /api/search
func (h *CompanionHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req model.SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeKindError(w, err)
		return
	}
	if err := middleware.ValidateQuery(req.Query); err != nil {
		writeKindError(w, chaterr.Wrap(chaterr.KindInvalidRequest, err, err.Error()))
		return
	}

	results, err := h.search.Search(r.Context(), req.Query)
	if err != nil {
		logFailure(h.logger, "search request failed", err)
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.SearchResponse{Results: results})
}
