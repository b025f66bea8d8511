package handler

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/vault"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

// credentialExpiry is the fixed expiry of stored credential cookies.
var credentialExpiry = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)

// KeyConfig configures the credential endpoints.
type KeyConfig struct {
	EncryptionSecret string
	CookieSecure     bool
}

// KeyHandler stores and clears provider API keys in encrypted cookies.
type KeyHandler struct {
	cfg    KeyConfig
	logger *logger.Logger
}

// NewKeyHandler creates a new key handler.
func NewKeyHandler(cfg KeyConfig, log *logger.Logger) *KeyHandler {
	return &KeyHandler{
		cfg:    cfg,
		logger: log,
	}
}

// Store handles POST /api/encrypt
func (h *KeyHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req model.EncryptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeKindError(w, err)
		return
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if strings.TrimSpace(req.Provider) == "" || apiKey == "" {
		writeKindError(w, chaterr.New(chaterr.KindMissingFields, chaterr.MsgMissingFields))
		return
	}
	provider, err := llm.ParseProvider(req.Provider)
	if err != nil {
		writeKindError(w, err)
		return
	}

	token, err := vault.Encrypt(apiKey, h.cfg.EncryptionSecret)
	if err != nil {
		logFailure(h.logger, "failed to encrypt api key", err)
		writeKindError(w, err)
		return
	}

	http.SetCookie(w, h.cookie(provider, token, credentialExpiry))
	h.logger.Info("api key stored", zap.String("provider", string(provider)))

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Clear handles DELETE /api/encrypt?provider=
func (h *KeyHandler) Clear(w http.ResponseWriter, r *http.Request) {
	provider, err := llm.ParseProvider(r.URL.Query().Get("provider"))
	if err != nil {
		writeKindError(w, err)
		return
	}

	c := h.cookie(provider, "", time.Unix(0, 0))
	c.MaxAge = -1
	http.SetCookie(w, c)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *KeyHandler) cookie(provider llm.Provider, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     vault.CookieName(string(provider)),
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}
