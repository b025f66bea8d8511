// Package handler implements the HTTP endpoints of the API server.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/service"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

// maxBodyBytes bounds request bodies. Chat histories with image data URLs
// are the largest payloads.
const maxBodyBytes = 8 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeKindError writes err as a JSON error using its kind's status and
// public message.
func writeKindError(w http.ResponseWriter, err error) {
	writeError(w, chaterr.HTTPStatus(chaterr.KindOf(err)), chaterr.PublicMessage(err))
}

// writeTextError writes err as a plain-text body. The chat endpoint answers
// setup failures this way.
func writeTextError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(chaterr.HTTPStatus(chaterr.KindOf(err)))
	w.Write([]byte(chaterr.PublicMessage(err)))
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return chaterr.Wrap(chaterr.KindInvalidRequest, err, "invalid request body")
	}
	return nil
}

// cookieSource exposes the request cookies as a credential source.
func cookieSource(r *http.Request) service.CredentialSource {
	return func(name string) (string, bool) {
		c, err := r.Cookie(name)
		if err != nil {
			return "", false
		}
		return c.Value, true
	}
}

// logFailure logs a classified error. Server-side failures log at error
// level with the cause; client mistakes at debug.
func logFailure(log *logger.Logger, msg string, err error) {
	kind := chaterr.KindOf(err)
	if chaterr.HTTPStatus(kind) >= http.StatusInternalServerError {
		log.Error(msg, zap.Stringer("kind", kind), zap.Error(err))
		return
	}
	log.Debug(msg, zap.Stringer("kind", kind), zap.String("reason", chaterr.PublicMessage(err)))
}
