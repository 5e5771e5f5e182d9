// Package api provides the HTTP handlers for the auth and chat surface.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/promptsim/promptsim/internal/audit"
	"github.com/promptsim/promptsim/internal/chat"
	"github.com/promptsim/promptsim/internal/config"
	"github.com/promptsim/promptsim/internal/session"
)

// maxRequestBodySize caps inbound request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler serves the auth and chat endpoints.
type Handler struct {
	cfg          *config.Config
	codec        *session.Codec
	auth         *session.Authenticator
	audit        audit.Recorder
	chat         *chat.Client
	loginLimiter *RateLimiter
}

// NewHandler creates a Handler with its dependencies.
func NewHandler(cfg *config.Config, codec *session.Codec, auth *session.Authenticator, auditLog audit.Recorder, chatClient *chat.Client) *Handler {
	if auditLog == nil {
		auditLog = audit.Noop{}
	}
	return &Handler{
		cfg:          cfg,
		codec:        codec,
		auth:         auth,
		audit:        auditLog,
		chat:         chatClient,
		loginLimiter: NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
	}
}

// RegisterRoutes registers all routes. /chat sits behind the session
// gate so no handler work happens for unauthenticated callers.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.HandleLogin)
		r.Post("/logout", h.HandleLogout)
		r.Get("/me", h.HandleMe)
	})
	r.With(session.Require(h.codec, h.audit)).Post("/chat", h.HandleChat)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// isSecure reports whether cookies should carry the Secure flag.
func (h *Handler) isSecure() bool {
	return !h.cfg.IsDevelopment()
}

// baseRecord fills the request-context fields shared by every audit
// record written from a handler.
func baseRecord(r *http.Request, event audit.EventType, ok bool, userID string) audit.Record {
	return audit.Record{
		EventType: event,
		OK:        ok,
		UserID:    userID,
		ClientIP:  session.IPFromRequest(r),
		UserAgent: r.UserAgent(),
		Path:      r.URL.Path,
		Method:    r.Method,
	}
}
