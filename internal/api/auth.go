package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/promptsim/promptsim/internal/audit"
	"github.com/promptsim/promptsim/internal/session"
)

type loginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

// HandleLogin handles POST /auth/login. Every attempt is audited,
// whatever its outcome.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "userId and password required")
		return
	}

	cleaned := session.CleanUserID(req.UserID)

	if !h.loginLimiter.Allow(session.IPFromRequest(r)) {
		rec := baseRecord(r, audit.EventLogin, false, cleaned)
		rec.ErrorJSON = audit.Snapshot(map[string]string{"message": "Rate limit exceeded"})
		h.audit.Write(rec)
		Error(w, http.StatusTooManyRequests, "Too many login attempts")
		return
	}

	if !h.auth.Authenticate(req.UserID, req.Password) {
		rec := baseRecord(r, audit.EventLogin, false, cleaned)
		rec.ErrorJSON = audit.Snapshot(map[string]string{"message": "Invalid credentials"})
		h.audit.Write(rec)
		Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.codec.Mint(cleaned, h.cfg.SessionTTL)
	if err != nil {
		slog.Error("Failed to mint session token", "error", err)
		rec := baseRecord(r, audit.EventLogin, false, cleaned)
		rec.ErrorJSON = audit.Snapshot(map[string]string{"message": err.Error()})
		h.audit.Write(rec)
		Error(w, http.StatusInternalServerError, "Login failed")
		return
	}
	payload, err := h.codec.Verify(token)
	if err != nil {
		slog.Error("Minted token failed verification", "error", err)
		Error(w, http.StatusInternalServerError, "Login failed")
		return
	}

	session.SetCookie(w, token, h.cfg.SessionTTL, h.isSecure())

	rec := baseRecord(r, audit.EventLogin, true, cleaned)
	rec.SessionID = payload.SessionID
	h.audit.Write(rec)

	JSON(w, http.StatusOK, map[string]string{"userId": cleaned})
}

// HandleLogout handles POST /auth/logout. The cookie is cleared
// unconditionally; the record reflects whichever session was active.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	payload := session.FromRequest(r, h.codec)
	session.ClearCookie(w, h.isSecure())

	rec := baseRecord(r, audit.EventLogout, true, "")
	if payload != nil {
		rec.UserID = payload.UserID
		rec.SessionID = payload.SessionID
	}
	h.audit.Write(rec)

	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleMe handles GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	payload := session.FromRequest(r, h.codec)
	if payload == nil {
		Error(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"userId": payload.UserID})
}
