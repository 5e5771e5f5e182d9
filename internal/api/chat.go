package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/promptsim/promptsim/internal/audit"
	"github.com/promptsim/promptsim/internal/chat"
	"github.com/promptsim/promptsim/internal/session"
)

type chatRequest struct {
	SystemPrompt string         `json:"systemPrompt"`
	History      []chat.Message `json:"history"`
	UserMessage  string         `json:"userMessage"`
	Model        string         `json:"model"`
}

type upstreamErrorResponse struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details any    `json:"details"`
}

// HandleChat handles POST /chat. The session gate has already run, so a
// payload is always present in the context.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	payload := session.FromContext(r.Context())
	if payload == nil {
		Error(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserMessage == "" {
		Error(w, http.StatusBadRequest, "userMessage required")
		return
	}

	messages := chat.BuildMessages(req.SystemPrompt, req.History, req.UserMessage)
	model := h.chat.ModelFor(req.Model)

	slog.Info("Chat request",
		"user_id", payload.UserID,
		"session_id", payload.SessionID,
		"model", model,
		"message_length", len(req.UserMessage),
	)

	start := time.Now()
	result, err := h.chat.Complete(r.Context(), model, messages)

	rec := baseRecord(r, audit.EventChat, false, payload.UserID)
	rec.SessionID = payload.SessionID
	rec.Endpoint = h.chat.Endpoint()
	rec.Model = model
	rec.DurationMs = time.Since(start).Milliseconds()
	rec.UserMessage = req.UserMessage
	rec.MessagesJSON = audit.Snapshot(messages)
	rec.RequestJSON = audit.Snapshot(map[string]any{
		"systemPrompt": orNil(req.SystemPrompt),
		"historyCount": len(req.History),
		"userMessage":  req.UserMessage,
		"messages":     messages,
	})

	switch {
	case err == nil:
		rec.OK = true
		rec.Assistant = result.Assistant
		rec.ResponseJSON = string(result.Raw)
		h.audit.Write(rec)
		JSON(w, http.StatusOK, map[string]string{"assistant": result.Assistant})

	case errors.Is(err, chat.ErrTimeout):
		rec.EventType = audit.EventChatError
		rec.ErrorJSON = audit.Snapshot(map[string]string{"message": err.Error()})
		h.audit.Write(rec)
		Error(w, http.StatusGatewayTimeout, "Upstream request timed out")

	default:
		var upstreamErr *chat.UpstreamError
		if errors.As(err, &upstreamErr) {
			rec.UpstreamStatus = upstreamErr.Status
			rec.ResponseJSON = audit.Snapshot(upstreamErr.Body)
			h.audit.Write(rec)
			JSON(w, http.StatusBadGateway, upstreamErrorResponse{
				Error:   "Upstream error",
				Status:  upstreamErr.Status,
				Details: upstreamErr.Body,
			})
			return
		}
		slog.Error("Chat upstream call failed", "error", err, "user_id", payload.UserID)
		rec.EventType = audit.EventChatError
		rec.ErrorJSON = audit.Snapshot(map[string]string{"message": err.Error()})
		h.audit.Write(rec)
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

// orNil maps the empty string to JSON null in audit snapshots.
func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
