package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/acepenergy/acep/pkg/chat"
	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/types"
)

const (
	defaultChatHistory = 50
	maxChatHistory     = 200
)

type chatResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Response string `json:"response"`
	Result   any    `json:"result,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)

	var msg chat.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode chat message", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reply, err := s.chat.Send(ctx, msg)
	if err != nil {
		if errors.Is(err, chat.ErrMissingFields) {
			writeJSONError(w, "missing required fields: chat, sessionId, userId, full_name", http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to relay chat message", slog.Any("error", err))
		writeJSONError(w, "failed to process message", http.StatusInternalServerError)
		return
	}

	if reply.Fallback {
		writeJSON(w, http.StatusOK, chatResponse{
			Success:  true,
			Message:  "Message received (assistant webhook not configured yet)",
			Response: reply.Text,
		})
		return
	}

	// history is best effort; a failed save still returns the reply
	err = s.storage.InsertChatHistory(ctx, types.ChatHistory{
		ID:        uuid.NewString(),
		SessionID: msg.SessionID,
		UserID:    user.ID,
		FullName:  msg.FullName,
		Chat:      msg.Chat,
		Output:    reply.Text,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save chat history", slog.Any("error", err))
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Success:  true,
		Message:  "Message sent to ACEP Assistant",
		Response: reply.Text,
		Result:   reply.Raw,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := s.getUser(r)

	limit := defaultChatHistory
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSONError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxChatHistory)
	}

	history, err := s.storage.GetChatHistory(ctx, user.ID, limit)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get chat history", slog.Any("error", err))
		writeJSONError(w, "failed to get chat history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []types.ChatHistory{}
	}
	writeJSON(w, http.StatusOK, history)
}
