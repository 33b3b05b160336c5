package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/peerlink/internal/api/middleware"
	"github.com/eldtechnologies/peerlink/internal/models"
)

// ConversationResponse is the decrypted message history with one other
// user, newest first.
type ConversationResponse struct {
	ConversationWith string           `json:"conversationWith"`
	Messages         []models.Message `json:"messages"`
}

// Conversation handles GET /conversations/{userId}?limit=&before=.
// This explicit fetch is how an offline receiver catches up; there is no
// replay-on-reconnect.
func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetUserFromContext(r.Context())
	if requester == "" {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	otherID := chi.URLParam(r, "userId")
	other, err := h.store.GetUserByID(r.Context(), otherID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if other == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)

	messages, err := h.chat.Conversation(r.Context(), requester, otherID, limit, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, ConversationResponse{
		ConversationWith: otherID,
		Messages:         messages,
	})
}
