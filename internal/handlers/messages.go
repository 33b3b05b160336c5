package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/peerlink/internal/api/middleware"
	"github.com/eldtechnologies/peerlink/internal/chat"
	"github.com/eldtechnologies/peerlink/internal/metrics"
	"github.com/eldtechnologies/peerlink/internal/models"
)

// SendMessageRequest mirrors the send_message event payload: the REST
// path is the durable fallback for the same user action, and the two may
// race into the transport's dedup window.
type SendMessageRequest struct {
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
	ReplyTo     string `json:"replyTo,omitempty"`
}

// SendMessageResponse reports the persisted (or deduplicated) message.
type SendMessageResponse struct {
	Message   *models.Message `json:"message"`
	Duplicate bool            `json:"duplicate"`
}

// SendMessage handles POST /messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sender := middleware.GetUserFromContext(r.Context())
	if sender == "" {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ReceiverID == "" {
		h.Error(w, http.StatusBadRequest, "receiverId is required")
		return
	}
	if len(req.Content) > 8192 {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 8192 bytes)")
		return
	}

	msg, duplicate, err := h.chat.Send(r.Context(), sender, req.ReceiverID, req.Content, req.MessageType, req.ReplyTo)
	switch {
	case errors.Is(err, chat.ErrRecipientNotFound):
		h.Error(w, http.StatusNotFound, "recipient not found")
		return
	case errors.Is(err, chat.ErrEmptyContent), errors.Is(err, chat.ErrInvalidKind):
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.Error(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	} else {
		metrics.MessagesSent.WithLabelValues("rest").Inc()
	}
	h.JSON(w, status, SendMessageResponse{Message: msg, Duplicate: duplicate})
}

// MarkRead handles POST /messages/{id}/read. Read receipts never error
// the caller: a foreign or unknown message is acknowledged and ignored.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetUserFromContext(r.Context())
	if requester == "" {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	messageID := chi.URLParam(r, "id")
	if err := h.chat.MarkRead(r.Context(), messageID, requester); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to mark message read")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
