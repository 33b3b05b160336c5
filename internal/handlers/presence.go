package handlers

import (
	"net/http"

	"github.com/eldtechnologies/peerlink/internal/api/middleware"
)

// PresenceResponse lists users with at least one live connection.
type PresenceResponse struct {
	Online []string `json:"online"`
}

// Presence handles GET /presence.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	if middleware.GetUserFromContext(r.Context()) == "" {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	online := h.registry.Online()
	if online == nil {
		online = []string{}
	}
	h.JSON(w, http.StatusOK, PresenceResponse{Online: online})
}
