package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eldtechnologies/peerlink/internal/chat"
	"github.com/eldtechnologies/peerlink/internal/presence"
	"github.com/eldtechnologies/peerlink/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.DataStore
	redis    *store.RedisStore
	chat     *chat.Service
	registry *presence.Registry
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(ds store.DataStore, redis *store.RedisStore, chatSvc *chat.Service, registry *presence.Registry) *Handler {
	return &Handler{store: ds, redis: redis, chat: chatSvc, registry: registry}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
