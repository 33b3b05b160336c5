package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/eldtechnologies/peerlink/internal/crypto"
)

type contextKey string

const UserContextKey contextKey = "user"

// AuthMiddleware verifies the same signed bearer token as the WebSocket
// gate, so the synchronous REST path and the event path authenticate
// identically.
type AuthMiddleware struct {
	secret []byte
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(secret []byte) *AuthMiddleware {
	return &AuthMiddleware{secret: secret}
}

// RequireAuth rejects requests without a valid bearer token and puts the
// resolved user identity in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := crypto.VerifyToken(m.secret, token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated user ID from the request
// context, or "" when unauthenticated.
func GetUserFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(UserContextKey).(string)
	return userID
}
