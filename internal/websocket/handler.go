package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"go-blog-platform/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Auth is token-based, not cookie-based, so cross-origin upgrades
		// carry no ambient credentials.
		return true
	},
}

type sessionAuthorizer interface {
	Authorize(ctx context.Context, token string) (*model.AuthClaims, error)
}

// Handler upgrades HTTP requests to sockets. The session check runs before
// the upgrade; a bad token gets a plain HTTP refusal and never a socket.
type Handler struct {
	hub  *Hub
	auth sessionAuthorizer
}

func NewHandler(hub *Hub, auth sessionAuthorizer) *Handler {
	return &Handler{hub: hub, auth: auth}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := extractToken(r)
	if !ok {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	claims, err := h.auth.Authorize(r.Context(), token)
	if err != nil {
		if errors.Is(err, model.ErrAuthStoreUnavailable) {
			slog.Error("websocket auth store unavailable", "error", err)
			http.Error(w, "authorization temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h.hub, conn, claims.UserID)
	h.hub.register <- client
	client.start()
}

// extractToken accepts the encodings browser clients actually send. Query
// parameter "auth" may hold a JSON object with a token field, or that object
// wrapped in a single-element array; "token" holds the raw value; the
// Authorization header works as for plain HTTP. Every variant tolerates a
// Bearer prefix.
func extractToken(r *http.Request) (string, bool) {
	if raw := strings.TrimSpace(r.URL.Query().Get("auth")); raw != "" {
		if token, ok := tokenFromJSON(raw); ok {
			return token, true
		}
		return "", false
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("token")); raw != "" {
		return stripBearer(raw), true
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		token := stripBearer(header)
		return token, token != ""
	}

	return "", false
}

func tokenFromJSON(raw string) (string, bool) {
	var single struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(raw), &single); err == nil && single.Token != "" {
		return stripBearer(single.Token), true
	}

	var wrapped []struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && len(wrapped) > 0 && wrapped[0].Token != "" {
		return stripBearer(wrapped[0].Token), true
	}

	return "", false
}

func stripBearer(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return value
}
