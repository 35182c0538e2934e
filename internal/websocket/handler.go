package websocket

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/financetracker/backend/internal/auth"
	apperrors "github.com/financetracker/backend/internal/errors"
	"github.com/financetracker/backend/internal/logger"
)

// Handler upgrades authenticated requests to event streams.
type Handler struct {
	hub      *Hub
	auth     auth.Authenticator
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. allowedOrigins follows the
// CORS list; "*" admits any origin.
func NewHandler(hub *Hub, a auth.Authenticator, allowedOrigins []string, log *logger.Logger) *Handler {
	return &Handler{
		hub:  hub,
		auth: a,
		log:  log.WithComponent("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ServeWS handles GET /api/ws?token=<jwt>. Browsers cannot set headers on
// a websocket handshake, so the token travels in the query.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	token := r.URL.Query().Get("token")
	if token == "" {
		apperrors.WriteError(w, requestID, apperrors.Unauthorized("missing token parameter"))
		return
	}

	identity, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		appErr := auth.AuthError(err)
		if appErr.Category == apperrors.CategoryServer {
			h.log.Error(r.Context(), "websocket authentication failed", err)
		}
		apperrors.WriteError(w, requestID, appErr)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn(r.Context(), "websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	client := NewClient(h.hub, conn, identity.UserID)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
