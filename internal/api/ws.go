package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/erazemk/darilo/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler streams the caller's notifications over a websocket.
type WSHandler struct {
	Hub *notify.Hub
}

// Serve handles GET /api/ws.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "user", actor.ID, "error", err)
		return
	}
	slog.Info("websocket connected", "user", actor.ID, "role", actor.Role)
	h.Hub.Serve(r.Context(), actor.ID, conn)
	slog.Info("websocket disconnected", "user", actor.ID)
}
