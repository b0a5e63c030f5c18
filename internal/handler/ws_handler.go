package handler

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"notesync-engine/internal/websocket"
	"notesync-engine/pkg/token"
)

type WebSocketHandler struct {
	hub         *websocket.Hub
	tokenSecret string
	upgrader    ws.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, tokenSecret string, readBufferSize, writeBufferSize int) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		tokenSecret: tokenSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection authenticates and upgrades an observer connection, then
// registers it with the hub.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	t := r.URL.Query().Get("token")
	if t == "" {
		t = r.Header.Get("Authorization")
		if len(t) > 7 && t[:7] == "Bearer " {
			t = t[7:]
		}
	}

	if t == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	subject, err := token.Validate(t, h.tokenSecret)
	if err != nil {
		log.Printf("websocket: token validation failed: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: failed to upgrade connection for %s: %v", subject, err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), conn, h.hub)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
