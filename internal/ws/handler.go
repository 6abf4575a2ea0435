package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The UI and the API share an origin in deployment; keep this
		// permissive for local development.
		return true
	},
}

// Handler upgrades HTTP requests into job progress subscriptions
type Handler struct {
	hub *Hub
}

// NewHandler creates a WebSocket handler backed by a hub
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP handles WebSocket upgrade requests.
// Expected URL format: /ws/jobs/{job_id}
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		http.Error(w, "job_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	log.Printf("[WS] New connection for job %s from %s", jobID, r.RemoteAddr)
	h.hub.Register(jobID, conn)
	go h.readPump(jobID, conn)
}

// readPump drains client messages to detect disconnection and keeps
// the connection alive with pings.
func (h *Handler) readPump(jobID string, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(jobID, conn)
		conn.Close()
	}()

	conn.SetReadLimit(512) // clients only subscribe, they never send payloads
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error for job %s: %v", jobID, err)
			}
			break
		}
	}
}
