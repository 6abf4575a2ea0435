// Package ws streams job progress and completion events to browser
// clients over WebSocket connections, one subscription per job.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub manages WebSocket connections for job progress streaming
type Hub struct {
	// clients maps job_id -> set of connections
	clients map[string]map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*websocket.Conn]bool),
	}
}

// Register adds a connection subscribed to a job
func (h *Hub) Register(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[jobID] == nil {
		h.clients[jobID] = make(map[*websocket.Conn]bool)
	}
	h.clients[jobID][conn] = true
	log.Printf("[WS] Client registered for job %s (total: %d)", jobID, len(h.clients[jobID]))
}

// Unregister removes a connection subscribed to a job
func (h *Hub) Unregister(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[jobID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, jobID)
		}
		log.Printf("[WS] Client unregistered for job %s", jobID)
	}
}

// HasClients reports whether anyone is listening for a job
func (h *Hub) HasClients(jobID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.clients[jobID]
	return ok && len(conns) > 0
}

// Broadcast sends a message to every client subscribed to a job.
// Connections that fail to write are dropped.
func (h *Hub) Broadcast(jobID string, message []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[jobID]))
	for conn := range h.clients[jobID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("[WS] Error sending to client: %v", err)
			h.Unregister(jobID, conn)
			conn.Close()
		}
	}
}

// BroadcastProgress sends a progress message to job subscribers
func (h *Hub) BroadcastProgress(jobID string, msg *ProgressMessage) {
	if !h.HasClients(jobID) {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Error marshaling progress message: %v", err)
		return
	}
	h.Broadcast(jobID, data)
}

// BroadcastResult sends a completion message to job subscribers
func (h *Hub) BroadcastResult(jobID string, msg *ResultMessage) {
	if !h.HasClients(jobID) {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Error marshaling result message: %v", err)
		return
	}
	h.Broadcast(jobID, data)
}
