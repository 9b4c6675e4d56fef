package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/audit"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Operator-facing feed on a trusted network.
	},
}

// Hub fans admission decision events out to connected WebSocket clients.
//
// The hub mutex serializes all writers: gorilla/websocket permits at most
// one concurrent writer per connection, and decisions are recorded from
// many handler goroutines at once.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	log     *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		log:     log,
	}
}

// HandleWebSocket upgrades the HTTP connection and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// Each connection gets one goroutine draining client frames, which
	// keeps control messages flowing and detects the disconnect. It is
	// the only place a client is unregistered.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Broadcast sends a decision event to all connected WebSocket clients.
// It holds the hub lock for the duration so overlapping broadcasts never
// write to the same connection at the same time.
func (h *Hub) Broadcast(ev audit.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("websocket marshal failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Warn("websocket write failed", zap.Error(err))
			conn.Close()
			// Removal from the map is left to the read goroutine, which
			// wakes on the closed connection.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
