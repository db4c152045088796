package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/chambercam/internal/chamber"
	"github.com/banshee-data/chambercam/internal/monitoring"
)

// ResultMessage is the per-frame summary pushed to websocket clients. Images
// are deliberately excluded; the MJPEG preview endpoint carries pixels.
type ResultMessage struct {
	Type       string    `json:"type"` // "frame" or "event"
	Seq        uint64    `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	Score      float64   `json:"score"`
	Threshold  float64   `json:"threshold"`
	Candidate  bool      `json:"candidate"`
	Confirmed  bool      `json:"confirmed"`
	Suppressed bool      `json:"suppressed"`
	GateState  string    `json:"gate_state"`

	Event *chamber.Event `json:"event,omitempty"`
}

// Hub fans per-frame results out to websocket clients for the live tuning
// view.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	monitoring.Logf("[WS] client connected (total: %d)", len(h.clients))
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		delete(h.clients, conn)
		monitoring.Logf("[WS] client disconnected (total: %d)", len(h.clients))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast pushes a per-frame result to every client. Slow or failed clients
// are dropped rather than allowed to stall the run loop.
func (h *Hub) Broadcast(res chamber.Result) {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	msg := ResultMessage{
		Type:       "frame",
		Seq:        res.Seq,
		Timestamp:  res.Timestamp,
		Score:      res.Score,
		Threshold:  res.Threshold,
		Candidate:  res.Candidate,
		Confirmed:  res.Confirmed,
		Suppressed: res.Suppressed,
		GateState:  res.GateState,
		Event:      res.Event,
	}
	if res.Confirmed {
		msg.Type = "event"
	}
	data, err := json.Marshal(msg)
	if err != nil {
		monitoring.Logf("[WS] failed to marshal result: %v", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			monitoring.Logf("[WS] dropping client: %v", err)
			h.unregister(conn)
			conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Tuning UI is served from the same host; cross-origin access is fine on
	// a LAN-only camera box.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection and holds it open until the client goes
// away. Client messages are discarded; the stream is one-way.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[WS] upgrade failed: %v", err)
		return
	}
	h.register(conn)

	go func() {
		defer func() {
			h.unregister(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
