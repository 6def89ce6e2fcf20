package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn abstracts the minimal send/close operations used by the hub.
type WSConn interface {
	SendJSON(v any) error
	Close() error
}

// Conn wraps a gorilla websocket connection with JSON helpers.
type Conn struct {
	ws *websocket.Conn
	// serialize writes to avoid concurrent write panics
	writeMu sync.Mutex
}

func (c *Conn) SendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(15 * time.Second))
	return c.ws.WriteJSON(v)
}

func (c *Conn) Close() error { return c.ws.Close() }

// Hub fans standings updates out to the connected websocket clients.
type Hub struct {
	mu    sync.RWMutex
	conns map[WSConn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[WSConn]struct{})}
}

func (h *Hub) Register(c WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
	slog.Debug("live.hub.register", "clients", len(h.conns))
}

func (h *Hub) Unregister(c WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	slog.Debug("live.hub.unregister", "clients", len(h.conns))
}

// Broadcast sends v to every connected client. Clients whose send fails
// are closed and dropped.
func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	conns := make([]WSConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.SendJSON(v); err != nil {
			slog.Debug("live.hub.broadcast.drop", "err", err)
			_ = c.Close()
			h.Unregister(c)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
