package controller

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	// The simulator serves local dashboards only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans push frames out to every subscribed websocket. Writes are
// serialized under one lock so all subscribers see frames in the same order.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	log     zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		log:     logger,
	}
}

// Add subscribes conn after sending it the greeting frame.
func (h *Hub) Add(conn *websocket.Conn, greeting []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := write(conn, greeting); err != nil {
		return err
	}
	h.clients[conn] = struct{}{}
	h.log.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", len(h.clients)).Msg("push client connected")
	return nil
}

// Remove unsubscribes and closes conn.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.log.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", len(h.clients)).Msg("push client disconnected")
	}
	conn.Close()
}

// Broadcast writes msg to every client, dropping clients that fail.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := write(conn, msg); err != nil {
			h.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("push write failed")
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// Len returns the number of subscribed clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client with a normal closure.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	bye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "simulator shutting down")
	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage, bye, time.Now().Add(writeWait))
		conn.Close()
		delete(h.clients, conn)
	}
}

func write(conn *websocket.Conn, msg []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
