package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Buffered messages per client before it is considered too slow.
	clientSendBuffer = 32

	writeTimeout = 5 * time.Second
)

// Hub fans live metering out to WebSocket clients. Broadcast never blocks:
// a client whose send buffer is full is dropped, so a slow dashboard can
// never stall the observer loop.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logrus.Entry

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// The control plane is a trusted LAN service; same-origin
			// enforcement is left to the deployment.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log.WithField("component", "ws"),
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeWS upgrades the request and keeps the connection until the client
// disconnects or falls behind.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.WithField("clients", count).Debug("WebSocket client connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

// Broadcast pushes one event envelope to every connected client.
func (h *Hub) Broadcast(event string, data any) {
	msg, err := json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: event, Data: data})
	if err != nil {
		h.log.WithError(err).Warn("Could not encode broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Client is not keeping up; drop it rather than block.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// writeLoop drains the client's send channel onto the wire. It exits when
// the channel closes (client dropped) or a write fails.
func (h *Hub) writeLoop(c *wsClient) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
}

// readLoop discards inbound frames; its job is to notice the close
// handshake and tear the client down.
func (h *Hub) readLoop(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// remove unregisters the client if it is still registered and closes its
// send channel exactly once.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
