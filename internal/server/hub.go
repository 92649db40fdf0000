package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazz-dev/watchdog/internal/status"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead. pingPeriod must be less than pongWait.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16

	// snapshotTimeout bounds the store reads behind one broadcast.
	snapshotTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON frame sent to WebSocket clients.
type Message struct {
	Event string            `json:"event"`
	Data  []status.Snapshot `json:"data"`
}

// Hub tracks WebSocket clients and pushes status snapshots to them on
// connect and whenever Broadcast is called.
type Hub struct {
	snapshots func(context.Context) ([]status.Snapshot, error)
	logger    *slog.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(snapshots func(context.Context) ([]status.Snapshot, error), logger *slog.Logger) *Hub {
	return &Hub{
		snapshots: snapshots,
		logger:    logger,
		clients:   make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and serves the client until it
// disconnects. The current snapshot is sent immediately.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}

	// Queue the current snapshot before the client becomes visible to
	// Broadcast and Close.
	if data, err := h.buildMessage(r.Context()); err == nil {
		c.send <- data
	} else {
		h.logger.Error("building status message", "error", err)
	}

	if !h.register(c) {
		conn.Close()
		return
	}
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

// Broadcast sends the current snapshot to every connected client. Clients
// whose buffers are full are disconnected.
func (h *Hub) Broadcast(ctx context.Context) {
	if h.Count() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	data, err := h.buildMessage(ctx)
	if err != nil {
		h.logger.Error("building status message", "error", err)
		return
	}

	// Sends happen under the read lock so unregister cannot close a
	// channel mid-send.
	var slow []*wsClient
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.unregister(c)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) buildMessage(ctx context.Context) ([]byte, error) {
	snaps, err := h.snapshots(ctx)
	if err != nil {
		return nil, err
	}
	if snaps == nil {
		snaps = []status.Snapshot{}
	}
	return json.Marshal(Message{Event: "status", Data: snaps})
}

// writePump forwards queued messages to the connection and sends pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames until the connection closes.
func (c *wsClient) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
