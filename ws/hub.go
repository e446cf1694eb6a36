package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/testpulse/testpulse/api"
	"github.com/testpulse/testpulse/engine"
	"github.com/testpulse/testpulse/scoring"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth. Update
	// events can arrive in bursts after a CI run completes, so this is
	// sized to absorb a burst rather than a single tick.
	sendBufSize = 16
)

// Event names used on the wire. Clients route on the "event" field: a
// snapshot replaces their whole view, an update patches a single test.
const (
	eventSnapshot = "snapshot"
	eventUpdate   = "update"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// snapshotMessage carries the full confidence picture.
type snapshotMessage struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// updateMessage carries one freshly recomputed test score.
type updateMessage struct {
	Event string           `json:"event"`
	Data  api.TestResponse `json:"data"`
}

// Hub manages WebSocket client connections. It pushes two kinds of events:
// periodic full snapshots from its ticker loop, and immediate per-test
// updates via Publish whenever the engine recomputes a score.
type Hub struct {
	eng      *engine.Engine
	interval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that reads from eng and broadcasts a full snapshot
// every interval.
func New(eng *engine.Engine, interval time.Duration) *Hub {
	return &Hub{
		eng:      eng,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// Run starts the snapshot ticker loop. It blocks until ctx is cancelled,
// then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcastSnapshot()
		}
	}
}

// Publish pushes a single recomputed score to every connected client
// without waiting for the next snapshot tick. Wire it to the engine's
// score notification callback.
func (h *Hub) Publish(res *scoring.Result) {
	data, err := json.Marshal(updateMessage{
		Event: eventUpdate,
		Data:  api.ToTest(res),
	})
	if err != nil {
		return
	}
	h.send(data)
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// It sends the current snapshot immediately on connect, then the client
// receives snapshot ticks and score updates until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	// Send the current snapshot immediately so dashboards have data right away.
	if data, err := h.snapshot(); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcastSnapshot() {
	data, err := h.snapshot()
	if err != nil {
		return
	}
	h.send(data)
}

// send fans data out to every connected client. A client whose outgoing
// buffer is full is disconnected rather than allowed to stall the rest.
func (h *Hub) send(data []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			h.unregister(c)
		}
	}
}

func (h *Hub) snapshot() ([]byte, error) {
	return json.Marshal(snapshotMessage{
		Event: eventSnapshot,
		Data:  api.BuildSnapshot(h.eng),
	})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
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
				// Channel was closed (hub is shutting down or client removed).
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

// readPump reads frames from the connection to process control messages
// (pong, close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
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
