package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"uwbnode.dev/internal/tlog"
)

const logTag = "telemetry"

const (
	clientQueue  = 64
	writeTimeout = 5 * time.Second
)

// Hub streams records as JSON text messages to every connected
// websocket client. Slow clients miss records instead of blocking
// the publisher.
type Hub struct {
	log      *tlog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn  *websocket.Conn
	queue chan Record
	done  chan struct{}
}

// NewHub returns a hub without clients. log may be nil.
func NewHub(log *tlog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams records until the
// client disconnects or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf(logTag, "websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	c := &client{
		conn:  conn,
		queue: make(chan Record, clientQueue),
		done:  make(chan struct{}),
	}
	if !h.add(c) {
		conn.Close()
		return
	}
	h.log.Infof(logTag, "websocket client %s connected", r.RemoteAddr)
	go c.drain()
	c.write()
	h.remove(c)
	conn.Close()
	h.log.Infof(logTag, "websocket client %s disconnected", r.RemoteAddr)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// drain discards incoming messages and detects the close of the
// connection.
func (c *client) drain() {
	defer close(c.done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) write() {
	for {
		select {
		case r, ok := <-c.queue:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
				c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(r); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Publish queues r for every client. It never blocks.
func (h *Hub) Publish(r Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.queue <- r:
		default:
			h.log.Debugf(logTag, "websocket client queue full, dropping %v", r.Kind)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		close(c.queue)
		delete(h.clients, c)
	}
	return nil
}
