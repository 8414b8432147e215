package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans event payloads out to every connected websocket client. It backs
// the live state stream on the local API.
type Hub struct {
	upgrader         websocket.Upgrader
	pingIntervalSecs int
	initialPayload   func() []byte

	mu    sync.Mutex
	conns map[*websocket.Conn]*client
}

// client serializes writes to one connection; gorilla supports a single
// concurrent writer per connection.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func New(opts ...func(*Hub)) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 15 * time.Second,
		},
		conns: make(map[*websocket.Conn]*client),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn}
	h.mu.Lock()
	h.conns[conn] = c
	h.mu.Unlock()

	if h.initialPayload != nil {
		if err := c.write(h.initialPayload()); err != nil {
			h.drop(conn)
			return
		}
	}

	h.setupPing(conn)

	// Inbound frames are discarded; the read loop exists to notice closes.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Broadcast writes payload to every client, dropping the ones that fail.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.drop(c.conn)
		}
	}
}

// ClientCount reports connected clients; used by the status endpoint.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[*websocket.Conn]*client)
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return nil
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) setupPing(conn *websocket.Conn) {
	if h.pingIntervalSecs <= 0 {
		return
	}
	ticker := time.NewTicker(time.Second * time.Duration(h.pingIntervalSecs))
	go func() {
		defer ticker.Stop()
		for {
			<-ticker.C // wait for tick
			h.mu.Lock()
			_, alive := h.conns[conn]
			h.mu.Unlock()
			if !alive {
				return
			}
			if conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)) != nil {
				h.drop(conn)
				return
			}
		}
	}()
}
