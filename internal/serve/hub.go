package serve

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is pushed to every connected client after a build
type Event struct {
	Type      string  `json:"type"` // "updated" or "error"
	Timestamp int64   `json:"timestamp"`
	Nodes     int     `json:"nodes,omitempty"`
	Links     int     `json:"links,omitempty"`
	Duration  float64 `json:"duration,omitempty"` // Milliseconds
	Error     string  `json:"error,omitempty"`
}

const (
	// DefaultPongWait is how long a client may stay silent before it is
	// dropped
	DefaultPongWait = 60 * time.Second

	writeWait = 5 * time.Second
)

// Hub fans build events out to websocket clients
type Hub struct {
	connections map[*websocket.Conn]bool
	broadcast   chan *Event
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *zap.Logger

	// pongWait bounds silence from a client; pings go out twice per period
	pongWait time.Duration
}

// NewHub creates a hub and starts its event loop
func NewHub(logger *zap.Logger) *Hub {
	return newHub(logger, DefaultPongWait)
}

func newHub(logger *zap.Logger, pongWait time.Duration) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		connections: make(map[*websocket.Conn]bool),
		broadcast:   make(chan *Event, 64),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		done:        make(chan struct{}),
		logger:      logger,
		pongWait:    pongWait,
		upgrader: websocket.Upgrader{
			CheckOrigin:     localOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	go h.run()

	return h
}

// localOrigin accepts requests without an Origin and pages served from a
// loopback host
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func (h *Hub) run() {
	ping := time.NewTicker(h.pongWait / 2)
	defer ping.Stop()

	for {
		select {
		case <-h.done:
			return

		case <-ping.C:
			h.pingAll()

		case conn := <-h.register:
			h.mutex.Lock()
			h.connections[conn] = true
			count := len(h.connections)
			h.mutex.Unlock()
			h.logger.Debug("client connected", zap.Int("clients", count))

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				conn.Close()
			}
			count := len(h.connections)
			h.mutex.Unlock()
			h.logger.Debug("client disconnected", zap.Int("clients", count))

		case event := <-h.broadcast:
			h.sendToAll(event)
		}
	}
}

// sendToAll writes event to every client, dropping clients that fail.
// Only the run goroutine writes to connections.
func (h *Hub) sendToAll(event *Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to marshal event", zap.Error(err))
		return
	}
	h.writeAll(websocket.TextMessage, payload)
}

// pingAll keeps idle clients alive; their pongs extend the read deadline
func (h *Hub) pingAll() {
	h.writeAll(websocket.PingMessage, nil)
}

func (h *Hub) writeAll(messageType int, payload []byte) {
	h.mutex.RLock()
	var failed []*websocket.Conn
	for conn := range h.connections {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(messageType, payload); err != nil {
			h.logger.Debug("failed to write to client", zap.Error(err))
			failed = append(failed, conn)
		}
	}
	h.mutex.RUnlock()

	if len(failed) > 0 {
		h.mutex.Lock()
		for _, conn := range failed {
			if _, ok := h.connections[conn]; ok {
				conn.Close()
				delete(h.connections, conn)
			}
		}
		h.mutex.Unlock()
	}
}

// HandleWebSocket upgrades the request and registers the client
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("failed to upgrade connection", zap.Error(err))
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go h.readMessages(conn)
}

// readMessages drains the client until it goes away
func (h *Hub) readMessages(conn *websocket.Conn) {
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket error", zap.Error(err))
			}
			return
		}
	}
}

// Notify queues event for every client. Events queued after Close are
// dropped.
func (h *Hub) Notify(event *Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

// ConnectionCount returns the number of connected clients
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.connections)
}

// Close disconnects every client and stops the event loop
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.connections {
		conn.Close()
	}
	h.connections = make(map[*websocket.Conn]bool)
}
