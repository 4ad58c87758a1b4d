package fanout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrConnClosed      = errors.New("fanout: connection closed")
	ErrSendQueueFull   = errors.New("fanout: send queue full")
	ErrStaleConnection = errors.New("fanout: connection stale")
)

// WSConfig holds websocket transport settings.
type WSConfig struct {
	WriteTimeout   time.Duration // Deadline per frame write (default: 5s)
	PingInterval   time.Duration // Heartbeat period (default: 30s)
	PongTimeout    time.Duration // Silence before a connection is stale (default: 60s)
	SendQueue      int           // Buffered outbound frames per client (default: 256)
	MaxMessageSize int64         // Inbound frame limit in bytes (default: 64KB)
}

// DefaultWSConfig returns sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		WriteTimeout:   5 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		SendQueue:      256,
		MaxMessageSize: 64 * 1024,
	}
}

func (c WSConfig) withDefaults() WSConfig {
	d := DefaultWSConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.SendQueue <= 0 {
		c.SendQueue = d.SendQueue
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}

// wsConn is a server-side websocket client.
type wsConn struct {
	id     string
	cfg    WSConfig
	conn   *websocket.Conn
	logger *slog.Logger

	send chan []byte
	done chan struct{}

	writeMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	lastPongAt time.Time
}

func newWSConn(conn *websocket.Conn, cfg WSConfig, logger *slog.Logger) *wsConn {
	c := &wsConn{
		id:         uuid.NewString(),
		cfg:        cfg,
		conn:       conn,
		send:       make(chan []byte, cfg.SendQueue),
		done:       make(chan struct{}),
		lastPongAt: time.Now(),
	}
	c.logger = logger.With("client_id", c.id)

	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		c.touch()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(cfg.WriteTimeout))
	})
	return c
}

func (c *wsConn) ID() string { return c.id }

// Send enqueues data without blocking. A full queue closes the connection.
func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
	}
	c.logger.Warn("send queue full, closing slow client", "queue", c.cfg.SendQueue)
	c.closeLocked()
	return ErrSendQueueFull
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *wsConn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)

	c.writeMu.Lock()
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	c.conn.Close()
}

func (c *wsConn) touch() {
	c.mu.Lock()
	c.lastPongAt = time.Now()
	c.mu.Unlock()
}

func (c *wsConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// writeLoop drains the send queue.
func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.write(data); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close()
				return
			}
		}
	}
}

// heartbeatLoop pings the peer and closes the connection when it goes quiet.
func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.Lock()
			lastPong := c.lastPongAt
			c.mu.Unlock()

			if time.Since(lastPong) > c.cfg.PongTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", c.cfg.PongTimeout,
				)
				c.Close()
				return
			}
		}
	}
}

// WSHandler serves the hub over websocket.
type WSHandler struct {
	hub      *Hub
	cfg      WSConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a websocket handler for hub.
func NewWSHandler(hub *Hub, cfg WSConfig, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		hub: hub,
		cfg: cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "ws"),
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "error", err)
		return
	}

	c := newWSConn(ws, h.cfg, h.logger)
	h.hub.Connect(c)

	go c.writeLoop()
	go c.heartbeatLoop()

	reason := h.readLoop(r.Context(), c)
	h.hub.Disconnect(c.id, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, c *wsConn) string {
	c.conn.SetReadLimit(h.cfg.MaxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return "closed"
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "client closed"
			}
			return err.Error()
		}
		c.touch()
		h.hub.HandleMessage(ctx, c.id, data)
	}
}
