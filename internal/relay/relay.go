// Package relay forwards scanner events to browser clients over websockets.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rickgao/esr-receiver/internal/router"
)

// DefaultClientBuffer is the per-client send queue length.
const DefaultClientBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newClient(conn *websocket.Conn, buffer int) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, buffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Relay is a router.Sink that broadcasts every event to connected websocket
// clients. New clients receive the last known state first.
type Relay struct {
	logger         *slog.Logger
	buffer         int
	allowedOrigins map[string]bool
	upgrader       websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool
	last    []byte // Last state message
	closed  bool
}

// New creates a Relay. An empty allowedOrigins list accepts same-host and
// localhost origins only.
func New(allowedOrigins []string, clientBuffer int, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if clientBuffer < 1 {
		clientBuffer = DefaultClientBuffer
	}

	r := &Relay{
		logger:         logger,
		buffer:         clientBuffer,
		allowedOrigins: make(map[string]bool),
		clients:        make(map[*client]bool),
	}
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			r.allowedOrigins[trimmed] = true
		}
	}
	r.upgrader = websocket.Upgrader{CheckOrigin: r.checkOrigin}
	return r
}

// Name implements router.Sink.
func (r *Relay) Name() string { return "relay" }

// Handle implements router.Sink.
func (r *Relay) Handle(_ context.Context, ev router.Event) error {
	msg, ok := fromEvent(ev)
	if !ok {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}

	if msg.Type == MsgState {
		r.mu.Lock()
		r.last = data
		r.mu.Unlock()
	}
	r.broadcast(data)
	return nil
}

// ServeHTTP upgrades the request and registers the client until it disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}

	c, ok := r.addClient(conn)
	if !ok {
		conn.Close()
		return
	}
	r.logger.Info("relay client connected", "remote", req.RemoteAddr)

	go func() {
		defer func() {
			r.removeClient(c)
			r.logger.Info("relay client disconnected", "remote", req.RemoteAddr)
		}()
		// Clients never send; reading only detects the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (r *Relay) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close disconnects every client and rejects new ones.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for c := range r.clients {
		delete(r.clients, c)
		c.close()
	}
	return nil
}

func (r *Relay) addClient(conn *websocket.Conn) (*client, bool) {
	c := newClient(conn, r.buffer)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		c.close()
		return nil, false
	}
	r.clients[c] = true
	if r.last != nil {
		c.send <- r.last
	}
	return c, true
}

func (r *Relay) removeClient(c *client) {
	r.mu.Lock()
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		c.close()
	}
	r.mu.Unlock()
}

func (r *Relay) broadcast(data []byte) {
	// Sends happen under the read lock so no channel is closed mid-send
	var slow []*client
	r.mu.RLock()
	for c := range r.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range slow {
		r.logger.Warn("relay client too slow, disconnecting", "remote", c.conn.RemoteAddr())
		r.removeClient(c)
	}
}

func (r *Relay) checkOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if r.allowedOrigins[origin] {
		return true
	}
	if len(r.allowedOrigins) > 0 {
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == req.Host {
		return true
	}
	host := parsed.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
