// Package hub provides connection management for WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/conclave/internal/stream"
)

// Connection represents a single WebSocket connection and its session.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Session *stream.Session

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// Hub is the registry of live connections.
type Hub struct {
	connections map[string]*Connection

	register   chan *Connection
	unregister chan *Connection
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing every
// remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			log.Printf("Connection registered: %s", conn.ID)

		case conn := <-h.unregister:
			h.remove(conn)

		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				conn.cancel()
				delete(h.connections, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; ok {
		delete(h.connections, conn.ID)
		log.Printf("Connection unregistered: %s", conn.ID)
	}
	// Cancels the in-flight request and stops the write pump.
	conn.cancel()
}

// NewConnection creates a connection with a fresh session. ws may be nil in tests.
func (h *Hub) NewConnection(parent context.Context, ws *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.New().String()
	return &Connection{
		ID:      id,
		Conn:    ws,
		Send:    make(chan []byte, 256),
		Session: stream.NewSession(id),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register registers a connection with the hub. After Run has returned the
// connection is closed instead.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.cancel()
	}
}

// Unregister removes a connection and cancels its context.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
		conn.cancel()
	}
}

// Deliver queues data for the connection's writer, waiting for buffer space.
// It fails once the connection is closed.
func (h *Hub) Deliver(conn *Connection, data []byte) error {
	select {
	case conn.Send <- data:
		return nil
	case <-conn.ctx.Done():
		return ErrConnectionClosed
	}
}

// DeliverJSON marshals v and delivers it.
func (h *Hub) DeliverJSON(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Deliver(conn, data)
}

// SendToConnection queues data without waiting.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	select {
	case <-conn.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection sends a JSON message to a specific connection without waiting.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Context is cancelled when the connection closes.
func (c *Connection) Context() context.Context {
	return c.ctx
}

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying socket and cancels the connection context.
func (c *Connection) Close() error {
	c.cancel()
	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}

// ErrConnectionClosed is returned when delivering to a closed connection.
var ErrConnectionClosed = &ConnectionClosedError{}

// ConnectionClosedError represents delivery to a closed connection.
type ConnectionClosedError struct{}

func (e *ConnectionClosedError) Error() string {
	return "connection closed"
}
