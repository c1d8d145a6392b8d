// Package ws provides WebSocket server functionality for chat clients.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/conclave/internal/config"
	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/hub"
	"github.com/xiaot623/conclave/internal/pipeline"
)

// Runner answers one query, writing its events into out.
type Runner interface {
	Run(ctx context.Context, connID string, q domain.Query, out chan<- domain.StreamEvent) pipeline.Outcome
}

// ChatMessage is the only message a client sends. A message sent while an
// answer is still streaming is refused; its Error event is delivered after
// the in-flight answer's terminal event.
type ChatMessage struct {
	Message string `json:"message"`
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	runner   Runner
	upgrader websocket.Upgrader

	// ctx bounds every connection; cancelled by Shutdown.
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, runner Runner) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		hub:    h,
		runner: runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	conn := s.hub.NewConnection(s.ctx, ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// Shutdown cancels every connection and waits for in-flight requests to stop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		conn.Session.Touch()

		s.handleMessage(conn, message)
	}
}

// writePump is the connection's only writer.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-conn.Done():
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleMessage validates a chat message and starts its request worker.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "Error: invalid JSON message")
		return
	}
	if strings.TrimSpace(msg.Message) == "" {
		s.sendError(conn, "Error: message is required")
		return
	}

	if !conn.Session.TryBegin() {
		return
	}

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		s.process(conn, domain.NewQuery(msg.Message))
		s.release(conn)
	}()
}

// release answers messages refused during the request, then idles the session.
func (s *Server) release(conn *hub.Connection) {
	for !conn.Session.End() {
		for n := conn.Session.TakeRejected(); n > 0; n-- {
			if err := s.hub.DeliverJSON(conn, domain.NewEvent(domain.EventError, domain.ErrSessionBusy.Error())); err != nil {
				log.Printf("WARN: failed to send busy error to %s: %v", conn.ID, err)
			}
		}
	}
}

// process runs one request, relaying its events to the write pump in order.
func (s *Server) process(conn *hub.Connection, q domain.Query) {
	events := make(chan domain.StreamEvent)
	forwarded := make(chan struct{})

	go func() {
		defer close(forwarded)
		for ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("ERROR: marshal event: %v", err)
				continue
			}
			if err := s.hub.Deliver(conn, data); err != nil {
				// Connection gone; drain so the producer never blocks.
				for range events {
				}
				return
			}
		}
	}()

	outcome := s.runner.Run(conn.Context(), conn.ID, q, events)
	close(events)
	<-forwarded

	log.Printf("Query %s finished: mode=%s stage=%s run_id=%s", q.ID, outcome.Mode, outcome.Stage, outcome.RunID)
}

// sendError sends a single error event outside of any request.
func (s *Server) sendError(conn *hub.Connection, content string) {
	if err := s.hub.SendJSONToConnection(conn, domain.NewEvent(domain.EventError, content)); err != nil {
		log.Printf("WARN: failed to send error to %s: %v", conn.ID, err)
	}
}
