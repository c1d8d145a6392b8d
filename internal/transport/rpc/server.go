// Package rpc exposes the query pipeline over JSON-RPC for internal clients.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/pipeline"
)

// ServiceName is the registered JSON-RPC service name.
const ServiceName = "Conclave"

// Asker answers a query without streaming.
type Asker interface {
	Answer(ctx context.Context, q domain.Query) (pipeline.Outcome, error)
}

// Prober reports what the service is serving.
type Prober interface {
	Models() map[string]string
	Mode() domain.Mode
}

// Server exposes RPC endpoints.
type Server struct {
	rpcServer *rpc.Server
	done      chan struct{}

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new RPC server. timeout bounds each Ask call; zero
// means unbounded.
func NewServer(asker Asker, prober Prober, timeout time.Duration) (*Server, error) {
	rpcServer := rpc.NewServer()
	handler := &Handler{asker: asker, prober: prober, timeout: timeout}
	if err := rpcServer.RegisterName(ServiceName, handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts RPC connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			log.Printf("RPC accept error: %v", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	if err := ln.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the RPC methods.
type Handler struct {
	asker   Asker
	prober  Prober
	timeout time.Duration
}

// AskRequest carries the question.
type AskRequest struct {
	Message string `json:"message"`
}

// AskResponse is the answer to an Ask call.
type AskResponse struct {
	RunID     string                  `json:"run_id,omitempty"`
	Answer    string                  `json:"answer"`
	UsedRoles []domain.RoleName       `json:"used_roles"`
	Degraded  bool                    `json:"degraded"`
	Mode      domain.Mode             `json:"mode"`
	Routing   *domain.RoutingDecision `json:"routing,omitempty"`
}

// HealthRequest is empty.
type HealthRequest struct{}

// HealthResponse mirrors the HTTP readiness probe.
type HealthResponse struct {
	Status string            `json:"status"`
	Roles  map[string]string `json:"roles"`
	Mode   domain.Mode       `json:"mode"`
}

// Ask answers one question.
func (h *Handler) Ask(req *AskRequest, resp *AskResponse) error {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return errors.New("message is required")
	}

	ctx := context.Background()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	outcome, err := h.asker.Answer(ctx, domain.NewQuery(req.Message))
	if err != nil {
		return err
	}

	resp.RunID = outcome.RunID
	resp.Answer = outcome.Answer.Text
	resp.UsedRoles = outcome.Answer.UsedRoles
	resp.Degraded = outcome.Answer.Degraded
	resp.Mode = outcome.Mode
	resp.Routing = outcome.Routing
	return nil
}

// Health reports the configured roles and mode.
func (h *Handler) Health(_ *HealthRequest, resp *HealthResponse) error {
	resp.Status = "healthy"
	resp.Roles = h.prober.Models()
	resp.Mode = h.prober.Mode()
	return nil
}
