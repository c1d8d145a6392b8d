// Package http provides the HTTP server: probes, the chat WebSocket route and the v1 API.
package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/conclave/internal/domain"
	v1 "github.com/xiaot623/conclave/internal/transport/http/v1"
)

// Banner is the body of GET /.
const Banner = "Conclave - Multi-Expert Query Backend Running"

// Prober reports what the service is serving.
type Prober interface {
	Models() map[string]string
	Mode() domain.Mode
}

// Server is the public HTTP server.
type Server struct {
	echo   *echo.Echo
	prober Prober
}

// NewServer creates the HTTP server. ws handles the chat WebSocket upgrade.
func NewServer(prober Prober, ws echo.HandlerFunc, api *v1.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:   e,
		prober: prober,
	}

	e.GET("/", s.handleRoot)
	e.GET("/health", s.handleHealth)
	if ws != nil {
		e.GET("/ws/chat", ws)
		e.GET("/ws", ws)
	}
	if api != nil {
		api.RegisterRoutes(e)
	}

	return s
}

// Echo exposes the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": Banner})
}

// handleHealth handles readiness probes.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"roles":  s.prober.Models(),
		"mode":   s.prober.Mode(),
	})
}
