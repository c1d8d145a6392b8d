package commands

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/conclave/internal/app"
	"github.com/xiaot623/conclave/internal/config"
	"github.com/xiaot623/conclave/internal/hub"
	internalhttp "github.com/xiaot623/conclave/internal/transport/http"
	v1 "github.com/xiaot623/conclave/internal/transport/http/v1"
	"github.com/xiaot623/conclave/internal/transport/rpc"
	"github.com/xiaot623/conclave/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Long: `Start the service: the chat WebSocket at /ws/chat, the readiness probe at
/health, the synchronous /v1 API and, when RPC_PORT is set, the JSON-RPC listener.

Configuration is read from the environment, an optional .env file and the
file named by CONCLAVE_CONFIG.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log.Printf("Starting conclave...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Inference: %s at %s", cfg.Backend, cfg.BaseURL)
	log.Printf("Mode: %s", cfg.Mode())
	if cfg.TraceDatabaseURL != "" {
		log.Printf("Trace database: %s", cfg.TraceDatabaseURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	connectionHub := hub.NewHub()
	go connectionHub.Run(hubCtx)

	wsServer := ws.NewServer(cfg, connectionHub, a.Pipeline)

	var runs v1.RunReader
	if a.Store != nil {
		runs = a.Store
	}
	httpServer := internalhttp.NewServer(a, wsServer.HandleWebSocket, v1.NewHandler(a.Pipeline, runs))

	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	log.Printf("HTTP server started on port %d", cfg.HTTPPort)

	var rpcServer *rpc.Server
	if cfg.RPCPort > 0 {
		rpcServer, err = rpc.NewServer(a.Pipeline, a, 2*cfg.CallTimeout)
		if err != nil {
			return err
		}
		go func() {
			addr := fmt.Sprintf(":%d", cfg.RPCPort)
			if err := rpcServer.Start(addr); err != nil {
				errCh <- fmt.Errorf("rpc server: %w", err)
			}
		}()
		log.Printf("RPC server started on port %d", cfg.RPCPort)
	}

	select {
	case <-ctx.Done():
		log.Println("Shutting down conclave...")
	case err := <-errCh:
		log.Printf("ERROR: %v", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to drain WebSocket requests: %v", err)
	}
	if rpcServer != nil {
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown RPC server gracefully: %v", err)
		}
	}
	stopHub()

	log.Println("conclave stopped")
	return nil
}
