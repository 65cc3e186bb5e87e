// Package server exposes the order service over HTTP: order submission,
// cancellation, and history queries for the local owner account.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyip/limitbot/internal/server/handler"
	"github.com/alanyip/limitbot/internal/server/middleware"
)

// shutdownTimeout bounds how long in-flight requests may drain on stop.
const shutdownTimeout = 10 * time.Second

// Config holds the HTTP server configuration.
type Config struct {
	Addr string
}

// Handlers aggregates the handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Orders *handler.OrderHandler
}

// Server is the HTTP API server for the order service.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered.
func New(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)

	h := middleware.Logging(logger)(mux)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the composed request handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens for requests until the context is cancelled, then drains
// in-flight requests before returning the context's error.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}
