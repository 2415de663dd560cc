// Package server runs the HTTP listener with graceful shutdown.
package server

import (
	"context"
	"net/http"
	"time"

	"lifelog-ingest/internal/common/logging"
)

// Server wraps the http listener.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
}

// New creates the server for a handler on a port.
func New(port string, handler http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Global()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", logging.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
