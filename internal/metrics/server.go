package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves Prometheus metrics on a dedicated address.
type Server struct {
	server *http.Server
	log    *zap.Logger
}

// NewServer creates a new metrics server.
func NewServer(addr string, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &Server{
		log: log,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("metrics server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down metrics server")
	return s.server.Shutdown(ctx)
}
