// SPDX-License-Identifier: MIT

// Package server exposes the tuner's HTTP surface: the result WebSocket,
// Prometheus metrics and the health probes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"tuner/internal/health"
	applog "tuner/internal/log"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

// Config selects what the server mounts. Nil handlers are left out.
type Config struct {
	Addr            string
	WebSocket       http.Handler // GET /ws
	Metrics         http.Handler // GET /metrics
	Health          *health.Handler
	ShutdownTimeout time.Duration
}

// Server is a small HTTP server bound to a context.
type Server struct {
	cfg Config
	srv *http.Server
	mux *http.ServeMux

	ready chan struct{}
	bound net.Addr
}

// New builds the routes. Nothing listens until Run.
func New(cfg Config) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	mux := http.NewServeMux()
	if cfg.WebSocket != nil {
		mux.Handle("GET /ws", cfg.WebSocket)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}

	return &Server{
		cfg: cfg,
		mux: mux,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		ready: make(chan struct{}),
	}
}

// Handler returns the route table, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Run listens and serves until ctx is done, then shuts down gracefully.
// A clean shutdown returns nil. Run may be called once.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.bound = ln.Addr()
	close(s.ready)
	applog.Infof("Server: Listening on http://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	applog.Debugf("Server: Shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	applog.Infof("Server: Stopped")
	return nil
}

// Addr blocks until Run is listening and returns the bound address, or
// returns nil when ctx ends first.
func (s *Server) Addr(ctx context.Context) net.Addr {
	select {
	case <-s.ready:
		return s.bound
	case <-ctx.Done():
		return nil
	}
}
