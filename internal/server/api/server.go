package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/resvault/internal/logging"
)

// Server serves the router on one TCP address.
type Server struct {
	server          *http.Server
	logger          logging.Logger
	shutdownTimeout time.Duration

	mu           sync.Mutex
	listener     net.Listener
	ready        chan struct{}
	shutdownOnce sync.Once
}

// NewServer returns a stopped server. Call Start to begin serving.
func NewServer(addr string, handler http.Handler, shutdownTimeout time.Duration, logger logging.Logger) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		logger:          logger.With("module", "http"),
		shutdownTimeout: shutdownTimeout,
		ready:           make(chan struct{}),
	}
}

// Start listens and blocks until ctx is cancelled or the server fails.
// Cancellation triggers a graceful shutdown bounded by the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "endpoint listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("endpoint server failed: %w", err)
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Stop shuts the server down gracefully. Safe to call more than once.
// When ctx expires first the remaining connections are closed, which
// cancels the contexts of the requests still running on them.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("endpoint shutdown: %w", err)
			s.logger.Error(ctx, "endpoint shutdown failed, closing connections", "error", err)
			_ = s.server.Close()
			return
		}
		s.logger.Info(ctx, "endpoint stopped")
	})
	return shutdownErr
}
