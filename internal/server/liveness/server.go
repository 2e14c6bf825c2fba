// Package liveness runs the companion gRPC channel next to the resource
// endpoint. It carries the standard health service, whose Watch stream
// pushes serving status changes to connected peers, and reports peer
// connects and disconnects to an Observer.
package liveness

import (
	"context"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/resvault/internal/logging"
)

// ServiceName is the health service name reported next to the overall "" entry.
const ServiceName = "resvault"

// stopGrace bounds GracefulStop, which otherwise waits for Watch streams
// that only end when the peer hangs up.
const stopGrace = 2 * time.Second

type Server struct {
	address  string
	logger   logging.Logger
	observer Observer
	health   *health.Server

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewServer returns a server reporting NOT_SERVING until SetServing(true).
// observer may be nil.
func NewServer(address string, observer Observer, logger logging.Logger) *Server {
	s := &Server{
		address:  address,
		logger:   logger.With("module", "liveness"),
		observer: observer,
		health:   health.NewServer(),
		ready:    make(chan struct{}),
	}
	s.SetServing(false)
	return s
}

// SetServing flips the status of both the overall and the named service.
// Watch subscribers get the new status pushed.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listen
	s.mu.Unlock()
	close(s.ready)

	srv := grpc.NewServer(
		grpc.StatsHandler(&connStats{observer: s.observer}),
		grpc.ChainUnaryInterceptor(s.loggingInterceptor),
	)
	healthpb.RegisterHealthServer(srv, s.health)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping liveness server...")
		s.health.Shutdown()

		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(stopGrace):
			srv.Stop()
		}
	}()

	s.logger.Info(ctx, "Starting liveness server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound address, or the configured one before Run.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}
