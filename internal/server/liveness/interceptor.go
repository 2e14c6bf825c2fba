package liveness

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
)

func (s *Server) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	addr := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr = p.Addr.String()
	}
	args := []any{"method", info.FullMethod, "peer", addr, "duration", time.Since(start).String()}
	if err != nil {
		s.logger.Warn(ctx, "liveness call failed", append(args, "error", err)...)
	} else {
		s.logger.Debug(ctx, "liveness call", args...)
	}
	return resp, err
}
