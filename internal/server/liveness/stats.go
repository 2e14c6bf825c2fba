package liveness

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/stats"

	"github.com/dmitrijs2005/resvault/internal/logging"
)

// Observer is told about liveness peers coming and going.
type Observer interface {
	PeerConnected(ctx context.Context, addr string)
	PeerDisconnected(ctx context.Context, addr string)
}

type ctxKey struct{}

// connStats turns gRPC connection events into Observer calls.
type connStats struct {
	observer Observer
}

func (c *connStats) TagConn(ctx context.Context, info *stats.ConnTagInfo) context.Context {
	addr := "unknown"
	if info.RemoteAddr != nil {
		addr = info.RemoteAddr.String()
	}
	return context.WithValue(ctx, ctxKey{}, addr)
}

func (c *connStats) HandleConn(ctx context.Context, s stats.ConnStats) {
	if c.observer == nil {
		return
	}
	addr, _ := ctx.Value(ctxKey{}).(string)
	switch s.(type) {
	case *stats.ConnBegin:
		c.observer.PeerConnected(ctx, addr)
	case *stats.ConnEnd:
		c.observer.PeerDisconnected(ctx, addr)
	}
}

func (c *connStats) TagRPC(ctx context.Context, _ *stats.RPCTagInfo) context.Context {
	return ctx
}

func (c *connStats) HandleRPC(context.Context, stats.RPCStats) {}

// PeerGauge logs peers and tracks how many are connected.
type PeerGauge struct {
	logger logging.Logger
	peers  prometheus.Gauge
}

func NewPeerGauge(reg prometheus.Registerer, logger logging.Logger) *PeerGauge {
	return &PeerGauge{
		logger: logger.With("module", "liveness"),
		peers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "resvault_liveness_peers",
			Help: "Peers connected to the liveness channel",
		}),
	}
}

func (g *PeerGauge) PeerConnected(ctx context.Context, addr string) {
	g.peers.Inc()
	g.logger.Info(ctx, "liveness peer connected", "peer", addr)
}

func (g *PeerGauge) PeerDisconnected(ctx context.Context, addr string) {
	g.peers.Dec()
	g.logger.Info(ctx, "liveness peer disconnected", "peer", addr)
}
