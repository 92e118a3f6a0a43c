package libp2p

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-chainnet/internal/discovery"
	"github.com/dep2p/go-chainnet/internal/util/logger"
)

// pingTimeout 单次 ping 时限
const pingTimeout = 10 * time.Second

// runPing 周期性 ping 所有已连接节点
func (t *Transport) runPing(ctx context.Context, cfg discovery.PingConfig) error {
	defer cfg.Events.Close()

	interval := cfg.Interval
	if interval <= 0 {
		interval = discovery.DefaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.pingAll(ctx, cfg)
		}
	}
}

func (t *Transport) pingAll(ctx context.Context, cfg discovery.PingConfig) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.PingParallelism)

	for _, p := range t.host.Network().Peers() {
		g.Go(func() error {
			t.pingOne(gctx, p, cfg)
			return nil
		})
	}
	_ = g.Wait()
}

func (t *Transport) pingOne(ctx context.Context, p peer.ID, cfg discovery.PingConfig) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	select {
	case res := <-ping.Ping(ctx, t.host, p):
		if res.Error != nil {
			log.Debug("ping 失败", "peer", logger.ShortPeer(p), "error", res.Error)
			return
		}
		_ = cfg.Events.Push(discovery.PingEvent{Peer: p, RTT: res.RTT})
	case <-ctx.Done():
	}
}
