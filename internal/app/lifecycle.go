package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-chainnet/config"
	"github.com/dep2p/go-chainnet/internal/discovery"
	"github.com/dep2p/go-chainnet/internal/metrics"
	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/service"
	"github.com/dep2p/go-chainnet/internal/transport/libp2p"
	"github.com/dep2p/go-chainnet/internal/util/deadline"
)

// ============================================================================
//                              生命周期钩子
// ============================================================================

// registerTransport 启动时接入子协议，停止时关闭主机
//
// 传输层在后端之前注册，因此在后端之后停止。
func registerTransport(lc fx.Lifecycle, t *libp2p.Transport, protocols *discovery.Protocols, handles []*reqresp.Transport) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// 后台任务的生命周期由 Close 控制，不跟随启动超时
			if err := t.Start(context.Background(), protocols, handles); err != nil {
				_ = t.Close()
				return fmt.Errorf("启动传输层失败: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return t.Close()
		},
	})
}

// registerBackend 在独立协程中运行后端
//
// 后端因事件源耗尽而退出时按致命错误处理。
func registerBackend(lc fx.Lifecycle, backend *service.Backend, fatal deadline.FatalHandler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := backend.Run(ctx); err != nil {
					fatal(err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return fmt.Errorf("等待后端退出超时: %w", stopCtx.Err())
			}
		},
	})
}

// metricsEndpoint 已启动的指标服务，未启用时为空
type metricsEndpoint struct {
	server *metrics.Server
}

func provideMetricsEndpoint(lc fx.Lifecycle, cfg *config.Config, m *metrics.Metrics) *metricsEndpoint {
	ep := &metricsEndpoint{}
	if m == nil {
		return ep
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			srv, err := m.Listen(cfg.Metrics.ListenAddr)
			if err != nil {
				return fmt.Errorf("启动指标服务失败: %w", err)
			}
			ep.server = srv
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if ep.server == nil {
				return nil
			}
			return ep.server.Close(ctx)
		},
	})
	return ep
}
