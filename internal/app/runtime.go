package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-chainnet/internal/metrics"
	"github.com/dep2p/go-chainnet/internal/peerstore"
	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/service"
	"github.com/dep2p/go-chainnet/internal/transport/libp2p"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// Runtime 表示一个已通过 fx 组装完成的 chainnet 运行时
type Runtime struct {
	Service   service.Service
	Transport *libp2p.Transport
	PeerStore *peerstore.Store
	Metrics   *metrics.Metrics

	inbound map[types.ProtocolName]<-chan reqresp.IncomingRequest
	metrics *metricsEndpoint
	done    <-chan fx.ShutdownSignal
	stop    func(ctx context.Context) error
}

type runtimeInput struct {
	fx.In

	Service   service.Service
	Transport *libp2p.Transport
	PeerStore *peerstore.Store
	Metrics   *metrics.Metrics
	Protocols *Protocols
	Endpoint  *metricsEndpoint
}

func newRuntime(in runtimeInput) *Runtime {
	return &Runtime{
		Service:   in.Service,
		Transport: in.Transport,
		PeerStore: in.PeerStore,
		Metrics:   in.Metrics,
		inbound:   in.Protocols.Inbound,
		metrics:   in.Endpoint,
	}
}

// Inbound 返回协议的入站请求通道；协议未配置入站队列时为 nil
func (r *Runtime) Inbound(protocol types.ProtocolName) <-chan reqresp.IncomingRequest {
	return r.inbound[protocol]
}

// MetricsAddr 指标服务实际监听地址，未启用时为空
func (r *Runtime) MetricsAddr() string {
	if r.metrics == nil || r.metrics.server == nil {
		return ""
	}
	return r.metrics.server.Addr()
}

// Done 在应用请求关闭（包括致命错误）时收到信号
func (r *Runtime) Done() <-chan fx.ShutdownSignal {
	return r.done
}

// Stop 停止运行时（触发 fx 生命周期 OnStop）
func (r *Runtime) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	return r.stop(ctx)
}
