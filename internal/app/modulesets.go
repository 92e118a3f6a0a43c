package app

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"go.uber.org/fx"

	"github.com/dep2p/go-chainnet/config"
	"github.com/dep2p/go-chainnet/internal/discovery"
	"github.com/dep2p/go-chainnet/internal/metrics"
	"github.com/dep2p/go-chainnet/internal/peerstore"
	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/service"
	"github.com/dep2p/go-chainnet/internal/transport/libp2p"
	"github.com/dep2p/go-chainnet/internal/util/deadline"
	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// ============================================================================
//                              模块集合
// ============================================================================

// FoundationModules 基础层：身份、指标、节点信誉、致命错误处理
func FoundationModules() fx.Option {
	return fx.Module("foundation",
		fx.Provide(
			provideIdentity,
			provideMetrics,
			providePeerStore,
			provideFatalHandler,
		),
	)
}

// NetworkModules 网络层：发现、请求-响应协议、libp2p 传输
func NetworkModules() fx.Option {
	return fx.Module("network",
		fx.Provide(
			provideDiscovery,
			provideProtocols,
			provideConnections,
			service.NewAdmission,
			provideTransport,
		),
	)
}

// ServiceModules 服务层：门面与后端工作协程
func ServiceModules() fx.Option {
	return fx.Module("service",
		fx.Provide(provideService),
		fx.Invoke(registerBackend),
	)
}

// MonitoringModules 监控层：/metrics 服务
func MonitoringModules() fx.Option {
	return fx.Module("monitoring",
		fx.Provide(provideMetricsEndpoint),
	)
}

// ============================================================================
//                              基础层
// ============================================================================

func provideIdentity(cfg *config.Config) (crypto.PrivKey, error) {
	key, err := libp2p.LoadOrCreateIdentity(cfg.Identity.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("加载身份失败: %w", err)
	}
	return key, nil
}

// provideMetrics 未启用时返回 nil，各组件对 nil 指标是空操作
func provideMetrics(cfg *config.Config) *metrics.Metrics {
	if !cfg.Metrics.Enable {
		return nil
	}
	return metrics.New()
}

func providePeerStore(cfg *config.Config, m *metrics.Metrics) (*peerstore.Store, error) {
	return peerstore.New(peerStoreConfig(cfg.PeerStore), peerstore.WithMetrics(m))
}

// provideFatalHandler 致命错误时请求 fx 关闭整个应用
func provideFatalHandler(sd fx.Shutdowner) deadline.FatalHandler {
	return func(err error) {
		log.Error("致命错误，节点停止", "error", err)
		if sdErr := sd.Shutdown(fx.ExitCode(1)); sdErr != nil {
			log.Error("请求关闭失败", "error", sdErr)
		}
	}
}

// ============================================================================
//                              网络层
// ============================================================================

type discoveryOutput struct {
	fx.Out

	Discovery *discovery.Discovery
	Protocols *discovery.Protocols
}

func provideDiscovery(cfg *config.Config, ps *peerstore.Store, m *metrics.Metrics, fatal deadline.FatalHandler) (discoveryOutput, error) {
	genesis, err := cfg.Network.Genesis()
	if err != nil {
		return discoveryOutput{}, err
	}
	bootNodes, err := cfg.Network.ParsedBootNodes()
	if err != nil {
		return discoveryOutput{}, err
	}
	d, protocols := discovery.New(
		discoveryConfig(cfg.Discovery),
		genesis,
		cfg.Network.ForkID,
		cfg.Network.ProtocolID,
		bootNodes,
		ps,
		discovery.WithMetrics(m),
		discovery.WithFatalHandler(fatal),
	)
	return discoveryOutput{Discovery: d, Protocols: protocols}, nil
}

// Protocols 已注册的请求-响应协议
type Protocols struct {
	Set     *reqresp.ProtocolSet
	Handles []*reqresp.Transport

	// Inbound 接受入站请求的协议及其投递通道
	Inbound map[types.ProtocolName]<-chan reqresp.IncomingRequest
}

func provideProtocols(cfg *config.Config, d *discovery.Discovery, ps *peerstore.Store, m *metrics.Metrics, fatal deadline.FatalHandler) (*Protocols, error) {
	set := reqresp.NewProtocolSet(
		reqresp.WithDispatchDeadline(cfg.RequestResponse.DispatchDeadline.Duration()),
		reqresp.WithFatalHandler(fatal),
	)
	out := &Protocols{
		Set:     set,
		Inbound: make(map[types.ProtocolName]<-chan reqresp.IncomingRequest),
	}

	for _, pc := range cfg.RequestResponse.Protocols {
		var inbound chan reqresp.IncomingRequest
		if pc.InboundQueueSize > 0 {
			inbound = make(chan reqresp.IncomingRequest, pc.InboundQueueSize)
			out.Inbound[types.ProtocolName(pc.Name)] = inbound
		}
		handle, tr := reqresp.NewHandle(protocolConfig(pc, inbound), 0, d.Waker())
		p := reqresp.NewProtocol(handle, ps,
			reqresp.WithMetrics(m),
			reqresp.WithPollBudget(cfg.Events.PollBudget),
		)
		if err := set.Register(p); err != nil {
			return nil, err
		}
		out.Handles = append(out.Handles, tr)
	}
	return out, nil
}

// provideConnections 连接事件与发现共享唤醒器
func provideConnections(d *discovery.Discovery) *queue.Queue[types.ConnectionEvent] {
	return queue.New[types.ConnectionEvent](d.Waker())
}

type transportInput struct {
	fx.In

	LC          fx.Lifecycle
	Config      *config.Config
	Key         crypto.PrivKey
	PeerStore   *peerstore.Store
	Admission   *service.Admission
	Connections *queue.Queue[types.ConnectionEvent]
	Discovery   *discovery.Protocols
	Protocols   *Protocols
}

func provideTransport(in transportInput) (*libp2p.Transport, error) {
	tc, err := transportConfig(in.Config)
	if err != nil {
		return nil, err
	}
	gater := libp2p.NewGater(
		in.Admission.Allow,
		func(p types.PeerID) bool { return !in.PeerStore.IsBanned(p) },
	)
	t, err := libp2p.New(tc, in.Key, gater, in.Connections)
	if err != nil {
		return nil, err
	}
	in.PeerStore.SetOnBanned(t.Disconnect)

	registerTransport(in.LC, t, in.Discovery, in.Protocols.Handles)
	return t, nil
}

// ============================================================================
//                              服务层
// ============================================================================

type serviceInput struct {
	fx.In

	Config      *config.Config
	Key         crypto.PrivKey
	Discovery   *discovery.Discovery
	Protocols   *Protocols
	Transport   *libp2p.Transport
	PeerStore   *peerstore.Store
	Connections *queue.Queue[types.ConnectionEvent]
	Admission   *service.Admission
	Metrics     *metrics.Metrics
}

type serviceOutput struct {
	fx.Out

	Service service.Service
	Backend *service.Backend
}

func provideService(in serviceInput) (serviceOutput, error) {
	sc, err := serviceConfig(in.Config)
	if err != nil {
		return serviceOutput{}, err
	}
	svc, backend, err := service.New(sc, service.Params{
		LocalKey:    in.Key,
		Discovery:   in.Discovery,
		Protocols:   in.Protocols.Set,
		Transport:   in.Transport,
		PeerStore:   in.PeerStore,
		Connections: in.Connections,
		Admission:   in.Admission,
		Metrics:     in.Metrics,
	})
	if err != nil {
		return serviceOutput{}, err
	}
	return serviceOutput{Service: svc, Backend: backend}, nil
}
