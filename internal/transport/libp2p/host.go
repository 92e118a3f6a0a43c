package libp2p

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	golibp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/metrics"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-chainnet/internal/discovery"
	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/types"
)

var log = logger.Logger("transport/libp2p")

// 默认参数
const (
	DefaultConnMgrLow   = 32
	DefaultConnMgrHigh  = 96
	DefaultConnMgrGrace = time.Minute

	// DefaultPingParallelism 单轮 ping 的最大并发
	DefaultPingParallelism = 8

	// DefaultUserAgent 默认用户代理
	DefaultUserAgent = "go-chainnet"
)

// Config 传输层配置
type Config struct {
	// ListenAddrs 监听地址，如 /ip4/0.0.0.0/tcp/30333
	ListenAddrs []string

	ConnMgrLow   int
	ConnMgrHigh  int
	ConnMgrGrace time.Duration

	// Roles 本节点角色，通过握手告知远端
	Roles types.Roles

	PingParallelism int
	UserAgent       string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ListenAddrs:     []string{"/ip4/0.0.0.0/tcp/30333"},
		ConnMgrLow:      DefaultConnMgrLow,
		ConnMgrHigh:     DefaultConnMgrHigh,
		ConnMgrGrace:    DefaultConnMgrGrace,
		Roles:           types.RoleFull,
		PingParallelism: DefaultPingParallelism,
		UserAgent:       DefaultUserAgent,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.ConnMgrLow < 0 || c.ConnMgrHigh < c.ConnMgrLow {
		return fmt.Errorf("%w: conn manager water marks %d/%d", ErrInvalidConfig, c.ConnMgrLow, c.ConnMgrHigh)
	}
	if c.Roles == 0 {
		return fmt.Errorf("%w: roles not set", ErrInvalidConfig)
	}
	return nil
}

// Transport libp2p 传输适配层
type Transport struct {
	cfg         Config
	host        host.Host
	bandwidth   *metrics.BandwidthCounter
	connmgr     *connmgr.BasicConnMgr
	gater       *Gater
	connections *queue.Queue[types.ConnectionEvent]
	notifee     *network.NotifyBundle
	links       *peerLinks

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	closers []io.Closer
}

// New 创建 libp2p 主机
//
// connections 接收连接变化，通常是后端的 Connections() 队列。
func New(cfg Config, key crypto.PrivKey, gater *Gater, connections *queue.Queue[types.ConnectionEvent]) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PingParallelism <= 0 {
		cfg.PingParallelism = DefaultPingParallelism
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if gater == nil {
		gater = NewGater()
	}

	cm, err := connmgr.NewConnManager(cfg.ConnMgrLow, cfg.ConnMgrHigh, connmgr.WithGracePeriod(cfg.ConnMgrGrace))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	bw := metrics.NewBandwidthCounter()

	h, err := golibp2p.New(
		golibp2p.Identity(key),
		golibp2p.ListenAddrStrings(cfg.ListenAddrs...),
		golibp2p.ConnectionManager(cm),
		golibp2p.ConnectionGater(gater),
		golibp2p.BandwidthReporter(bw),
		golibp2p.UserAgent(cfg.UserAgent),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	t := &Transport{
		cfg:         cfg,
		host:        h,
		bandwidth:   bw,
		connmgr:     cm,
		gater:       gater,
		connections: connections,
	}
	t.links = newPeerLinks(t.pushConnection)
	t.installRoles()
	t.installNotifee()

	log.Info("libp2p 主机已创建",
		"peer", h.ID().String(),
		"addrs", h.Addrs(),
		"connLow", cfg.ConnMgrLow,
		"connHigh", cfg.ConnMgrHigh)
	return t, nil
}

// Host 底层 libp2p 主机
func (t *Transport) Host() host.Host { return t.host }

// ID 本节点标识
func (t *Transport) ID() peer.ID { return t.host.ID() }

// Addrs 带 /p2p 的监听地址
func (t *Transport) Addrs() []types.Multiaddr {
	addrs, err := peer.AddrInfoToP2pAddrs(&peer.AddrInfo{ID: t.host.ID(), Addrs: t.host.Addrs()})
	if err != nil {
		return nil
	}
	return addrs
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 把发现子协议与请求-响应句柄接到网络上
//
// 各事件源在 Close 时关闭。
func (t *Transport) Start(ctx context.Context, protocols *discovery.Protocols, handles []*reqresp.Transport) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	kad, err := newKademlia(gctx, t.host, protocols.Kademlia, kademliaMode(t.cfg.Roles))
	if err != nil {
		cancel()
		return err
	}
	t.closers = append(t.closers, kad)

	adapters := make([]*requestResponse, 0, len(handles))
	for _, h := range handles {
		adapters = append(adapters, newRequestResponse(t.host, h))
	}

	group.Go(func() error { return t.runPing(gctx, protocols.Ping) })
	group.Go(func() error { return t.runIdentify(gctx, protocols.Identify) })
	group.Go(func() error { return kad.run(gctx) })
	for _, a := range adapters {
		group.Go(func() error { return a.run(gctx) })
	}

	if protocols.MDNS != nil {
		svc, err := startMDNS(t.host, *protocols.MDNS)
		if err != nil {
			log.Warn("mDNS 启动失败", "error", err)
			protocols.MDNS.Events.Close()
		} else {
			t.closers = append(t.closers, svc)
		}
	}

	t.started = true
	t.cancel = cancel
	t.group = group

	log.Info("传输层已启动",
		"kademlia", protocols.Kademlia.ProtocolNames,
		"requestResponse", len(handles),
		"mdns", protocols.MDNS != nil)
	return nil
}

// Close 停止所有后台任务并关闭主机
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.started {
		t.cancel()
		err = multierr.Append(err, t.group.Wait())
		t.started = false
	}
	for i := len(t.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, t.closers[i].Close())
	}
	t.closers = nil

	t.host.Network().StopNotify(t.notifee)
	if t.connections != nil {
		t.connections.Close()
	}
	err = multierr.Append(err, t.host.Close())

	log.Info("传输层已停止")
	return err
}
