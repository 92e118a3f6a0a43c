package chainnet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-chainnet/config"
	"github.com/dep2p/go-chainnet/internal/app"
	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/service"
	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/pkg/types"
)

var log = logger.Logger("chainnet")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota

	// StateStarting 启动中
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopped 已停止，不可重新启动
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// closeTimeout Close 等待各组件停止的时限
const closeTimeout = 30 * time.Second

// Node chainnet 节点
//
// Node 是门面：网络操作经 Service() 进入后端工作协程，
// 入站请求经 Inbound() 交给应用。
type Node struct {
	config    *config.Config
	bootstrap *app.Bootstrap

	mu      sync.RWMutex
	state   NodeState
	runtime *app.Runtime
}

// New 创建节点（不启动）
func New(opts ...Option) (*Node, error) {
	cfg, err := buildConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &Node{
		config:    cfg,
		bootstrap: app.NewBootstrap(cfg),
	}, nil
}

// Start 创建并启动节点
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	n, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

// Start 启动节点
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	switch n.state {
	case StateStarting, StateRunning:
		n.mu.Unlock()
		return ErrAlreadyStarted
	case StateStopped:
		n.mu.Unlock()
		return ErrNodeClosed
	}
	n.state = StateStarting
	n.mu.Unlock()

	rt, err := n.bootstrap.Start(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.state = StateIdle
		return err
	}
	n.runtime = rt
	n.state = StateRunning
	return nil
}

// Close 停止节点
func (n *Node) Close() error {
	n.mu.Lock()
	if n.state != StateRunning {
		n.state = StateStopped
		n.mu.Unlock()
		return nil
	}
	n.state = StateStopped
	rt := n.runtime
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := rt.Stop(ctx)
	log.Info("节点已停止", "error", err)
	return err
}

// State 当前状态
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Config 节点使用的配置
func (n *Node) Config() *config.Config {
	return n.config
}

func (n *Node) running() (*app.Runtime, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	switch n.state {
	case StateRunning:
		return n.runtime, nil
	case StateStopped:
		return nil, ErrNodeClosed
	default:
		return nil, ErrNotStarted
	}
}

// Service 网络服务门面
//
// 门面按值复制，节点停止后其操作返回 service.ErrServiceClosed。
func (n *Node) Service() (service.Service, error) {
	rt, err := n.running()
	if err != nil {
		return service.Service{}, err
	}
	return rt.Service, nil
}

// ID 本节点标识
func (n *Node) ID() (types.PeerID, error) {
	rt, err := n.running()
	if err != nil {
		return "", err
	}
	return rt.Transport.ID(), nil
}

// ListenAddrs 带 /p2p 的监听地址
func (n *Node) ListenAddrs() []types.Multiaddr {
	rt, err := n.running()
	if err != nil {
		return nil
	}
	return rt.Transport.Addrs()
}

// Inbound 协议的入站请求通道
func (n *Node) Inbound(protocol types.ProtocolName) (<-chan reqresp.IncomingRequest, error) {
	rt, err := n.running()
	if err != nil {
		return nil, err
	}
	return rt.Inbound(protocol), nil
}

// MetricsAddr 指标服务监听地址，未启用时为空
func (n *Node) MetricsAddr() string {
	rt, err := n.running()
	if err != nil {
		return ""
	}
	return rt.MetricsAddr()
}

// Done 节点请求关闭（信号或致命错误）时收到信号；节点未运行时返回 nil
func (n *Node) Done() <-chan fx.ShutdownSignal {
	rt, err := n.running()
	if err != nil {
		return nil
	}
	return rt.Done()
}
