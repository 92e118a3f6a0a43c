package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/dep2p/go-chainnet/internal/discovery"
	"github.com/dep2p/go-chainnet/internal/metrics"
	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/internal/util/poll"
	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/interfaces"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// DefaultPollBudget 单次唤醒中每个事件源最多处理的条目数
const DefaultPollBudget = 128

// reservedTagPrefix 保留节点在连接管理器中的保护标签前缀
const reservedTagPrefix = "reserved/"

// PeerStore 后端使用的节点存储
type PeerStore interface {
	interfaces.PeerStore

	SetPeerRole(peer types.PeerID, role types.ObservedRole)
	RecordLatency(peer types.PeerID, rtt time.Duration)
	IsBanned(peer types.PeerID) bool
}

// Config 服务配置
type Config struct {
	// DefaultProtocol 默认节点集合对应的协议，SetAuthorized* 操作作用于它
	DefaultProtocol types.ProtocolName

	// EventBuffer 每个订阅者的事件缓冲
	EventBuffer int

	// PollBudget 单次唤醒中每个事件源最多处理的条目数
	PollBudget int

	// ReservedPeers 默认协议的初始保留节点（须带 /p2p）
	ReservedPeers []types.Multiaddr

	// ReservedOnly 默认协议是否只接受保留节点
	ReservedOnly bool
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.DefaultProtocol == "" {
		return fmt.Errorf("%w: default protocol is empty", ErrInvalidConfig)
	}
	if err := requirePeerIDs(c.ReservedPeers); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Params 后端依赖
type Params struct {
	LocalKey  crypto.PrivKey
	Discovery *discovery.Discovery
	Protocols *reqresp.ProtocolSet
	Transport interfaces.TransportManager
	PeerStore PeerStore

	// Connections 传输层推送连接变化的队列，为空时由后端创建
	Connections *queue.Queue[types.ConnectionEvent]

	// Admission 连接准入快照，为空时由后端创建
	Admission *Admission

	Metrics *metrics.Metrics
}

// Backend 网络后端工作协程
//
// 独占发现模块、协议注册表与所有可变网络状态。除 Run 外的方法只在
// 创建后、Run 之前调用。
type Backend struct {
	cfg       Config
	localPeer types.PeerID

	waker       *queue.Waker
	commands    *queue.Queue[Command]
	connections *queue.Queue[types.ConnectionEvent]

	discovery *discovery.Discovery
	protocols *reqresp.ProtocolSet
	transport interfaces.TransportManager
	peerStore PeerStore
	metrics   *metrics.Metrics
	admission *Admission

	connected      *atomic.Int64
	connectedPeers map[types.PeerID]struct{}
	peersets       map[types.ProtocolName]*peerset

	pendingGet map[types.QueryID][]byte
	pendingPut map[types.QueryID][]byte

	subscribers       []*Subscription
	externalAddresses []types.Multiaddr
}

// New 创建服务门面与后端
//
// 发现模块、请求-响应引擎与后端共享同一个唤醒器。
func New(cfg Config, p Params) (Service, *Backend, error) {
	if err := cfg.Validate(); err != nil {
		return Service{}, nil, err
	}
	if p.LocalKey == nil || p.Discovery == nil || p.Protocols == nil || p.Transport == nil || p.PeerStore == nil {
		return Service{}, nil, fmt.Errorf("%w: missing dependency", ErrInvalidConfig)
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.PollBudget <= 0 {
		cfg.PollBudget = DefaultPollBudget
	}

	localPeer, err := peer.IDFromPrivateKey(p.LocalKey)
	if err != nil {
		return Service{}, nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	waker := p.Discovery.Waker()
	if p.Connections == nil {
		p.Connections = queue.New[types.ConnectionEvent](waker)
	}
	if p.Admission == nil {
		p.Admission = NewAdmission()
	}

	b := &Backend{
		cfg:            cfg,
		localPeer:      localPeer,
		waker:          waker,
		commands:       queue.New[Command](waker),
		connections:    p.Connections,
		discovery:      p.Discovery,
		protocols:      p.Protocols,
		transport:      p.Transport,
		peerStore:      p.PeerStore,
		metrics:        p.Metrics,
		admission:      p.Admission,
		connected:      &atomic.Int64{},
		connectedPeers: make(map[types.PeerID]struct{}),
		peersets:       make(map[types.ProtocolName]*peerset),
		pendingGet:     make(map[types.QueryID][]byte),
		pendingPut:     make(map[types.QueryID][]byte),
	}

	svc := Service{
		localPeer:       localPeer,
		localKey:        p.LocalKey,
		commands:        b.commands,
		peerStore:       p.PeerStore,
		connected:       b.connected,
		defaultProtocol: cfg.DefaultProtocol,
		eventBuffer:     cfg.EventBuffer,
	}

	// 初始保留集在 Run 之前生效，准入快照从一开始就正确
	ps := b.peerset(cfg.DefaultProtocol)
	ps.reservedOnly = cfg.ReservedOnly
	b.setReserved(ps, cfg.ReservedPeers)

	return svc, b, nil
}

// Connections 传输层推送连接变化的队列
func (b *Backend) Connections() *queue.Queue[types.ConnectionEvent] {
	return b.connections
}

// Admission 连接准入快照
func (b *Backend) Admission() *Admission {
	return b.admission
}

// ============================================================================
//                              主循环
// ============================================================================

// Run 驱动后端直到 ctx 取消或某个基础事件源终止
//
// ctx 取消返回 nil；发现模块或协议注册表耗尽时返回相应错误。
// 返回前关闭命令队列并释放所有未处理命令的应答通道。
func (b *Backend) Run(ctx context.Context) error {
	log.Info("网络后端启动",
		"local", logger.ShortPeer(b.localPeer),
		"protocols", b.protocols.Names(),
		"defaultProtocol", b.cfg.DefaultProtocol)
	defer b.shutdown()

	for {
		if err := b.step(ctx); err != nil {
			log.Error("网络后端终止", "error", err)
			return err
		}

		select {
		case <-ctx.Done():
			log.Info("网络后端停止")
			return nil
		case <-b.waker.C():
		}
	}
}

// step 处理一轮就绪的工作，从不阻塞
func (b *Backend) step(ctx context.Context) error {
	budget := b.cfg.PollBudget
	again := false

	// 1. 命令
	for i := 0; ; i++ {
		if i == budget {
			again = true
			break
		}
		cmd, st := b.commands.TryPop()
		if st != queue.Ready {
			break
		}
		b.metrics.Command(cmd.name())
		b.handleCommand(ctx, cmd)
	}

	// 2. 连接变化
	for i := 0; ; i++ {
		if i == budget {
			again = true
			break
		}
		ev, st := b.connections.TryPop()
		if st != queue.Ready {
			break
		}
		b.handleConnection(ev)
	}

	// 3. 发现
	for i := 0; ; i++ {
		if i == budget {
			again = true
			break
		}
		ev, st := b.discovery.PollNext()
		if st == poll.Exhausted {
			return ErrDiscoveryExhausted
		}
		if st != poll.Ready {
			break
		}
		b.handleDiscovery(ctx, ev)
	}

	// 4. 请求-响应
	if b.protocols.Poll() == poll.Exhausted {
		return ErrProtocolsExhausted
	}

	if again {
		b.waker.Wake()
	}
	return nil
}

func (b *Backend) shutdown() {
	b.commands.Close()
	for _, cmd := range b.commands.Drain() {
		cmd.abandon()
	}
	b.connections.Close()

	b.protocols.Close()
	b.discovery.Close()

	for _, sub := range b.subscribers {
		sub.close()
	}
	b.subscribers = nil

	log.Debug("后端资源已释放")
}

// ============================================================================
//                              命令
// ============================================================================

func (b *Backend) handleCommand(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case GetValue:
		id, err := b.discovery.GetValue(ctx, c.Key)
		if err != nil {
			log.Warn("发起 DHT GET 失败", "error", err)
			b.broadcast(types.DhtValueNotFound{Key: c.Key})
			return
		}
		b.pendingGet[id] = c.Key

	case PutValue:
		id, err := b.discovery.PutValue(ctx, c.Key, c.Value)
		if err != nil {
			log.Warn("发起 DHT PUT 失败", "error", err)
			b.broadcast(types.DhtValuePutFailed{Key: c.Key})
			return
		}
		b.pendingPut[id] = c.Key

	case Status:
		c.Reply.Send(b.status())

	case StartRequest:
		b.startRequest(ctx, c)

	case AddPeersToReservedSet:
		ps := b.peerset(c.Protocol)
		ids := b.registerAddresses(c.Peers)
		for _, id := range ps.add(ids) {
			b.transport.Protect(id, reservedTagPrefix+string(ps.protocol))
		}
		b.publishAdmission(ps)

	case ReportPeer:
		b.peerStore.ReportPeer(c.Peer, c.Change)

	case AddKnownAddress:
		b.addKnownAddress(ctx, c.Peer, c.Address)

	case SetReservedPeers:
		b.setReserved(b.peerset(c.Protocol), c.Peers)

	case DisconnectPeer:
		log.Debug("断开节点", "peer", logger.ShortPeer(c.Peer), "protocol", c.Protocol)
		b.transport.Disconnect(c.Peer)

	case SetReservedOnly:
		ps := b.peerset(c.Protocol)
		ps.reservedOnly = c.ReservedOnly
		log.Info("更新保留模式", "protocol", c.Protocol, "reservedOnly", c.ReservedOnly)
		if c.ReservedOnly {
			b.enforceReserved(ps, b.connectedList())
		}
		b.publishAdmission(ps)

	case RemoveReservedPeers:
		ps := b.peerset(c.Protocol)
		removed := ps.remove(c.Peers)
		for _, id := range removed {
			b.transport.Unprotect(id, reservedTagPrefix+string(ps.protocol))
		}
		b.enforceReserved(ps, removed)
		b.publishAdmission(ps)

	case EventStream:
		log.Debug("新增事件订阅", "name", c.Sink.Name(), "id", c.Sink.ID())
		b.subscribers = append(b.subscribers, c.Sink)

	case ReservedPeers:
		ps, ok := b.peersets[c.Protocol]
		if !ok {
			c.Reply.Send(nil)
			return
		}
		c.Reply.Send(ps.list())

	default:
		log.Warn("未知命令", "type", fmt.Sprintf("%T", cmd))
		cmd.abandon()
	}
}

func (b *Backend) status() types.NetworkStatus {
	in, out := b.transport.BandwidthTotals()
	return types.NetworkStatus{
		NumConnectedPeers:  int(b.connected.Load()),
		TotalBytesInbound:  in,
		TotalBytesOutbound: out,
		ExternalAddresses:  append([]types.Multiaddr(nil), b.externalAddresses...),
	}
}

func (b *Backend) startRequest(ctx context.Context, c StartRequest) {
	err := b.protocols.SendRequest(ctx, c.Peer, c.Protocol, c.Payload, c.Reply, c.Connect)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrUnknownProtocol):
		c.Reply.Send(reqresp.Result{Err: types.ErrUnknownProtocol})
	default:
		log.Warn("请求分发失败",
			"peer", logger.ShortPeer(c.Peer),
			"protocol", c.Protocol,
			"error", err)
	}
}

func (b *Backend) addKnownAddress(ctx context.Context, p types.PeerID, addr types.Multiaddr) {
	if p == b.localPeer {
		return
	}
	if n := b.transport.AddKnownAddress(p, []types.Multiaddr{addr}); n == 0 {
		log.Debug("传输层未接受地址", "peer", logger.ShortPeer(p), "addr", addr)
		return
	}
	b.peerStore.AddKnownPeer(p)
	if err := b.discovery.AddKnownPeer(ctx, p, []types.Multiaddr{addr}); err != nil {
		log.Debug("登记路由表失败", "peer", logger.ShortPeer(p), "error", err)
	}
}

// registerAddresses 向传输层登记带 /p2p 的地址，返回节点标识
func (b *Backend) registerAddresses(addrs []types.Multiaddr) []types.PeerID {
	ids := make([]types.PeerID, 0, len(addrs))
	for _, addr := range addrs {
		id, transportAddr, err := types.SplitP2PAddr(addr)
		if err != nil {
			log.Warn("忽略无节点标识的地址", "addr", addr, "error", err)
			continue
		}
		if transportAddr != nil {
			b.transport.AddKnownAddress(id, []types.Multiaddr{transportAddr})
		}
		ids = append(ids, id)
	}
	return ids
}

// ============================================================================
//                              节点集合
// ============================================================================

// peerset 按协议名惰性创建
func (b *Backend) peerset(protocol types.ProtocolName) *peerset {
	ps, ok := b.peersets[protocol]
	if !ok {
		ps = newPeerset(protocol)
		b.peersets[protocol] = ps
	}
	return ps
}

func (b *Backend) setReserved(ps *peerset, addrs []types.Multiaddr) {
	tag := reservedTagPrefix + string(ps.protocol)

	added, removed := ps.set(b.registerAddresses(addrs))
	for _, id := range added {
		b.transport.Protect(id, tag)
	}
	for _, id := range removed {
		b.transport.Unprotect(id, tag)
	}
	log.Info("更新保留节点",
		"protocol", ps.protocol,
		"added", len(added),
		"removed", len(removed))

	b.enforceReserved(ps, removed)
	b.publishAdmission(ps)
}

// enforceReserved 保留模式下断开候选中不在保留集的已连接节点
//
// 连接在协议之间共享，只有默认协议的集合会断开连接。
func (b *Backend) enforceReserved(ps *peerset, candidates []types.PeerID) {
	if !ps.reservedOnly || ps.protocol != b.cfg.DefaultProtocol {
		return
	}
	for _, id := range candidates {
		if _, ok := b.connectedPeers[id]; !ok || ps.isReserved(id) {
			continue
		}
		log.Debug("断开非保留节点", "peer", logger.ShortPeer(id))
		b.transport.Disconnect(id)
	}
}

func (b *Backend) publishAdmission(ps *peerset) {
	if ps.protocol == b.cfg.DefaultProtocol {
		b.admission.update(ps)
	}
}

func (b *Backend) connectedList() []types.PeerID {
	out := make([]types.PeerID, 0, len(b.connectedPeers))
	for id := range b.connectedPeers {
		out = append(out, id)
	}
	return out
}

// ============================================================================
//                              连接
// ============================================================================

func (b *Backend) handleConnection(ev types.ConnectionEvent) {
	if !ev.Connected {
		if _, ok := b.connectedPeers[ev.Peer]; !ok {
			return
		}
		delete(b.connectedPeers, ev.Peer)
		b.metrics.SetConnectedPeers(int(b.connected.Add(-1)))
		log.Debug("节点断开", "peer", logger.ShortPeer(ev.Peer))
		b.broadcast(types.PeerDisconnected{Peer: ev.Peer})
		return
	}

	if b.peerStore.IsBanned(ev.Peer) || !b.admission.Allow(ev.Peer) {
		log.Debug("拒绝连接", "peer", logger.ShortPeer(ev.Peer))
		b.transport.Disconnect(ev.Peer)
		return
	}
	if _, ok := b.connectedPeers[ev.Peer]; ok {
		return
	}
	b.connectedPeers[ev.Peer] = struct{}{}
	b.metrics.SetConnectedPeers(int(b.connected.Add(1)))

	role, err := types.DecodeRoles(ev.Handshake)
	if err == nil {
		b.peerStore.SetPeerRole(ev.Peer, role)
	} else if known, ok := b.peerStore.PeerRole(ev.Peer); ok {
		role = known
	}
	b.peerStore.AddKnownPeer(ev.Peer)

	log.Debug("节点连接", "peer", logger.ShortPeer(ev.Peer), "role", role)
	b.broadcast(types.PeerConnected{Peer: ev.Peer, Role: role})
}

// ============================================================================
//                              发现事件
// ============================================================================

func (b *Backend) handleDiscovery(ctx context.Context, ev discovery.Event) {
	switch e := ev.(type) {
	case discovery.PingEvent:
		b.peerStore.RecordLatency(e.Peer, e.RTT)

	case discovery.IdentifiedEvent:
		b.peerStore.AddKnownPeer(e.Peer)
		log.Debug("identify 完成",
			"peer", logger.ShortPeer(e.Peer),
			"protocols", len(e.SupportedProtocols))

	case discovery.DiscoveredEvent:
		for _, addr := range e.Addresses {
			id, transportAddr, err := types.SplitP2PAddr(addr)
			if err != nil || transportAddr == nil {
				continue
			}
			b.addKnownAddress(ctx, id, transportAddr)
		}

	case discovery.RoutingTableUpdateEvent:
		// 节点已由发现模块登记到节点存储

	case discovery.ExternalAddressDiscoveredEvent:
		for _, addr := range b.externalAddresses {
			if addr.Equal(e.Address) {
				return
			}
		}
		b.externalAddresses = append(b.externalAddresses, e.Address)
		log.Info("发现外部地址", "addr", e.Address)

	case discovery.GetRecordSuccessEvent:
		key, ok := b.pendingGet[e.QueryID]
		if !ok {
			log.Debug("未知的 GET 查询结果", "query", e.QueryID)
			return
		}
		delete(b.pendingGet, e.QueryID)
		b.broadcast(types.DhtValueFound{Key: key, Record: e.Record})

	case discovery.PutRecordSuccessEvent:
		key, ok := b.pendingPut[e.QueryID]
		if !ok {
			log.Debug("未知的 PUT 查询结果", "query", e.QueryID)
			return
		}
		delete(b.pendingPut, e.QueryID)
		b.broadcast(types.DhtValuePut{Key: key})

	case discovery.QueryFailedEvent:
		if key, ok := b.pendingGet[e.QueryID]; ok {
			delete(b.pendingGet, e.QueryID)
			b.broadcast(types.DhtValueNotFound{Key: key})
			return
		}
		if key, ok := b.pendingPut[e.QueryID]; ok {
			delete(b.pendingPut, e.QueryID)
			b.broadcast(types.DhtValuePutFailed{Key: key})
			return
		}
		log.Debug("查询失败", "query", e.QueryID)

	default:
		log.Warn("未知的发现事件", "kind", ev.Kind())
	}
}

// ============================================================================
//                              事件流
// ============================================================================

// broadcast 投递给所有订阅者，顺带移除已取消的订阅
func (b *Backend) broadcast(ev types.Event) {
	live := b.subscribers[:0]
	for _, sub := range b.subscribers {
		if sub.done.Load() {
			log.Debug("移除事件订阅", "name", sub.Name(), "id", sub.ID())
			sub.close()
			continue
		}
		if !sub.deliver(ev) {
			log.Warn("事件订阅缓冲已满，丢弃事件",
				"name", sub.Name(),
				"dropped", sub.Dropped())
			b.metrics.EventDropped()
		}
		live = append(live, sub)
	}
	clear(b.subscribers[len(live):])
	b.subscribers = live
}
