package discovery

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/libp2p/go-libp2p/core/peer"
	mh "github.com/multiformats/go-multihash"

	"github.com/dep2p/go-chainnet/internal/metrics"
	"github.com/dep2p/go-chainnet/internal/util/deadline"
	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/internal/util/poll"
	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/interfaces"
	"github.com/dep2p/go-chainnet/pkg/types"
)

var log = logger.Logger("discovery")

// Option 发现聚合器选项
type Option func(*options)

type options struct {
	clock   clock.Clock
	waker   *queue.Waker
	fatal   deadline.FatalHandler
	metrics *metrics.Metrics
	rand    io.Reader
}

// WithClock 设置时钟（测试使用 clock.NewMock）
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithWaker 设置与后端共享的唤醒器
func WithWaker(w *queue.Waker) Option {
	return func(o *options) { o.waker = w }
}

// WithFatalHandler 设置操作超时时的致命处理
func WithFatalHandler(h deadline.FatalHandler) Option {
	return func(o *options) { o.fatal = h }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRandom 设置随机查找目标的随机源
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.rand = r }
}

// Discovery 发现聚合器
type Discovery struct {
	cfg     Config
	clock   clock.Clock
	waker   *queue.Waker
	guard   *deadline.Guard
	metrics *metrics.Metrics
	rand    io.Reader

	peerStore interfaces.PeerStore

	pingEvents     *queue.Queue[PingEvent]
	identifyEvents *queue.Queue[IdentifiedEvent]
	mdnsEvents     *queue.Queue[DiscoveredEvent]
	kademlia       *KademliaHandle

	kademliaClosed bool
	mdnsClosed     bool

	// 查找定时器与在途查找二者恰有其一
	lookupTimer    *clock.Timer
	lookupDue      atomic.Bool
	lookupInFlight bool
	lookupQuery    types.QueryID

	pending   []Event
	addresses *addressConfirmations
}

// New 创建发现聚合器及交给传输层的子协议配置
func New(
	cfg Config,
	genesisHash []byte,
	forkID string,
	protocolID string,
	knownPeers map[types.PeerID][]types.Multiaddr,
	peerStore interfaces.PeerStore,
	opts ...Option,
) (*Discovery, *Protocols) {
	o := options{
		clock: clock.New(),
		rand:  rand.Reader,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.waker == nil {
		o.waker = queue.NewWaker()
	}

	d := &Discovery{
		cfg:            cfg,
		clock:          o.clock,
		waker:          o.waker,
		guard:          deadline.New(cfg.OperationDeadline, o.fatal),
		metrics:        o.metrics,
		rand:           o.rand,
		peerStore:      peerStore,
		pingEvents:     queue.New[PingEvent](o.waker),
		identifyEvents: queue.New[IdentifiedEvent](o.waker),
		kademlia:       newKademliaHandle(cfg.CommandBuffer, o.waker),
		addresses:      newAddressConfirmations(cfg.MinAddressConfirmations, cfg.AddressCacheSize),
	}

	protocols := &Protocols{
		Ping:     PingConfig{Interval: cfg.PingInterval, Events: d.pingEvents},
		Identify: IdentifyConfig{Events: d.identifyEvents},
		Kademlia: KademliaConfig{
			ProtocolNames: []types.ProtocolName{
				KademliaProtocolName(genesisHash, forkID),
				LegacyKademliaProtocolName(protocolID),
			},
			KnownPeers: knownPeers,
			Commands:   d.kademlia.cmds,
			Events:     d.kademlia.events,
		},
	}

	if cfg.EnableMDNS {
		d.mdnsEvents = queue.New[DiscoveredEvent](o.waker)
		protocols.MDNS = &MdnsConfig{
			ServiceTag:    cfg.MDNSServiceTag,
			QueryInterval: cfg.MDNSQueryInterval,
			Events:        d.mdnsEvents,
		}
	}

	d.armLookup()

	log.Info("发现模块已创建",
		"kademlia", protocols.Kademlia.ProtocolNames,
		"knownPeers", len(knownPeers),
		"mdns", cfg.EnableMDNS)

	return d, protocols
}

// Waker 返回唤醒器
func (d *Discovery) Waker() *queue.Waker {
	return d.waker
}

// ============================================================================
//                              DHT 操作
// ============================================================================

// AddKnownPeer 向路由表登记节点
func (d *Discovery) AddKnownPeer(ctx context.Context, p types.PeerID, addrs []types.Multiaddr) error {
	return d.guard.Run(ctx, "add_known_peer", func(ctx context.Context) error {
		return d.kademlia.AddKnownPeer(ctx, p, addrs)
	})
}

// GetValue 发起 GET 查询，结果通过事件序列返回
func (d *Discovery) GetValue(ctx context.Context, key []byte) (types.QueryID, error) {
	var id types.QueryID
	err := d.guard.Run(ctx, "get_value", func(ctx context.Context) error {
		var err error
		id, err = d.kademlia.GetRecord(ctx, key)
		return err
	})
	if err == nil {
		d.metrics.DHTQuery("get", "issued")
	}
	return id, err
}

// PutValue 发起 PUT 查询，结果通过事件序列返回
func (d *Discovery) PutValue(ctx context.Context, key, value []byte) (types.QueryID, error) {
	var id types.QueryID
	err := d.guard.Run(ctx, "put_value", func(ctx context.Context) error {
		var err error
		id, err = d.kademlia.PutRecord(ctx, types.Record{Key: key, Value: value})
		return err
	})
	if err == nil {
		d.metrics.DHTQuery("put", "issued")
	}
	return id, err
}

// ============================================================================
//                              轮询
// ============================================================================

// PollNext 单步轮询，最多产出一个事件，从不阻塞
func (d *Discovery) PollNext() (Event, poll.State) {
	// 0. 合成事件
	if len(d.pending) > 0 {
		ev := d.pending[0]
		d.pending[0] = nil
		d.pending = d.pending[1:]
		return d.emit(ev)
	}

	// 1. 随机查找
	if d.lookupDue.CompareAndSwap(true, false) {
		d.lookupTimer = nil
		d.startLookup()
	}

	// 2. ping
	switch ev, st := d.pingEvents.TryPop(); st {
	case queue.Closed:
		log.Error("ping 事件源已终止")
		return nil, poll.Exhausted
	case queue.Ready:
		d.metrics.PingRTT(ev.RTT)
		return d.emit(ev)
	}

	// 3. identify
	switch ev, st := d.identifyEvents.TryPop(); st {
	case queue.Closed:
		log.Error("identify 事件源已终止")
		return nil, poll.Exhausted
	case queue.Ready:
		if ev.ObservedAddress != nil && d.addresses.observe(ev.Peer, ev.ObservedAddress) {
			log.Info("外部地址已确认", "addr", ev.ObservedAddress.String())
			d.pending = append(d.pending, ExternalAddressDiscoveredEvent{Address: ev.ObservedAddress})
		}
		return d.emit(ev)
	}

	// 4. Kademlia
	if !d.kademliaClosed {
		switch ev, st := d.kademlia.events.TryPop(); st {
		case queue.Closed:
			d.kademliaClosed = true
			log.Warn("Kademlia 事件源已终止，停止随机查找")
			d.stopLookup()
		case queue.Ready:
			if out := d.onKademliaEvent(ev); out != nil {
				return d.emit(out)
			}
		}
	}

	// 5. mDNS
	if d.mdnsEvents != nil && !d.mdnsClosed {
		switch ev, st := d.mdnsEvents.TryPop(); st {
		case queue.Closed:
			d.mdnsClosed = true
			log.Warn("mDNS 事件源已终止")
		case queue.Ready:
			return d.emit(ev)
		}
	}

	return nil, poll.Pending
}

func (d *Discovery) emit(ev Event) (Event, poll.State) {
	d.metrics.DiscoveryEvent(ev.Kind())
	return ev, poll.Ready
}

func (d *Discovery) onKademliaEvent(ev KademliaEvent) Event {
	switch e := ev.(type) {
	case FindNodeSuccess:
		d.completeLookup(e.QueryID)

		peers := make([]types.PeerID, 0, len(e.Peers))
		for _, info := range e.Peers {
			peers = append(peers, info.ID)
			d.peerStore.AddKnownPeer(info.ID)
		}
		log.Debug("随机查找完成", "query", e.QueryID, "peers", len(peers))
		return RoutingTableUpdateEvent{Peers: peers}

	case RoutingTableUpdate:
		for _, p := range e.Peers {
			d.peerStore.AddKnownPeer(p)
		}
		log.Debug("路由表更新",
			"discovered", len(e.Peers),
			"total", d.peerStore.PeerCount())
		return RoutingTableUpdateEvent{Peers: e.Peers}

	case GetRecordSuccess:
		d.metrics.DHTQuery("get", "success")
		return GetRecordSuccessEvent{QueryID: e.QueryID, Record: e.Record}

	case PutRecordSuccess:
		d.metrics.DHTQuery("put", "success")
		return PutRecordSuccessEvent{QueryID: e.QueryID}

	case QueryFailed:
		d.completeLookup(e.QueryID)
		return QueryFailedEvent{QueryID: e.QueryID}

	default:
		log.Warn("未知的 Kademlia 事件", "type", fmt.Sprintf("%T", ev))
		return nil
	}
}

// ============================================================================
//                              随机查找
// ============================================================================

func (d *Discovery) armLookup() {
	if d.kademliaClosed {
		return
	}
	d.lookupTimer = d.clock.AfterFunc(d.cfg.LookupInterval, func() {
		d.lookupDue.Store(true)
		d.waker.Wake()
	})
}

func (d *Discovery) stopLookup() {
	if d.lookupTimer != nil {
		d.lookupTimer.Stop()
		d.lookupTimer = nil
	}
	d.lookupDue.Store(false)
	d.lookupInFlight = false
}

func (d *Discovery) startLookup() {
	target, err := randomTarget(d.rand)
	if err == nil {
		var id types.QueryID
		id, err = d.kademlia.TryFindNode(target)
		if err == nil {
			d.lookupInFlight = true
			d.lookupQuery = id
			log.Debug("发起随机查找", "query", id, "target", logger.ShortPeer(target))
			return
		}
	}

	log.Debug("随机查找启动失败，等待下一周期", "error", err)
	d.armLookup()
}

func (d *Discovery) completeLookup(id types.QueryID) {
	if !d.lookupInFlight || d.lookupQuery != id {
		return
	}
	d.lookupInFlight = false
	d.armLookup()
}

// LookupInFlight 是否有随机查找在途
func (d *Discovery) LookupInFlight() bool {
	return d.lookupInFlight
}

// Close 停止查找定时器
func (d *Discovery) Close() {
	d.stopLookup()
}

// randomTarget 生成随机查找目标
func randomTarget(r io.Reader) (types.PeerID, error) {
	var seed [32]byte
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return "", err
	}
	h, err := mh.Sum(seed[:], mh.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return peer.ID(h), nil
}
