package libp2p

import (
	"context"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-chainnet/internal/discovery"
	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// recordNamespace DHT 记录命名空间
const recordNamespace = "chain"

// kademliaPrefix DHT 协议前缀，实际协议名由 V1ProtocolOverride 决定
const kademliaPrefix = "/chainnet"

// maxKademliaQueries 同时进行的查询上限
const maxKademliaQueries = 16

// errNoRecord 主、旧式实例都没有查到记录
var errNoRecord = errors.New("transport: record not found")

// kademlia 主协议与旧式协议两个 DHT 实例，共享记录存储
type kademlia struct {
	host    host.Host
	cfg     discovery.KademliaConfig
	primary *dht.IpfsDHT
	legacy  *dht.IpfsDHT
}

// kademliaMode 轻节点按可达性自动切换，其余角色始终提供服务
func kademliaMode(roles types.Roles) dht.ModeOpt {
	if roles&(types.RoleFull|types.RoleAuthority) == 0 {
		return dht.ModeAutoServer
	}
	return dht.ModeServer
}

func newKademlia(ctx context.Context, h host.Host, cfg discovery.KademliaConfig, mode dht.ModeOpt) (*kademlia, error) {
	if len(cfg.ProtocolNames) == 0 {
		return nil, fmt.Errorf("%w: no kademlia protocol", ErrInvalidConfig)
	}

	store := dssync.MutexWrap(ds.NewMapDatastore())
	bootstrap := make([]peer.AddrInfo, 0, len(cfg.KnownPeers))
	for id, addrs := range cfg.KnownPeers {
		h.Peerstore().AddAddrs(id, addrs, peerstore.PermanentAddrTTL)
		bootstrap = append(bootstrap, peer.AddrInfo{ID: id, Addrs: addrs})
	}

	k := &kademlia{host: h, cfg: cfg}

	instance := func(name types.ProtocolName) (*dht.IpfsDHT, error) {
		d, err := dht.New(ctx, h,
			dht.Mode(mode),
			dht.ProtocolPrefix(kademliaPrefix),
			dht.V1ProtocolOverride(protocol.ID(name)),
			dht.Datastore(store),
			dht.NamespacedValidator(recordNamespace, recordValidator{}),
			dht.BootstrapPeers(bootstrap...),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create DHT %s: %w", name, err)
		}
		// 保留 DHT 自带的连接管理器标记，PeerRemoved 会撤销它
		rt := d.RoutingTable()
		prev := rt.PeerAdded
		rt.PeerAdded = func(p peer.ID) {
			if prev != nil {
				prev(p)
			}
			k.onPeerAdded(p)
		}
		return d, nil
	}

	var err error
	if k.primary, err = instance(cfg.ProtocolNames[0]); err != nil {
		return nil, err
	}
	if len(cfg.ProtocolNames) > 1 {
		if k.legacy, err = instance(cfg.ProtocolNames[1]); err != nil {
			_ = k.primary.Close()
			return nil, err
		}
	}

	if err := k.primary.Bootstrap(ctx); err != nil {
		log.Warn("DHT 引导失败", "error", err)
	}
	return k, nil
}

// run 执行发现模块发来的命令，停止时关闭事件队列
func (k *kademlia) run(ctx context.Context) error {
	defer k.cfg.Events.Close()

	var g errgroup.Group
	g.SetLimit(maxKademliaQueries)
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-k.cfg.Commands:
			if !ok {
				return nil
			}
			g.Go(func() error {
				k.handle(ctx, cmd)
				return nil
			})
		}
	}
}

func (k *kademlia) handle(ctx context.Context, cmd discovery.KademliaCommand) {
	switch c := cmd.(type) {
	case discovery.FindNodeCommand:
		ids, err := k.primary.GetClosestPeers(ctx, string(c.Target))
		if err != nil {
			log.Debug("查找节点失败", "query", c.QueryID, "error", err)
			k.push(discovery.QueryFailed{QueryID: c.QueryID})
			return
		}
		peers := make([]peer.AddrInfo, 0, len(ids))
		for _, id := range ids {
			peers = append(peers, k.host.Peerstore().PeerInfo(id))
		}
		k.push(discovery.FindNodeSuccess{QueryID: c.QueryID, Target: c.Target, Peers: peers})

	case discovery.GetRecordCommand:
		value, err := k.getValue(ctx, recordKey(c.Key))
		if err != nil {
			log.Debug("查询记录失败", "query", c.QueryID, "error", err)
			k.push(discovery.QueryFailed{QueryID: c.QueryID})
			return
		}
		k.push(discovery.GetRecordSuccess{
			QueryID: c.QueryID,
			Record:  types.Record{Key: c.Key, Value: value},
		})

	case discovery.PutRecordCommand:
		if err := k.putValue(ctx, recordKey(c.Record.Key), c.Record.Value); err != nil {
			log.Debug("发布记录失败", "query", c.QueryID, "error", err)
			k.push(discovery.QueryFailed{QueryID: c.QueryID})
			return
		}
		k.push(discovery.PutRecordSuccess{QueryID: c.QueryID, Key: c.Record.Key})

	case discovery.AddKnownPeerCommand:
		k.host.Peerstore().AddAddrs(c.Peer, c.Addresses, peerstore.AddressTTL)
		if _, err := k.primary.RoutingTable().TryAddPeer(c.Peer, false, true); err != nil {
			log.Debug("加入路由表失败", "peer", logger.ShortPeer(c.Peer), "error", err)
		}
	}
}

// getValue 先查主实例，失败后查旧式实例
func (k *kademlia) getValue(ctx context.Context, key string) ([]byte, error) {
	value, err := k.primary.GetValue(ctx, key)
	if err == nil {
		return value, nil
	}
	if k.legacy == nil {
		return nil, err
	}
	if value, lerr := k.legacy.GetValue(ctx, key); lerr == nil {
		return value, nil
	}
	return nil, fmt.Errorf("%w: %v", errNoRecord, err)
}

// putValue 主实例成功即视为成功，旧式实例尽力写入
func (k *kademlia) putValue(ctx context.Context, key string, value []byte) error {
	if err := k.primary.PutValue(ctx, key, value); err != nil {
		return err
	}
	if k.legacy != nil {
		if err := k.legacy.PutValue(ctx, key, value); err != nil {
			log.Debug("旧式 DHT 发布失败", "error", err)
		}
	}
	return nil
}

func (k *kademlia) onPeerAdded(p peer.ID) {
	k.push(discovery.RoutingTableUpdate{Peers: []types.PeerID{p}})
}

func (k *kademlia) push(ev discovery.KademliaEvent) {
	if err := k.cfg.Events.Push(ev); err != nil {
		log.Debug("Kademlia 事件队列已关闭")
	}
}

// Close 关闭两个 DHT 实例
func (k *kademlia) Close() error {
	err := k.primary.Close()
	if k.legacy != nil {
		err = multierr.Append(err, k.legacy.Close())
	}
	return err
}

// recordKey 记录键放在 /chain/ 命名空间下
func recordKey(key []byte) string {
	return "/" + recordNamespace + "/" + string(key)
}

// recordValidator 接受任意非空记录，多条时取第一条
type recordValidator struct{}

func (recordValidator) Validate(_ string, value []byte) error {
	if len(value) == 0 {
		return errors.New("empty record")
	}
	return nil
}

func (recordValidator) Select(_ string, values [][]byte) (int, error) {
	if len(values) == 0 {
		return 0, errors.New("no values")
	}
	return 0, nil
}
