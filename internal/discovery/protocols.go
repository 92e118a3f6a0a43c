package discovery

import (
	"time"

	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// Protocols 交给传输层的子协议配置
//
// 每个配置持有对应事件源的生产端；传输层停止时关闭队列。
type Protocols struct {
	Ping     PingConfig
	Identify IdentifyConfig
	Kademlia KademliaConfig

	// MDNS 未启用时为 nil
	MDNS *MdnsConfig
}

// PingConfig ping 子协议配置
type PingConfig struct {
	Interval time.Duration
	Events   *queue.Queue[PingEvent]
}

// IdentifyConfig identify 子协议配置
type IdentifyConfig struct {
	Events *queue.Queue[IdentifiedEvent]
}

// KademliaConfig Kademlia 子协议配置
type KademliaConfig struct {
	// ProtocolNames 主协议名在前，旧式协议名在后
	ProtocolNames []types.ProtocolName

	// KnownPeers 启动节点
	KnownPeers map[types.PeerID][]types.Multiaddr

	// Commands 发现侧发出的命令
	Commands <-chan KademliaCommand

	// Events 上报给发现侧的事件
	Events *queue.Queue[KademliaEvent]
}

// MdnsConfig mDNS 子协议配置
type MdnsConfig struct {
	ServiceTag    string
	// QueryInterval 仅记录在日志中，libp2p mDNS 不支持设置查询间隔，取值不生效
	QueryInterval time.Duration
	Events        *queue.Queue[DiscoveredEvent]
}
