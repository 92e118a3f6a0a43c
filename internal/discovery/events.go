package discovery

import (
	"time"

	"github.com/dep2p/go-chainnet/pkg/types"
)

// ============================================================================
//                              聚合事件
// ============================================================================

// Event 发现聚合器产出的事件
type Event interface {
	// Kind 事件类别，用于日志与指标
	Kind() string
}

// PingEvent ping 往返
type PingEvent struct {
	Peer types.PeerID
	RTT  time.Duration
}

// IdentifiedEvent identify 完成
type IdentifiedEvent struct {
	Peer types.PeerID

	// ObservedAddress 远端观察到的本节点地址，可能为空
	ObservedAddress types.Multiaddr

	SupportedProtocols []types.ProtocolName
}

// DiscoveredEvent 局域网发现了地址
type DiscoveredEvent struct {
	Addresses []types.Multiaddr
}

// RoutingTableUpdateEvent 路由表加入了节点
type RoutingTableUpdateEvent struct {
	Peers []types.PeerID
}

// ExternalAddressDiscoveredEvent 外部地址得到足够多节点的确认
type ExternalAddressDiscoveredEvent struct {
	Address types.Multiaddr
}

// GetRecordSuccessEvent GET 查询成功
type GetRecordSuccessEvent struct {
	QueryID types.QueryID
	Record  types.Record
}

// PutRecordSuccessEvent PUT 查询成功
type PutRecordSuccessEvent struct {
	QueryID types.QueryID
}

// QueryFailedEvent 查询失败
type QueryFailedEvent struct {
	QueryID types.QueryID
}

func (PingEvent) Kind() string                      { return "ping" }
func (IdentifiedEvent) Kind() string                { return "identified" }
func (DiscoveredEvent) Kind() string                { return "discovered" }
func (RoutingTableUpdateEvent) Kind() string        { return "routing_table_update" }
func (ExternalAddressDiscoveredEvent) Kind() string { return "external_address" }
func (GetRecordSuccessEvent) Kind() string          { return "get_record_success" }
func (PutRecordSuccessEvent) Kind() string          { return "put_record_success" }
func (QueryFailedEvent) Kind() string               { return "query_failed" }
