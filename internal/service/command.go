package service

import (
	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/util/oneshot"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// Command 门面发往后端的命令
type Command interface {
	// name 命令名，用于日志与指标
	name() string

	// abandon 后端停止时释放命令持有的应答通道
	abandon()
}

// GetValue 发起 DHT GET
type GetValue struct {
	Key []byte
}

// PutValue 发起 DHT PUT
type PutValue struct {
	Key   []byte
	Value []byte
}

// Status 查询网络状态
type Status struct {
	Reply *oneshot.Sender[types.NetworkStatus]
}

// StartRequest 发起请求
type StartRequest struct {
	Peer     types.PeerID
	Protocol types.ProtocolName
	Payload  []byte
	Reply    *oneshot.Sender[reqresp.Result]
	Connect  types.IfDisconnected
}

// AddPeersToReservedSet 向保留集添加节点（地址须带 /p2p）
type AddPeersToReservedSet struct {
	Protocol types.ProtocolName
	Peers    []types.Multiaddr
}

// ReportPeer 上报信誉调整
type ReportPeer struct {
	Peer   types.PeerID
	Change types.ReputationChange
}

// AddKnownAddress 登记节点地址
type AddKnownAddress struct {
	Peer    types.PeerID
	Address types.Multiaddr
}

// SetReservedPeers 替换保留集（地址须带 /p2p）
type SetReservedPeers struct {
	Protocol types.ProtocolName
	Peers    []types.Multiaddr
}

// DisconnectPeer 断开节点
type DisconnectPeer struct {
	Protocol types.ProtocolName
	Peer     types.PeerID
}

// SetReservedOnly 设置只接受保留节点
type SetReservedOnly struct {
	Protocol     types.ProtocolName
	ReservedOnly bool
}

// RemoveReservedPeers 从保留集移除节点
type RemoveReservedPeers struct {
	Protocol types.ProtocolName
	Peers    []types.PeerID
}

// EventStream 订阅网络事件
type EventStream struct {
	Sink *Subscription
}

// ReservedPeers 查询保留集
type ReservedPeers struct {
	Protocol types.ProtocolName
	Reply    *oneshot.Sender[[]types.PeerID]
}

func (GetValue) name() string              { return "get_value" }
func (PutValue) name() string              { return "put_value" }
func (Status) name() string                { return "status" }
func (StartRequest) name() string          { return "start_request" }
func (AddPeersToReservedSet) name() string { return "add_peers_to_reserved_set" }
func (ReportPeer) name() string            { return "report_peer" }
func (AddKnownAddress) name() string       { return "add_known_address" }
func (SetReservedPeers) name() string      { return "set_reserved_peers" }
func (DisconnectPeer) name() string        { return "disconnect_peer" }
func (SetReservedOnly) name() string       { return "set_reserved_only" }
func (RemoveReservedPeers) name() string   { return "remove_reserved_peers" }
func (EventStream) name() string           { return "event_stream" }
func (ReservedPeers) name() string         { return "reserved_peers" }

func (GetValue) abandon()              {}
func (PutValue) abandon()              {}
func (c Status) abandon()              { c.Reply.Drop() }
func (c StartRequest) abandon()        { c.Reply.Drop() }
func (AddPeersToReservedSet) abandon() {}
func (ReportPeer) abandon()            {}
func (AddKnownAddress) abandon()       {}
func (SetReservedPeers) abandon()      {}
func (DisconnectPeer) abandon()        {}
func (SetReservedOnly) abandon()       {}
func (RemoveReservedPeers) abandon()   {}
func (c EventStream) abandon()         { c.Sink.close() }
func (c ReservedPeers) abandon()       { c.Reply.Drop() }
