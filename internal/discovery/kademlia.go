package discovery

import (
	"context"
	"sync/atomic"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// ============================================================================
//                              Kademlia 命令
// ============================================================================

// KademliaCommand 发往 Kademlia 实现的命令
type KademliaCommand interface {
	isKademliaCommand()
}

// FindNodeCommand 查找离目标最近的节点
type FindNodeCommand struct {
	QueryID types.QueryID
	Target  types.PeerID
}

// GetRecordCommand 查询记录
type GetRecordCommand struct {
	QueryID types.QueryID
	Key     []byte
}

// PutRecordCommand 发布记录
type PutRecordCommand struct {
	QueryID types.QueryID
	Record  types.Record
}

// AddKnownPeerCommand 向路由表登记节点
type AddKnownPeerCommand struct {
	Peer      types.PeerID
	Addresses []types.Multiaddr
}

func (FindNodeCommand) isKademliaCommand()     {}
func (GetRecordCommand) isKademliaCommand()    {}
func (PutRecordCommand) isKademliaCommand()    {}
func (AddKnownPeerCommand) isKademliaCommand() {}

// ============================================================================
//                              Kademlia 事件
// ============================================================================

// KademliaEvent Kademlia 实现上报的事件
type KademliaEvent interface {
	isKademliaEvent()
}

// FindNodeSuccess 查找完成
type FindNodeSuccess struct {
	QueryID types.QueryID
	Target  types.PeerID
	Peers   []peer.AddrInfo
}

// RoutingTableUpdate 路由表新增节点
type RoutingTableUpdate struct {
	Peers []types.PeerID
}

// GetRecordSuccess 查询到记录
type GetRecordSuccess struct {
	QueryID types.QueryID
	Record  types.Record
}

// PutRecordSuccess 记录发布成功
type PutRecordSuccess struct {
	QueryID types.QueryID
	Key     []byte
}

// QueryFailed 查询失败
type QueryFailed struct {
	QueryID types.QueryID
}

func (FindNodeSuccess) isKademliaEvent()    {}
func (RoutingTableUpdate) isKademliaEvent() {}
func (GetRecordSuccess) isKademliaEvent()   {}
func (PutRecordSuccess) isKademliaEvent()   {}
func (QueryFailed) isKademliaEvent()        {}

// ============================================================================
//                              KademliaHandle
// ============================================================================

// KademliaHandle 发现侧的 Kademlia 句柄
//
// 命令经有界通道送往 Kademlia 实现，事件经队列返回。
// QueryID 单调递增分配，不会复用。
type KademliaHandle struct {
	cmds   chan KademliaCommand
	events *queue.Queue[KademliaEvent]
	nextID atomic.Uint64
}

func newKademliaHandle(buffer int, w *queue.Waker) *KademliaHandle {
	return &KademliaHandle{
		cmds:   make(chan KademliaCommand, buffer),
		events: queue.New[KademliaEvent](w),
	}
}

func (h *KademliaHandle) allocate() types.QueryID {
	return types.QueryID(h.nextID.Add(1))
}

// TryFindNode 非阻塞地发起查找
func (h *KademliaHandle) TryFindNode(target types.PeerID) (types.QueryID, error) {
	id := h.allocate()
	select {
	case h.cmds <- FindNodeCommand{QueryID: id, Target: target}:
		return id, nil
	default:
		return 0, ErrCommandChannelFull
	}
}

// GetRecord 发起 GET 查询
func (h *KademliaHandle) GetRecord(ctx context.Context, key []byte) (types.QueryID, error) {
	id := h.allocate()
	if err := h.send(ctx, GetRecordCommand{QueryID: id, Key: key}); err != nil {
		return 0, err
	}
	return id, nil
}

// PutRecord 发起 PUT 查询
func (h *KademliaHandle) PutRecord(ctx context.Context, record types.Record) (types.QueryID, error) {
	id := h.allocate()
	if err := h.send(ctx, PutRecordCommand{QueryID: id, Record: record}); err != nil {
		return 0, err
	}
	return id, nil
}

// AddKnownPeer 登记节点
func (h *KademliaHandle) AddKnownPeer(ctx context.Context, p types.PeerID, addrs []types.Multiaddr) error {
	return h.send(ctx, AddKnownPeerCommand{Peer: p, Addresses: addrs})
}

func (h *KademliaHandle) send(ctx context.Context, cmd KademliaCommand) error {
	select {
	case h.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
