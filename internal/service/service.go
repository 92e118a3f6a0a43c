// Package service 实现网络服务门面与后端工作协程
//
// Service 是可随意复制共享的句柄：每个操作转换为一条命令推入无界的
// 多生产者单消费者队列，由唯一的 Backend 串行执行。Backend 独占发现模块、
// 协议注册表与全部可变网络状态，并驱动它们的轮询。
//
// 后端停止后，无应答的命令静默失败；需要应答的命令返回 ErrServiceClosed，
// 从不挂起。
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/internal/util/oneshot"
	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/interfaces"
	"github.com/dep2p/go-chainnet/pkg/types"
)

var log = logger.Logger("service")

// Signature 本地身份签名
type Signature struct {
	// PublicKey protobuf 编码的公钥
	PublicKey []byte
	Bytes     []byte
}

// Service 网络服务门面
//
// 值复制即可共享，所有字段在创建后不可变。
type Service struct {
	localPeer       types.PeerID
	localKey        crypto.PrivKey
	commands        *queue.Queue[Command]
	peerStore       interfaces.PeerStore
	connected       *atomic.Int64
	defaultProtocol types.ProtocolName
	eventBuffer     int
}

// LocalPeerID 本地节点标识
func (s Service) LocalPeerID() types.PeerID {
	return s.localPeer
}

// NumConnectedPeers 当前连接数
func (s Service) NumConnectedPeers() int {
	return int(s.connected.Load())
}

// PeerRole 解码握手中的角色，失败时回退到节点存储
func (s Service) PeerRole(p types.PeerID, handshake []byte) (types.ObservedRole, bool) {
	role, err := types.DecodeRoles(handshake)
	if err == nil {
		return role, true
	}
	log.Debug("握手中没有角色信息", "peer", logger.ShortPeer(p), "len", len(handshake))
	return s.peerStore.PeerRole(p)
}

// ============================================================================
//                              签名
// ============================================================================

// SignWithLocalIdentity 用本地身份签名
func (s Service) SignWithLocalIdentity(msg []byte) (Signature, error) {
	sig, err := s.localKey.Sign(msg)
	if err != nil {
		return Signature{}, err
	}
	pub, err := crypto.MarshalPublicKey(s.localKey.GetPublic())
	if err != nil {
		return Signature{}, err
	}
	return Signature{PublicKey: pub, Bytes: sig}, nil
}

// Verify 验证签名且公钥属于 p
func (s Service) Verify(p types.PeerID, publicKey, signature, message []byte) (bool, error) {
	pub, err := crypto.UnmarshalPublicKey(publicKey)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if id != p {
		return false, nil
	}
	return pub.Verify(message, signature)
}

// ============================================================================
//                              DHT
// ============================================================================

// GetValue 查询 DHT 记录，结果通过事件流返回
func (s Service) GetValue(key []byte) {
	s.submit(GetValue{Key: key})
}

// PutValue 发布 DHT 记录，结果通过事件流返回
func (s Service) PutValue(key, value []byte) {
	s.submit(PutValue{Key: key, Value: value})
}

// ============================================================================
//                              状态与事件
// ============================================================================

// Status 查询网络状态
func (s Service) Status(ctx context.Context) (types.NetworkStatus, error) {
	tx, rx := oneshot.New[types.NetworkStatus]()
	if !s.submit(Status{Reply: tx}) {
		return types.NetworkStatus{}, ErrServiceClosed
	}
	return awaitReply(ctx, rx)
}

// EventStream 订阅网络事件
//
// 后端已停止时返回的订阅通道立即关闭。
func (s Service) EventStream(name string) *Subscription {
	sub := newSubscription(name, s.eventBuffer)
	if !s.submit(EventStream{Sink: sub}) {
		sub.close()
	}
	return sub
}

// ============================================================================
//                              节点管理
// ============================================================================

// ReportPeer 上报信誉调整
func (s Service) ReportPeer(p types.PeerID, change types.ReputationChange) {
	s.submit(ReportPeer{Peer: p, Change: change})
}

// AddKnownAddress 登记节点地址
func (s Service) AddKnownAddress(p types.PeerID, addr types.Multiaddr) {
	s.submit(AddKnownAddress{Peer: p, Address: addr})
}

// DisconnectPeer 断开节点
func (s Service) DisconnectPeer(p types.PeerID, protocol types.ProtocolName) {
	s.submit(DisconnectPeer{Protocol: protocol, Peer: p})
}

// SetAuthorizedPeers 替换默认协议的保留集
func (s Service) SetAuthorizedPeers(peers []types.PeerID) {
	addrs := make([]types.Multiaddr, 0, len(peers))
	for _, p := range peers {
		addr, err := p2pAddr(p)
		if err != nil {
			log.Warn("无效的节点标识", "peer", p, "error", err)
			continue
		}
		addrs = append(addrs, addr)
	}
	s.submit(SetReservedPeers{Protocol: s.defaultProtocol, Peers: addrs})
}

// SetAuthorizedOnly 设置默认协议是否只接受保留节点
func (s Service) SetAuthorizedOnly(reservedOnly bool) {
	s.SetReservedOnly(s.defaultProtocol, reservedOnly)
}

// SetReservedOnly 设置协议是否只接受保留节点
func (s Service) SetReservedOnly(protocol types.ProtocolName, reservedOnly bool) {
	s.submit(SetReservedOnly{Protocol: protocol, ReservedOnly: reservedOnly})
}

// AcceptUnreservedPeers 接受非保留节点
func (s Service) AcceptUnreservedPeers() {
	s.SetAuthorizedOnly(false)
}

// DenyUnreservedPeers 拒绝非保留节点
func (s Service) DenyUnreservedPeers() {
	s.SetAuthorizedOnly(true)
}

// AddReservedPeer 向默认协议的保留集添加节点
func (s Service) AddReservedPeer(addr types.Multiaddr) error {
	return s.AddPeersToReservedSet(s.defaultProtocol, []types.Multiaddr{addr})
}

// RemoveReservedPeer 从默认协议的保留集移除节点
func (s Service) RemoveReservedPeer(p types.PeerID) {
	s.submit(RemoveReservedPeers{Protocol: s.defaultProtocol, Peers: []types.PeerID{p}})
}

// SetReservedPeers 替换保留集，地址须带 /p2p 组件
func (s Service) SetReservedPeers(protocol types.ProtocolName, addrs []types.Multiaddr) error {
	if err := requirePeerIDs(addrs); err != nil {
		return err
	}
	s.submit(SetReservedPeers{Protocol: protocol, Peers: addrs})
	return nil
}

// AddPeersToReservedSet 向保留集添加节点，地址须带 /p2p 组件
func (s Service) AddPeersToReservedSet(protocol types.ProtocolName, addrs []types.Multiaddr) error {
	if err := requirePeerIDs(addrs); err != nil {
		return err
	}
	s.submit(AddPeersToReservedSet{Protocol: protocol, Peers: addrs})
	return nil
}

// RemovePeersFromReservedSet 从保留集移除节点
func (s Service) RemovePeersFromReservedSet(protocol types.ProtocolName, peers []types.PeerID) {
	s.submit(RemoveReservedPeers{Protocol: protocol, Peers: peers})
}

// ReservedPeers 默认协议的保留集
func (s Service) ReservedPeers(ctx context.Context) ([]types.PeerID, error) {
	tx, rx := oneshot.New[[]types.PeerID]()
	if !s.submit(ReservedPeers{Protocol: s.defaultProtocol, Reply: tx}) {
		return nil, ErrServiceClosed
	}
	return awaitReply(ctx, rx)
}

// ============================================================================
//                              请求-响应
// ============================================================================

// StartRequest 发起请求，结果写入 tx
//
// 后端已停止时 tx 被丢弃。
func (s Service) StartRequest(
	p types.PeerID,
	protocol types.ProtocolName,
	payload []byte,
	tx *oneshot.Sender[reqresp.Result],
	connect types.IfDisconnected,
) {
	if !s.submit(StartRequest{Peer: p, Protocol: protocol, Payload: payload, Reply: tx, Connect: connect}) {
		tx.Drop()
	}
}

// Request 发起请求并等待响应
//
// 请求被本地取消或后端在处理前停止时返回 types.ErrObsolete。
func (s Service) Request(
	ctx context.Context,
	p types.PeerID,
	protocol types.ProtocolName,
	payload []byte,
	connect types.IfDisconnected,
) (types.Response, error) {
	tx, rx := oneshot.New[reqresp.Result]()
	if !s.submit(StartRequest{Peer: p, Protocol: protocol, Payload: payload, Reply: tx, Connect: connect}) {
		return types.Response{}, ErrServiceClosed
	}

	res, err := rx.Recv(ctx)
	if errors.Is(err, oneshot.ErrDropped) {
		return types.Response{}, types.ErrObsolete
	}
	if err != nil {
		return types.Response{}, err
	}
	if res.Err != nil {
		return types.Response{}, res.Err
	}
	return res.Response, nil
}

// ============================================================================
//                              内部
// ============================================================================

func (s Service) submit(cmd Command) bool {
	if err := s.commands.Push(cmd); err != nil {
		log.Debug("后端已停止，丢弃命令", "command", cmd.name())
		return false
	}
	return true
}

func awaitReply[T any](ctx context.Context, rx *oneshot.Receiver[T]) (T, error) {
	v, err := rx.Recv(ctx)
	if errors.Is(err, oneshot.ErrDropped) {
		return v, ErrServiceClosed
	}
	return v, err
}

func p2pAddr(p types.PeerID) (types.Multiaddr, error) {
	c, err := ma.NewComponent("p2p", p.String())
	if err != nil {
		return nil, err
	}
	return c, nil
}

func requirePeerIDs(addrs []types.Multiaddr) error {
	for _, addr := range addrs {
		if _, _, err := types.SplitP2PAddr(addr); err != nil {
			return fmt.Errorf("%w: %s", err, addr)
		}
	}
	return nil
}
