package types

import (
	"strconv"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// ============================================================================
//                              节点与地址
// ============================================================================

// PeerID 节点标识（libp2p peer.ID）
type PeerID = peer.ID

// Multiaddr 多地址
type Multiaddr = ma.Multiaddr

// ParsePeerID 解析 Base58 节点标识
func ParsePeerID(s string) (PeerID, error) {
	return peer.Decode(s)
}

// SplitP2PAddr 从 /.../p2p/<id> 形式的地址中拆出节点标识和传输地址
func SplitP2PAddr(addr Multiaddr) (PeerID, Multiaddr, error) {
	transport, id := peer.SplitAddr(addr)
	if id == "" {
		return "", nil, ErrMissingPeerID
	}
	return id, transport, nil
}

// ============================================================================
//                              关联标识
// ============================================================================

// QueryID DHT 查询标识
//
// 由 Kademlia 句柄单调分配，不会复用。
type QueryID uint64

// String 返回十进制表示
func (id QueryID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// RequestID 请求-响应关联标识
//
// 同一协议实例内由引擎侧与传输侧共享的分配器分配。
type RequestID uint64

// String 返回十进制表示
func (id RequestID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ProtocolName 协议名，如 /abcd/sync/2
type ProtocolName string

// String 返回协议名
func (p ProtocolName) String() string {
	return string(p)
}
