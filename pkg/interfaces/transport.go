package interfaces

import "github.com/dep2p/go-chainnet/pkg/types"

// TransportManager 传输管理器
//
// 连接建立、多路复用和加密握手都由它负责，核心只通过以下操作与之交互。
type TransportManager interface {
	// AddKnownAddress 登记节点地址，返回实际接受的地址数
	AddKnownAddress(peer types.PeerID, addrs []types.Multiaddr) int

	// Disconnect 断开与节点的所有连接
	Disconnect(peer types.PeerID)

	// ConnectedPeers 当前连接的节点
	ConnectedPeers() []types.PeerID

	// Protect 保护节点连接不被连接管理器裁剪
	Protect(peer types.PeerID, tag string)

	// Unprotect 取消保护
	Unprotect(peer types.PeerID, tag string)

	// BandwidthTotals 累计入站、出站字节
	BandwidthTotals() (inbound, outbound uint64)
}
