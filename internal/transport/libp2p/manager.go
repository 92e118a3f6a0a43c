package libp2p

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"

	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/pkg/interfaces"
	"github.com/dep2p/go-chainnet/pkg/types"
)

var _ interfaces.TransportManager = (*Transport)(nil)

// AddKnownAddress 登记节点地址，返回实际接受的地址数
//
// 带 /p2p 组件的地址必须指向同一节点；本节点地址被忽略。
func (t *Transport) AddKnownAddress(p types.PeerID, addrs []types.Multiaddr) int {
	if p == t.host.ID() {
		return 0
	}

	valid := make([]types.Multiaddr, 0, len(addrs))
	for _, addr := range addrs {
		if addr == nil {
			continue
		}
		transport, id := peer.SplitAddr(addr)
		if id != "" && id != p {
			log.Debug("地址与节点不匹配", "peer", logger.ShortPeer(p), "addr", addr)
			continue
		}
		if transport == nil {
			continue
		}
		valid = append(valid, transport)
	}
	if len(valid) > 0 {
		t.host.Peerstore().AddAddrs(p, valid, peerstore.AddressTTL)
	}
	return len(valid)
}

// Disconnect 断开与节点的所有连接
func (t *Transport) Disconnect(p types.PeerID) {
	if err := t.host.Network().ClosePeer(p); err != nil {
		log.Debug("断开节点失败", "peer", logger.ShortPeer(p), "error", err)
	}
}

// ConnectedPeers 当前连接的节点
func (t *Transport) ConnectedPeers() []types.PeerID {
	return t.host.Network().Peers()
}

// Protect 保护节点连接不被裁剪
func (t *Transport) Protect(p types.PeerID, tag string) {
	t.connmgr.Protect(p, tag)
}

// Unprotect 取消保护
func (t *Transport) Unprotect(p types.PeerID, tag string) {
	t.connmgr.Unprotect(p, tag)
}

// BandwidthTotals 累计入站、出站字节
func (t *Transport) BandwidthTotals() (inbound, outbound uint64) {
	st := t.bandwidth.GetBandwidthTotals()
	return uint64(st.TotalIn), uint64(st.TotalOut)
}
