package libp2p

import (
	"sync/atomic"

	"github.com/libp2p/go-libp2p/core/connmgr"
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-chainnet/internal/util/logger"
)

// AllowFunc 节点准入判断，可在任意 goroutine 中调用
type AllowFunc func(peer.ID) bool

// Gater 连接门控器
//
// 拨号与握手完成后都调用同一组判断；任一判断拒绝即断开。
type Gater struct {
	checks []AllowFunc

	interceptedDials   atomic.Int64
	interceptedSecured atomic.Int64
}

var _ connmgr.ConnectionGater = (*Gater)(nil)

// NewGater 创建连接门控器
func NewGater(checks ...AllowFunc) *Gater {
	return &Gater{checks: checks}
}

func (g *Gater) allow(p peer.ID) bool {
	for _, check := range g.checks {
		if check != nil && !check(p) {
			return false
		}
	}
	return true
}

// InterceptPeerDial 拨号前检查节点
func (g *Gater) InterceptPeerDial(p peer.ID) bool {
	if !g.allow(p) {
		g.interceptedDials.Add(1)
		return false
	}
	return true
}

// InterceptAddrDial 拨号前检查地址
func (g *Gater) InterceptAddrDial(p peer.ID, _ ma.Multiaddr) bool {
	return g.InterceptPeerDial(p)
}

// InterceptAccept 入站连接在握手前无法识别节点，一律放行
func (g *Gater) InterceptAccept(network.ConnMultiaddrs) bool {
	return true
}

// InterceptSecured 握手完成后检查节点
func (g *Gater) InterceptSecured(dir network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	if !g.allow(p) {
		g.interceptedSecured.Add(1)
		log.Debug("拒绝连接", "peer", logger.ShortPeer(p), "dir", dir.String())
		return false
	}
	return true
}

// InterceptUpgraded 升级后不再拦截
func (g *Gater) InterceptUpgraded(network.Conn) (bool, control.DisconnectReason) {
	return true, 0
}

// Stats 被拦截的拨号数与握手数
func (g *Gater) Stats() (dials, secured int64) {
	return g.interceptedDials.Load(), g.interceptedSecured.Load()
}
