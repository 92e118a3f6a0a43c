package libp2p

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/pkg/protocolids"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// RolesProtocol 角色握手协议
const RolesProtocol = protocol.ID(protocolids.Roles)

// rolesTimeout 角色握手时限
const rolesTimeout = 5 * time.Second

// installRoles 入站握手流上写回本节点角色
func (t *Transport) installRoles() {
	t.host.SetStreamHandler(RolesProtocol, func(s network.Stream) {
		defer s.Close()
		_ = s.SetWriteDeadline(time.Now().Add(rolesTimeout))
		if _, err := s.Write(t.cfg.Roles.Encode()); err != nil {
			log.Debug("角色握手写入失败", "peer", logger.ShortPeer(s.Conn().RemotePeer()), "error", err)
			_ = s.Reset()
		}
	})
}

// installNotifee 每条新连接都尝试上报，同一节点的事件由 peerLinks 排序
func (t *Transport) installNotifee() {
	t.notifee = &network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			p := c.RemotePeer()
			if gen, ok := t.links.opened(p); ok {
				go t.onConnected(p, gen)
			}
		},
		DisconnectedF: func(n network.Network, c network.Conn) {
			p := c.RemotePeer()
			if n.Connectedness(p) == network.Connected {
				return
			}
			t.links.closed(p)
		},
	}
	t.host.Network().Notify(t.notifee)
}

func (t *Transport) onConnected(p peer.ID, gen uint64) {
	handshake := t.readRoles(p)
	connected := t.host.Network().Connectedness(p) == network.Connected
	t.links.ready(p, gen, handshake, connected)
}

// ============================================================================
//                              连接排序
// ============================================================================

// peerLink 单个节点的上报状态
type peerLink struct {
	gen         uint64
	handshaking bool
	reported    bool
}

// peerLinks 保证每个节点的 Connected 与 Disconnected 成对且有序
//
// 握手期间断开的连接不会上报；重连后旧握手的结果按代号丢弃。
type peerLinks struct {
	mu    sync.Mutex
	next  uint64
	peers map[peer.ID]*peerLink
	push  func(types.ConnectionEvent)
}

func newPeerLinks(push func(types.ConnectionEvent)) *peerLinks {
	return &peerLinks{peers: make(map[peer.ID]*peerLink), push: push}
}

// opened 新连接建立；返回 true 时调用方负责握手并调用 ready
func (l *peerLinks) opened(p peer.ID) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if link, ok := l.peers[p]; ok && (link.handshaking || link.reported) {
		return 0, false
	}
	l.next++
	l.peers[p] = &peerLink{gen: l.next, handshaking: true}
	return l.next, true
}

// ready 握手结束；connected 为握手后的连接状态
func (l *peerLinks) ready(p peer.ID, gen uint64, handshake []byte, connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.peers[p]
	if !ok || link.gen != gen {
		return
	}
	link.handshaking = false
	if !connected {
		delete(l.peers, p)
		return
	}
	link.reported = true
	l.push(types.ConnectionEvent{Peer: p, Connected: true, Handshake: handshake})
}

// closed 最后一条连接断开；只有已上报过的节点才上报断开
func (l *peerLinks) closed(p peer.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	link, ok := l.peers[p]
	if !ok {
		return
	}
	delete(l.peers, p)
	if link.reported {
		l.push(types.ConnectionEvent{Peer: p})
	}
}

// readRoles 读取远端角色，失败时返回空
func (t *Transport) readRoles(p peer.ID) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), rolesTimeout)
	defer cancel()

	s, err := t.host.NewStream(network.WithNoDial(ctx, "roles"), p, RolesProtocol)
	if err != nil {
		log.Debug("角色握手失败", "peer", logger.ShortPeer(p), "error", err)
		return nil
	}
	defer s.Close()

	_ = s.SetReadDeadline(time.Now().Add(rolesTimeout))
	buf := make([]byte, 1)
	if _, err := io.ReadFull(s, buf); err != nil {
		log.Debug("角色握手读取失败", "peer", logger.ShortPeer(p), "error", err)
		return nil
	}
	return buf
}

func (t *Transport) pushConnection(ev types.ConnectionEvent) {
	if t.connections == nil {
		return
	}
	if err := t.connections.Push(ev); err != nil {
		log.Debug("连接事件队列已关闭", "peer", logger.ShortPeer(ev.Peer))
	}
}
