package libp2p

import (
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"

	"github.com/dep2p/go-chainnet/internal/discovery"
	"github.com/dep2p/go-chainnet/internal/util/logger"
)

// mdnsService 停止时关闭事件队列
type mdnsService struct {
	svc    mdns.Service
	events interface{ Close() }
}

func (m *mdnsService) Close() error {
	err := m.svc.Close()
	m.events.Close()
	return err
}

type mdnsNotifee struct {
	self   peer.ID
	events func(discovery.DiscoveredEvent) error
}

// HandlePeerFound 实现 mdns.Notifee
func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.self {
		return
	}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil || len(addrs) == 0 {
		return
	}
	log.Debug("mDNS 发现节点", "peer", logger.ShortPeer(info.ID), "addrs", len(addrs))
	_ = n.events(discovery.DiscoveredEvent{Addresses: addrs})
}

// startMDNS 启动局域网发现
//
// 查询间隔由 libp2p 内部决定，cfg.QueryInterval 不生效，只写入启动日志。
func startMDNS(h host.Host, cfg discovery.MdnsConfig) (*mdnsService, error) {
	notifee := &mdnsNotifee{self: h.ID(), events: cfg.Events.Push}
	svc := mdns.NewMdnsService(h, cfg.ServiceTag, notifee)
	if err := svc.Start(); err != nil {
		return nil, err
	}
	log.Info("mDNS 已启动", "service", cfg.ServiceTag, "interval_hint", cfg.QueryInterval)
	return &mdnsService{svc: svc, events: cfg.Events}, nil
}
