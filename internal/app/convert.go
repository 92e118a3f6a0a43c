package app

import (
	"github.com/dep2p/go-chainnet/config"
	"github.com/dep2p/go-chainnet/internal/discovery"
	"github.com/dep2p/go-chainnet/internal/peerstore"
	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/service"
	"github.com/dep2p/go-chainnet/internal/transport/libp2p"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// ============================================================================
//                              配置转换
// ============================================================================

func discoveryConfig(c config.DiscoveryConfig) discovery.Config {
	out := discovery.DefaultConfig()
	out.EnableMDNS = c.EnableMDNS
	out.MDNSServiceTag = c.MDNSServiceTag
	out.MDNSQueryInterval = c.MDNSQueryInterval.Duration()
	out.LookupInterval = c.LookupInterval.Duration()
	out.OperationDeadline = c.OperationDeadline.Duration()
	out.PingInterval = c.PingInterval.Duration()
	out.MinAddressConfirmations = c.MinAddressConfirmations
	return out
}

func peerStoreConfig(c config.PeerStoreConfig) peerstore.Config {
	return peerstore.Config{
		Capacity:     c.Capacity,
		BanThreshold: c.BanThreshold,
	}
}

func transportConfig(cfg *config.Config) (libp2p.Config, error) {
	roles, err := cfg.Network.ParsedRoles()
	if err != nil {
		return libp2p.Config{}, err
	}
	out := libp2p.DefaultConfig()
	out.ListenAddrs = cfg.Network.ListenAddrs
	out.ConnMgrLow = cfg.ConnMgr.LowWater
	out.ConnMgrHigh = cfg.ConnMgr.HighWater
	out.ConnMgrGrace = cfg.ConnMgr.GracePeriod.Duration()
	out.Roles = roles
	return out, nil
}

// protocolConfig 转换单个协议；inbound 为空表示不接受入站请求
func protocolConfig(c config.ProtocolConfig, inbound chan<- reqresp.IncomingRequest) reqresp.Config {
	fallbacks := make([]types.ProtocolName, 0, len(c.FallbackNames))
	for _, n := range c.FallbackNames {
		fallbacks = append(fallbacks, types.ProtocolName(n))
	}
	return reqresp.Config{
		Name:            types.ProtocolName(c.Name),
		FallbackNames:   fallbacks,
		MaxRequestSize:  c.MaxRequestSize,
		MaxResponseSize: c.MaxResponseSize,
		RequestTimeout:  c.RequestTimeout.Duration(),
		InboundQueue:    inbound,
	}
}

func serviceConfig(cfg *config.Config) (service.Config, error) {
	reserved, err := cfg.Network.ParsedReservedPeers()
	if err != nil {
		return service.Config{}, err
	}
	return service.Config{
		DefaultProtocol: types.ProtocolName(cfg.Network.DefaultProtocol),
		EventBuffer:     cfg.Events.Buffer,
		PollBudget:      cfg.Events.PollBudget,
		ReservedPeers:   reserved,
		ReservedOnly:    cfg.Network.ReservedOnly,
	}, nil
}
