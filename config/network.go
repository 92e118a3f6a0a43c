package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-chainnet/pkg/types"
)

// KnownPeer 启动节点
type KnownPeer struct {
	// PeerID 目标节点的 Peer ID
	PeerID string `json:"peer_id" yaml:"peer_id" toml:"peer_id"`

	// Addrs 目标节点的地址列表，例如 "/ip4/1.2.3.4/tcp/30333"
	Addrs []string `json:"addrs" yaml:"addrs" toml:"addrs"`
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	// ListenAddrs 监听地址
	ListenAddrs []string `json:"listen_addrs" yaml:"listen_addrs" toml:"listen_addrs"`

	// GenesisHash 创世块哈希（十六进制，可带 0x 前缀）
	GenesisHash string `json:"genesis_hash" yaml:"genesis_hash" toml:"genesis_hash"`

	// ForkID 分叉标识，可为空
	ForkID string `json:"fork_id,omitempty" yaml:"fork_id,omitempty" toml:"fork_id,omitempty"`

	// ProtocolID 旧式协议标识，如 "dot"
	ProtocolID string `json:"protocol_id" yaml:"protocol_id" toml:"protocol_id"`

	// Roles 本节点角色: full / light / authority
	Roles string `json:"roles" yaml:"roles" toml:"roles"`

	// BootNodes 启动节点
	BootNodes []KnownPeer `json:"boot_nodes,omitempty" yaml:"boot_nodes,omitempty" toml:"boot_nodes,omitempty"`

	// ReservedPeers 默认协议的保留节点，必须带 /p2p
	ReservedPeers []string `json:"reserved_peers,omitempty" yaml:"reserved_peers,omitempty" toml:"reserved_peers,omitempty"`

	// ReservedOnly 只接受保留节点
	ReservedOnly bool `json:"reserved_only" yaml:"reserved_only" toml:"reserved_only"`

	// DefaultProtocol 默认节点集合对应的协议
	DefaultProtocol string `json:"default_protocol" yaml:"default_protocol" toml:"default_protocol"`
}

// DefaultNetworkConfig 返回默认网络配置
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ListenAddrs: []string{
			"/ip4/0.0.0.0/tcp/30333",
			"/ip6/::/tcp/30333",
		},
		GenesisHash:     "00",
		ProtocolID:      "sup",
		Roles:           "full",
		DefaultProtocol: "/sup/block-announces/1",
	}
}

// Validate 验证网络配置
func (c NetworkConfig) Validate() error {
	if _, err := c.Genesis(); err != nil {
		return err
	}
	if c.ProtocolID == "" {
		return fmt.Errorf("%w: protocol id is empty", ErrInvalidConfig)
	}
	if c.DefaultProtocol == "" {
		return fmt.Errorf("%w: default protocol is empty", ErrInvalidConfig)
	}
	if _, err := c.ParsedRoles(); err != nil {
		return err
	}
	for _, addr := range c.ListenAddrs {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("%w: listen addr %q: %v", ErrInvalidConfig, addr, err)
		}
	}
	if _, err := c.ParsedBootNodes(); err != nil {
		return err
	}
	if _, err := c.ParsedReservedPeers(); err != nil {
		return err
	}
	return nil
}

// Genesis 解码创世块哈希
func (c NetworkConfig) Genesis() ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(c.GenesisHash, "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("%w: genesis hash is empty", ErrInvalidConfig)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: genesis hash: %v", ErrInvalidConfig, err)
	}
	return b, nil
}

// ParsedRoles 解析本节点角色
func (c NetworkConfig) ParsedRoles() (types.Roles, error) {
	switch strings.ToLower(c.Roles) {
	case "", "full":
		return types.RoleFull, nil
	case "light":
		return types.RoleLight, nil
	case "authority":
		return types.RoleAuthority | types.RoleFull, nil
	default:
		return 0, fmt.Errorf("%w: unknown roles %q", ErrInvalidConfig, c.Roles)
	}
}

// ParsedBootNodes 解析启动节点
func (c NetworkConfig) ParsedBootNodes() (map[types.PeerID][]types.Multiaddr, error) {
	out := make(map[types.PeerID][]types.Multiaddr, len(c.BootNodes))
	for _, kp := range c.BootNodes {
		id, err := peer.Decode(kp.PeerID)
		if err != nil {
			return nil, fmt.Errorf("%w: boot node %q: %v", ErrInvalidConfig, kp.PeerID, err)
		}
		for _, s := range kp.Addrs {
			addr, err := ma.NewMultiaddr(s)
			if err != nil {
				return nil, fmt.Errorf("%w: boot node addr %q: %v", ErrInvalidConfig, s, err)
			}
			out[id] = append(out[id], addr)
		}
	}
	return out, nil
}

// ParsedReservedPeers 解析保留节点地址
func (c NetworkConfig) ParsedReservedPeers() ([]types.Multiaddr, error) {
	out := make([]types.Multiaddr, 0, len(c.ReservedPeers))
	for _, s := range c.ReservedPeers {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("%w: reserved peer %q: %v", ErrInvalidConfig, s, err)
		}
		if _, _, err := types.SplitP2PAddr(addr); err != nil {
			return nil, fmt.Errorf("%w: reserved peer %q: %v", ErrInvalidConfig, s, err)
		}
		out = append(out, addr)
	}
	return out, nil
}
