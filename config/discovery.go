package config

import (
	"errors"
	"time"
)

// DiscoveryConfig 节点发现配置
type DiscoveryConfig struct {
	// EnableMDNS 局域网发现
	EnableMDNS bool `json:"enable_mdns" yaml:"enable_mdns" toml:"enable_mdns"`

	// MDNSServiceTag mDNS 服务标签
	MDNSServiceTag string `json:"mdns_service_tag" yaml:"mdns_service_tag" toml:"mdns_service_tag"`

	// MDNSQueryInterval mDNS 查询间隔
	//
	// 保留以兼容已有配置文件；libp2p mDNS 自行决定查询节奏，此值不生效。
	MDNSQueryInterval Duration `json:"mdns_query_interval" yaml:"mdns_query_interval" toml:"mdns_query_interval"`

	// LookupInterval Kademlia 随机查找间隔
	LookupInterval Duration `json:"lookup_interval" yaml:"lookup_interval" toml:"lookup_interval"`

	// OperationDeadline DHT 命令投递时限，超时视为致命错误
	OperationDeadline Duration `json:"operation_deadline" yaml:"operation_deadline" toml:"operation_deadline"`

	// PingInterval ping 间隔
	PingInterval Duration `json:"ping_interval" yaml:"ping_interval" toml:"ping_interval"`

	// MinAddressConfirmations 外部地址确认所需的不同节点数
	MinAddressConfirmations int `json:"min_address_confirmations" yaml:"min_address_confirmations" toml:"min_address_confirmations"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		// ════════════════════════════════════════════════════════════════════
		// 局域网发现（默认关闭）
		// ════════════════════════════════════════════════════════════════════
		EnableMDNS:        false,
		MDNSServiceTag:    "_chainnet-discovery._udp",
		MDNSQueryInterval: Duration(30 * time.Second),

		// ════════════════════════════════════════════════════════════════════
		// Kademlia
		// ════════════════════════════════════════════════════════════════════
		LookupInterval:    Duration(30 * time.Second), // 随机查找间隔
		OperationDeadline: Duration(10 * time.Second), // 命令投递时限

		PingInterval:            Duration(15 * time.Second),
		MinAddressConfirmations: 2,
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	if c.LookupInterval <= 0 {
		return errors.New("lookup interval must be positive")
	}
	if c.OperationDeadline <= 0 {
		return errors.New("operation deadline must be positive")
	}
	if c.PingInterval <= 0 {
		return errors.New("ping interval must be positive")
	}
	if c.EnableMDNS && c.MDNSServiceTag == "" {
		return errors.New("mdns service tag is required when mdns is enabled")
	}
	if c.MinAddressConfirmations < 1 {
		return errors.New("min address confirmations must be at least 1")
	}
	return nil
}
