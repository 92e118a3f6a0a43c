package discovery

import (
	"fmt"
	"time"
)

// 固定参数
const (
	// DefaultLookupInterval 随机查找间隔
	DefaultLookupInterval = 30 * time.Second

	// DefaultMDNSQueryInterval mDNS 查询间隔
	DefaultMDNSQueryInterval = 30 * time.Second

	// DefaultOperationDeadline DHT 命令投递时限
	DefaultOperationDeadline = 10 * time.Second

	// DefaultPingInterval ping 间隔
	DefaultPingInterval = 15 * time.Second

	// DefaultMDNSServiceTag mDNS 服务标签
	DefaultMDNSServiceTag = "_chainnet-discovery._udp"

	// DefaultMinAddressConfirmations 外部地址确认所需的不同节点数
	DefaultMinAddressConfirmations = 2

	// DefaultAddressCacheSize 观察地址缓存容量
	DefaultAddressCacheSize = 64

	// DefaultCommandBuffer Kademlia 命令通道容量
	DefaultCommandBuffer = 64
)

// Config 发现配置
type Config struct {
	// EnableMDNS 是否启用局域网发现
	EnableMDNS bool

	// MDNSServiceTag mDNS 服务标签
	MDNSServiceTag string

	// MDNSQueryInterval mDNS 查询间隔，当前 libp2p 实现下不生效
	MDNSQueryInterval time.Duration

	// LookupInterval 随机查找间隔
	LookupInterval time.Duration

	// OperationDeadline DHT 命令投递时限，超时视为致命
	OperationDeadline time.Duration

	// PingInterval ping 间隔
	PingInterval time.Duration

	// MinAddressConfirmations 外部地址确认阈值
	MinAddressConfirmations int

	// AddressCacheSize 观察地址缓存容量
	AddressCacheSize int

	// CommandBuffer Kademlia 命令通道容量
	CommandBuffer int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		EnableMDNS:              false,
		MDNSServiceTag:          DefaultMDNSServiceTag,
		MDNSQueryInterval:       DefaultMDNSQueryInterval,
		LookupInterval:          DefaultLookupInterval,
		OperationDeadline:       DefaultOperationDeadline,
		PingInterval:            DefaultPingInterval,
		MinAddressConfirmations: DefaultMinAddressConfirmations,
		AddressCacheSize:        DefaultAddressCacheSize,
		CommandBuffer:           DefaultCommandBuffer,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.LookupInterval <= 0 {
		return fmt.Errorf("%w: lookup interval must be positive", ErrInvalidConfig)
	}
	if c.OperationDeadline <= 0 {
		return fmt.Errorf("%w: operation deadline must be positive", ErrInvalidConfig)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("%w: ping interval must be positive", ErrInvalidConfig)
	}
	if c.EnableMDNS && c.MDNSServiceTag == "" {
		return fmt.Errorf("%w: mdns service tag required", ErrInvalidConfig)
	}
	if c.MinAddressConfirmations < 1 {
		return fmt.Errorf("%w: address confirmations must be >= 1", ErrInvalidConfig)
	}
	if c.AddressCacheSize < 1 || c.CommandBuffer < 1 {
		return fmt.Errorf("%w: cache and buffer sizes must be positive", ErrInvalidConfig)
	}
	return nil
}
