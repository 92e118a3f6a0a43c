package config

import (
	"errors"
	"math"
)

// PeerStoreConfig 节点信誉配置
type PeerStoreConfig struct {
	// Capacity 最多记录的节点数
	Capacity int `json:"capacity" yaml:"capacity" toml:"capacity"`

	// BanThreshold 信誉低于此值的节点被断开并拒绝
	BanThreshold int32 `json:"ban_threshold" yaml:"ban_threshold" toml:"ban_threshold"`
}

// DefaultPeerStoreConfig 返回默认节点信誉配置
func DefaultPeerStoreConfig() PeerStoreConfig {
	return PeerStoreConfig{
		Capacity:     4096,
		BanThreshold: math.MinInt32 / 100 * 71,
	}
}

// Validate 验证节点信誉配置
func (c PeerStoreConfig) Validate() error {
	if c.Capacity <= 0 {
		return errors.New("peer store capacity must be positive")
	}
	if c.BanThreshold >= 0 {
		return errors.New("ban threshold must be negative")
	}
	return nil
}
