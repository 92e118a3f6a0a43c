package config

import (
	"errors"
	"time"
)

// ConnManagerConfig 连接管理配置
type ConnManagerConfig struct {
	// LowWater 裁剪后保留的连接数
	LowWater int `json:"low_water" yaml:"low_water" toml:"low_water"`

	// HighWater 超过此值开始裁剪
	HighWater int `json:"high_water" yaml:"high_water" toml:"high_water"`

	// GracePeriod 新连接保护期
	GracePeriod Duration `json:"grace_period" yaml:"grace_period" toml:"grace_period"`
}

// DefaultConnManagerConfig 返回默认连接管理配置
func DefaultConnManagerConfig() ConnManagerConfig {
	return ConnManagerConfig{
		LowWater:    32,
		HighWater:   96,
		GracePeriod: Duration(time.Minute),
	}
}

// Validate 验证连接管理配置
func (c ConnManagerConfig) Validate() error {
	if c.LowWater < 0 {
		return errors.New("low water must be non-negative")
	}
	if c.HighWater < c.LowWater {
		return errors.New("high water must be >= low water")
	}
	return nil
}
