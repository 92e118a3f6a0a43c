package config

import "errors"

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enable 是否启动 /metrics 服务
	Enable bool `json:"enable" yaml:"enable" toml:"enable"`

	// ListenAddr 监听地址
	ListenAddr string `json:"listen_addr" yaml:"listen_addr" toml:"listen_addr"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enable:     false,
		ListenAddr: "127.0.0.1:9615",
	}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.Enable && c.ListenAddr == "" {
		return errors.New("metrics listen addr is required when metrics are enabled")
	}
	return nil
}
