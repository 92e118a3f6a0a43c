package config

import (
	"fmt"
	"time"

	"github.com/dep2p/go-chainnet/pkg/protocolids"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// ProtocolConfig 单个请求-响应协议
type ProtocolConfig struct {
	// Name 主协议名
	Name string `json:"name" yaml:"name" toml:"name"`

	// FallbackNames 回退协议名，按优先级排列
	FallbackNames []string `json:"fallback_names,omitempty" yaml:"fallback_names,omitempty" toml:"fallback_names,omitempty"`

	MaxRequestSize  uint64   `json:"max_request_size" yaml:"max_request_size" toml:"max_request_size"`
	MaxResponseSize uint64   `json:"max_response_size" yaml:"max_response_size" toml:"max_response_size"`
	RequestTimeout  Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`

	// InboundQueueSize 入站请求队列容量，0 表示不接受入站请求
	InboundQueueSize int `json:"inbound_queue_size" yaml:"inbound_queue_size" toml:"inbound_queue_size"`
}

// RequestResponseConfig 请求-响应配置
type RequestResponseConfig struct {
	// DispatchDeadline 注册表分发时限，超时视为致命错误
	DispatchDeadline Duration `json:"dispatch_deadline" yaml:"dispatch_deadline" toml:"dispatch_deadline"`

	Protocols []ProtocolConfig `json:"protocols" yaml:"protocols" toml:"protocols"`
}

// DefaultRequestResponseConfig 返回默认请求-响应配置
func DefaultRequestResponseConfig() RequestResponseConfig {
	return RequestResponseConfig{
		DispatchDeadline: Duration(10 * time.Second),
	}
}

// DefaultProtocolConfig 返回协议的默认配置
func DefaultProtocolConfig(name string) ProtocolConfig {
	return ProtocolConfig{
		Name:             name,
		MaxRequestSize:   1024 * 1024,
		MaxResponseSize:  16 * 1024 * 1024,
		RequestTimeout:   Duration(20 * time.Second),
		InboundQueueSize: 32,
	}
}

// Validate 验证请求-响应配置
func (c RequestResponseConfig) Validate() error {
	if c.DispatchDeadline <= 0 {
		return fmt.Errorf("%w: dispatch deadline must be positive", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Protocols))
	for _, p := range c.Protocols {
		if err := protocolids.ValidateUserProtocol(types.ProtocolName(p.Name)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: duplicate protocol %s", ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.MaxRequestSize == 0 || p.MaxResponseSize == 0 {
			return fmt.Errorf("%w: %s: size limits must be positive", ErrInvalidConfig, p.Name)
		}
		if p.RequestTimeout <= 0 {
			return fmt.Errorf("%w: %s: request timeout must be positive", ErrInvalidConfig, p.Name)
		}
		if p.InboundQueueSize < 0 {
			return fmt.Errorf("%w: %s: negative inbound queue size", ErrInvalidConfig, p.Name)
		}
	}
	return nil
}
