package reqresp

import (
	"fmt"
	"time"

	"github.com/dep2p/go-chainnet/pkg/types"
)

const (
	// DefaultMaxRequestSize 默认最大请求大小
	DefaultMaxRequestSize = 1 << 20

	// DefaultMaxResponseSize 默认最大响应大小
	DefaultMaxResponseSize = 16 << 20

	// DefaultRequestTimeout 默认线上请求超时
	DefaultRequestTimeout = 20 * time.Second

	// DefaultCommandBuffer 命令通道容量
	DefaultCommandBuffer = 256

	// DefaultPollBudget 单次轮询最多处理的条目数
	DefaultPollBudget = 64
)

// Config 单个协议的配置
//
// 数值由使用方决定，引擎与传输层负责执行。
type Config struct {
	// Name 协议名
	Name types.ProtocolName

	// FallbackNames 回退协议名，按优先级排列
	FallbackNames []types.ProtocolName

	// MaxRequestSize 最大请求大小
	MaxRequestSize uint64

	// MaxResponseSize 最大响应大小
	MaxResponseSize uint64

	// RequestTimeout 线上请求超时
	RequestTimeout time.Duration

	// InboundQueue 入站请求投递通道，nil 表示不接受入站请求
	InboundQueue chan<- IncomingRequest
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty protocol name", ErrInvalidConfig)
	}
	if c.MaxRequestSize == 0 || c.MaxResponseSize == 0 {
		return fmt.Errorf("%w: %s: size limits must be positive", ErrInvalidConfig, c.Name)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: %s: request timeout must be positive", ErrInvalidConfig, c.Name)
	}
	return nil
}

// Names 主协议名与回退协议名
func (c Config) Names() []types.ProtocolName {
	out := make([]types.ProtocolName, 0, 1+len(c.FallbackNames))
	out = append(out, c.Name)
	return append(out, c.FallbackNames...)
}
