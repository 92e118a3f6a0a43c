package app

import (
	"time"

	"go.uber.org/fx"
)

// BootstrapOption Bootstrap 配置选项
type BootstrapOption func(*Bootstrap)

// WithBuildOptions 设置构建选项
func WithBuildOptions(opts BuildOptions) BootstrapOption {
	return func(b *Bootstrap) {
		b.opts = opts
	}
}

// WithFxOptions 追加用户 fx 选项（测试或嵌入方扩展用）
func WithFxOptions(opts ...fx.Option) BootstrapOption {
	return func(b *Bootstrap) {
		b.extra = append(b.extra, opts...)
	}
}

// BuildOptions 构建选项
type BuildOptions struct {
	// StartTimeout 启动超时
	StartTimeout time.Duration

	// StopTimeout 停止超时
	StopTimeout time.Duration
}

// DefaultBuildOptions 默认构建选项
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		StartTimeout: 30 * time.Second,
		StopTimeout:  30 * time.Second,
	}
}
