// Package app 提供 chainnet 应用编排层
//
// app 包负责：
// - 配置到各组件配置的转换
// - fx 模块组装
// - 生命周期管理（传输层、后端工作协程、指标服务）
package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-chainnet/config"
	"github.com/dep2p/go-chainnet/internal/util/logger"
)

var log = logger.Logger("app")

// Bootstrap 应用引导程序
//
// Bootstrap 负责：
// - 校验配置
// - 组装 fx 模块
// - 管理应用生命周期
type Bootstrap struct {
	config *config.Config
	opts   BuildOptions
	extra  []fx.Option

	fxApp   *fx.App
	runtime *Runtime
}

// NewBootstrap 创建引导程序
func NewBootstrap(cfg *config.Config, opts ...BootstrapOption) *Bootstrap {
	b := &Bootstrap{
		config: cfg,
		opts:   DefaultBuildOptions(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Options 返回完整的 fx 选项（不含 fx 日志配置），测试中可交给 fxtest
func (b *Bootstrap) Options() fx.Option {
	return fx.Options(
		fx.Supply(b.config),
		FoundationModules(),
		NetworkModules(),
		ServiceModules(),
		MonitoringModules(),
		fx.Invoke(func(in runtimeInput) {
			b.runtime = newRuntime(in)
		}),
		fx.Options(b.extra...),
	)
}

// Start 构建并启动节点
func (b *Bootstrap) Start(ctx context.Context) (*Runtime, error) {
	if b.config == nil {
		b.config = config.NewConfig()
	}
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	b.fxApp = fx.New(
		b.Options(),
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.StartTimeout(b.opts.StartTimeout),
		fx.StopTimeout(b.opts.StopTimeout),
	)
	if err := b.fxApp.Err(); err != nil {
		return nil, fmt.Errorf("组装模块失败: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, b.opts.StartTimeout)
	defer cancel()
	if err := b.fxApp.Start(startCtx); err != nil {
		return nil, fmt.Errorf("启动应用失败: %w", err)
	}

	b.runtime.done = b.fxApp.Wait()
	b.runtime.stop = b.Stop

	log.Info("节点已启动",
		"peer", b.runtime.Transport.ID().String(),
		"addrs", b.runtime.Transport.Addrs())
	return b.runtime, nil
}

// Stop 停止应用
func (b *Bootstrap) Stop(ctx context.Context) error {
	if b.fxApp == nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, b.opts.StopTimeout)
	defer cancel()

	return b.fxApp.Stop(stopCtx)
}
