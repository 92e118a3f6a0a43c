// Package logger 提供 chainnet 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（CHAINNET_LOG_LEVEL, CHAINNET_LOG_FORMAT）
//   - 结构化日志
//
// 使用示例:
//
//	package discovery
//
//	import "github.com/dep2p/go-chainnet/internal/util/logger"
//
//	var log = logger.Logger("discovery")
//
//	func foo() {
//	    log.Info("发现节点", "peer", peerID, "count", len(peers))
//	}
package logger

import (
	"io"
	"log/slog"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回同一实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	h := newHandler(subsystem, cfg.LevelForSubsystem(subsystem), cfg)

	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(h))
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).level.Set(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).level.Set(level)
		return true
	})
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 同样生效。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}

// Discard 返回一个丢弃所有日志的 Logger（测试用）
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// ShortPeer 返回日志中使用的节点短标识
func ShortPeer(p peer.ID) string {
	if p == "" {
		return ""
	}
	return TruncateID(p.String(), 12)
}

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[len(id)-maxLen:]
}
