// Package deadline 为必须在固定时限内完成的内部投递提供保护
//
// 时限内未完成说明后端已经停止消费，节点无法继续正常工作，
// 因此超时交由致命处理函数处理（默认 panic），不做重试。
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default 默认时限
const Default = 10 * time.Second

// ErrExceeded 操作超过固定时限
var ErrExceeded = errors.New("operation deadline exceeded")

// FatalHandler 致命错误处理函数
type FatalHandler func(err error)

// Panic 默认的致命处理：直接 panic
func Panic(err error) {
	panic(err)
}

// Guard 固定时限保护
type Guard struct {
	timeout time.Duration
	fatal   FatalHandler
}

// New 创建保护器；timeout <= 0 时使用 Default，fatal 为 nil 时使用 Panic
func New(timeout time.Duration, fatal FatalHandler) *Guard {
	if timeout <= 0 {
		timeout = Default
	}
	if fatal == nil {
		fatal = Panic
	}
	return &Guard{timeout: timeout, fatal: fatal}
}

// Timeout 返回时限
func (g *Guard) Timeout() time.Duration {
	return g.timeout
}

// Run 在时限内执行 op
//
// 父 context 取消时直接返回其错误；仅当时限本身耗尽时调用致命处理函数，
// 处理函数返回后 Run 返回 ErrExceeded。
func (g *Guard) Run(parent context.Context, what string, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, g.timeout)
	defer cancel()

	err := op(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		wrapped := fmt.Errorf("%w: %s after %s", ErrExceeded, what, g.timeout)
		g.fatal(wrapped)
		return wrapped
	}
	return err
}
