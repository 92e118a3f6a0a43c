// Package oneshot 提供单值应答通道
//
// 发送方要么送出一个值，要么显式丢弃；接收方可以区分“收到值”和“发送方已放弃”。
package oneshot

import (
	"context"
	"errors"
	"sync"
)

// ErrDropped 发送方在送出值之前被丢弃
var ErrDropped = errors.New("oneshot sender dropped")

// Sender 发送端，只有第一次 Send 或 Drop 生效
type Sender[T any] struct {
	once sync.Once
	ch   chan T
}

// Receiver 接收端
type Receiver[T any] struct {
	ch <-chan T
}

// New 创建一对收发端
func New[T any]() (*Sender[T], *Receiver[T]) {
	ch := make(chan T, 1)
	return &Sender[T]{ch: ch}, &Receiver[T]{ch: ch}
}

// Send 送出值，返回本次是否生效
func (s *Sender[T]) Send(v T) bool {
	if s == nil {
		return false
	}
	sent := false
	s.once.Do(func() {
		s.ch <- v
		close(s.ch)
		sent = true
	})
	return sent
}

// Drop 放弃发送，接收端将得到 ErrDropped
func (s *Sender[T]) Drop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.ch)
	})
}

// Recv 等待结果
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-r.ch:
		if !ok {
			return zero, ErrDropped
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryRecv 非阻塞读取；done 表示是否已有结果
func (r *Receiver[T]) TryRecv() (v T, done bool, err error) {
	select {
	case got, ok := <-r.ch:
		if !ok {
			return v, true, ErrDropped
		}
		return got, true, nil
	default:
		return v, false, nil
	}
}

// C 返回底层通道，关闭且无值表示已丢弃
func (r *Receiver[T]) C() <-chan T {
	return r.ch
}
