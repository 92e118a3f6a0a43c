// Package queue 提供协作式轮询使用的事件队列与唤醒器
//
// 生产者（传输层 goroutine、门面调用方）通过 Push 投递，从不阻塞；
// 唯一的消费者（后端工作协程）通过 TryPop 非阻塞地取出元素。
// 每次投递都会触发共享的 Waker，消费者只需在 Waker 上等待。
package queue

import (
	"errors"
	"sync"
)

var (
	// ErrClosed 队列已关闭
	ErrClosed = errors.New("queue closed")

	// ErrFull 有界队列已满
	ErrFull = errors.New("queue full")
)

// State 一次轮询的结果
type State int

const (
	// Pending 暂无元素
	Pending State = iota
	// Ready 取到一个元素
	Ready
	// Closed 队列已关闭且排空，不会再有元素
	Closed
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Queue 多生产者、单消费者的 FIFO 队列
//
// 锁只在入队/出队的瞬间持有，从不跨越等待点。
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	limit  int
	closed bool
	waker  *Waker
}

// New 创建无界队列
func New[T any](w *Waker) *Queue[T] {
	return &Queue[T]{waker: w}
}

// NewBounded 创建最多容纳 limit 个元素的队列
func NewBounded[T any](limit int, w *Waker) *Queue[T] {
	return &Queue[T]{limit: limit, waker: w}
}

// Push 投递元素
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.limit > 0 && len(q.items)-q.head >= q.limit {
		q.mu.Unlock()
		return ErrFull
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.waker.Wake()
	return nil
}

// TryPop 非阻塞取出一个元素
func (q *Queue[T]) TryPop() (T, State) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head < len(q.items) {
		v := q.items[q.head]
		q.items[q.head] = zero
		q.head++
		if q.head == len(q.items) {
			q.items = q.items[:0]
			q.head = 0
		} else if q.head > 64 && q.head*2 > len(q.items) {
			n := copy(q.items, q.items[q.head:])
			clear(q.items[n:])
			q.items = q.items[:n]
			q.head = 0
		}
		return v, Ready
	}
	if q.closed {
		return zero, Closed
	}
	return zero, Pending
}

// Drain 取出所有剩余元素（关闭后清理用）
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := append([]T(nil), q.items[q.head:]...)
	q.items = nil
	q.head = 0
	return out
}

// Close 关闭队列；已入队的元素仍可取出
func (q *Queue[T]) Close() {
	q.mu.Lock()
	already := q.closed
	q.closed = true
	q.mu.Unlock()

	if !already {
		q.waker.Wake()
	}
}

// IsClosed 队列是否已关闭
func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len 当前排队元素数
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
