package service

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dep2p/go-chainnet/pkg/types"
)

// DefaultEventBuffer 每个订阅者的事件缓冲
const DefaultEventBuffer = 100_000

// Subscription 事件流订阅
//
// 缓冲满时新事件对该订阅者丢弃。订阅者调用 Close 后，后端在下一次投递时
// 移除订阅并关闭通道。
type Subscription struct {
	id   string
	name string
	ch   chan types.Event

	done      atomic.Bool
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newSubscription(name string, capacity int) *Subscription {
	if capacity <= 0 {
		capacity = DefaultEventBuffer
	}
	return &Subscription{
		id:   uuid.NewString(),
		name: name,
		ch:   make(chan types.Event, capacity),
	}
}

// ID 订阅标识
func (s *Subscription) ID() string { return s.id }

// Name 订阅名
func (s *Subscription) Name() string { return s.name }

// C 事件通道，后端停止或订阅被移除后关闭
func (s *Subscription) C() <-chan types.Event { return s.ch }

// Dropped 因缓冲满丢弃的事件数
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close 取消订阅
func (s *Subscription) Close() {
	s.done.Store(true)
}

func (s *Subscription) deliver(ev types.Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// close 只由唯一的发送方调用
func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}
