package reqresp

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dep2p/go-chainnet/internal/util/deadline"
	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/internal/util/oneshot"
	"github.com/dep2p/go-chainnet/internal/util/poll"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// DefaultDispatchDeadline 向引擎分发请求的时限
const DefaultDispatchDeadline = 10 * time.Second

// SetOption 注册表选项
type SetOption func(*setOptions)

type setOptions struct {
	deadline time.Duration
	fatal    deadline.FatalHandler
}

// WithDispatchDeadline 设置分发时限
func WithDispatchDeadline(d time.Duration) SetOption {
	return func(o *setOptions) { o.deadline = d }
}

// WithFatalHandler 设置分发超时时的致命处理
func WithFatalHandler(h deadline.FatalHandler) SetOption {
	return func(o *setOptions) { o.fatal = h }
}

// ProtocolSet 协议注册表
//
// 协议只在组装阶段注册，之后只读。
type ProtocolSet struct {
	protocols map[types.ProtocolName]*Protocol
	order     []types.ProtocolName
	guard     *deadline.Guard
}

// NewProtocolSet 创建注册表
func NewProtocolSet(opts ...SetOption) *ProtocolSet {
	o := setOptions{deadline: DefaultDispatchDeadline}
	for _, opt := range opts {
		opt(&o)
	}
	return &ProtocolSet{
		protocols: make(map[types.ProtocolName]*Protocol),
		guard:     deadline.New(o.deadline, o.fatal),
	}
}

// Register 注册引擎
func (s *ProtocolSet) Register(p *Protocol) error {
	if _, ok := s.protocols[p.name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProtocol, p.name)
	}
	s.protocols[p.name] = p

	// 轮询顺序固定
	i, _ := slices.BinarySearch(s.order, p.name)
	s.order = slices.Insert(s.order, i, p.name)
	return nil
}

// Protocol 按名称查找引擎
func (s *ProtocolSet) Protocol(name types.ProtocolName) (*Protocol, bool) {
	p, ok := s.protocols[name]
	return p, ok
}

// Names 已注册的协议名（有序）
func (s *ProtocolSet) Names() []types.ProtocolName {
	return slices.Clone(s.order)
}

// Len 注册的协议数
func (s *ProtocolSet) Len() int {
	return len(s.protocols)
}

// SendRequest 将请求分发给对应协议的引擎
//
// 协议未注册时立即返回 types.ErrUnknownProtocol，tx 保持不变，由调用方处理。
// 分发超过固定时限视为致命错误。
func (s *ProtocolSet) SendRequest(
	ctx context.Context,
	peer types.PeerID,
	protocol types.ProtocolName,
	payload []byte,
	tx *oneshot.Sender[Result],
	connect types.IfDisconnected,
) error {
	p, ok := s.protocols[protocol]
	if !ok {
		log.Warn("向未注册的协议发送请求", "peer", logger.ShortPeer(peer), "protocol", protocol)
		return fmt.Errorf("%w: %s", types.ErrUnknownProtocol, protocol)
	}

	return s.guard.Run(ctx, "send_request", func(ctx context.Context) error {
		return p.SendRequest(ctx, peer, payload, tx, connect)
	})
}

// Poll 按固定顺序轮询每个引擎一次
//
// 任一引擎耗尽时本次即返回 poll.Exhausted。
func (s *ProtocolSet) Poll() poll.State {
	state := poll.Pending
	exhausted := false

	for _, name := range s.order {
		switch s.protocols[name].Poll() {
		case poll.Exhausted:
			log.Error("协议事件源已终止", "protocol", name)
			exhausted = true
		case poll.Ready:
			state = poll.Ready
		}
	}

	if exhausted {
		return poll.Exhausted
	}
	return state
}

// Close 关闭所有引擎
func (s *ProtocolSet) Close() {
	for _, name := range s.order {
		s.protocols[name].Close()
	}
}
