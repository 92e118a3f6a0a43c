package reqresp

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-chainnet/internal/metrics"
	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/internal/util/oneshot"
	"github.com/dep2p/go-chainnet/internal/util/poll"
	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/interfaces"
	"github.com/dep2p/go-chainnet/pkg/types"
)

var log = logger.Logger("reqresp")

// Result 出站请求的结果
type Result struct {
	Response types.Response
	Err      error
}

// Stats 引擎计数
type Stats struct {
	// Delivered 投递给应用的入站请求
	Delivered uint64

	// QueueFull 因入站通道已满被拒绝的请求
	QueueFull uint64

	// Stale 引用未知 RequestID 的事件
	Stale uint64
}

// Option 引擎选项
type Option func(*Protocol)

// WithPollBudget 设置单次轮询的处理上限
func WithPollBudget(n int) Option {
	return func(p *Protocol) {
		if n > 0 {
			p.budget = n
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Protocol) { p.metrics = m }
}

// WithClock 设置时钟
func WithClock(c clock.Clock) Option {
	return func(p *Protocol) { p.clock = c }
}

type pendingOutbound struct {
	peer    types.PeerID
	tx      *oneshot.Sender[Result]
	started time.Time
}

// Protocol 单个协议的请求-响应引擎
//
// 只由后端工作协程驱动。
type Protocol struct {
	name      types.ProtocolName
	handle    *Handle
	inbound   chan<- IncomingRequest
	peerStore interfaces.PeerStore

	pendingOutbound map[types.RequestID]pendingOutbound
	pendingInbound  map[types.RequestID]types.PeerID
	answers         *queue.Queue[answer]

	budget  int
	clock   clock.Clock
	metrics *metrics.Metrics
	stale   *rate.Limiter
	stats   Stats
}

// NewProtocol 创建引擎
func NewProtocol(handle *Handle, peerStore interfaces.PeerStore, opts ...Option) *Protocol {
	p := &Protocol{
		name:            handle.cfg.Name,
		handle:          handle,
		inbound:         handle.cfg.InboundQueue,
		peerStore:       peerStore,
		pendingOutbound: make(map[types.RequestID]pendingOutbound),
		pendingInbound:  make(map[types.RequestID]types.PeerID),
		answers:         queue.New[answer](handle.waker),
		budget:          DefaultPollBudget,
		clock:           clock.New(),
		stale:           rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 协议名
func (p *Protocol) Name() types.ProtocolName {
	return p.name
}

// Stats 返回计数快照
func (p *Protocol) Stats() Stats {
	return p.stats
}

// PendingOutbound 等待响应的出站请求数
func (p *Protocol) PendingOutbound() int {
	return len(p.pendingOutbound)
}

// PendingInbound 等待应用作答的入站请求数
func (p *Protocol) PendingInbound() int {
	return len(p.pendingInbound)
}

// SendRequest 发出请求并登记 tx
//
// 传输侧已停止时 tx 收到 types.ErrNetwork；投递被取消时 tx 被丢弃。
func (p *Protocol) SendRequest(ctx context.Context, peer types.PeerID, payload []byte, tx *oneshot.Sender[Result], connect types.IfDisconnected) error {
	id, err := p.handle.SendRequest(ctx, peer, payload, connect)
	if err != nil {
		if errors.Is(err, types.ErrNetwork) {
			tx.Send(Result{Err: types.ErrNetwork})
		} else {
			tx.Drop()
		}
		return err
	}

	p.pendingOutbound[id] = pendingOutbound{peer: peer, tx: tx, started: p.clock.Now()}
	log.Debug("发送请求",
		"protocol", p.name,
		"peer", logger.ShortPeer(peer),
		"request", id,
		"size", len(payload))
	return nil
}

// Poll 处理已就绪的传输事件和应用答复
//
// 每类最多处理 budget 条；达到上限时重新唤醒驱动方。
// 传输事件队列关闭且排空后返回 poll.Exhausted。
func (p *Protocol) Poll() poll.State {
	state := poll.Pending

	for i := 0; ; i++ {
		if i == p.budget {
			p.handle.waker.Wake()
			break
		}
		ev, st := p.handle.events.TryPop()
		if st == queue.Closed {
			return poll.Exhausted
		}
		if st == queue.Pending {
			break
		}
		state = poll.Ready
		p.onEvent(ev)
	}

	for i := 0; ; i++ {
		if i == p.budget {
			p.handle.waker.Wake()
			break
		}
		a, st := p.answers.TryPop()
		if st != queue.Ready {
			break
		}
		state = poll.Ready
		p.onAnswer(a)
	}

	return state
}

func (p *Protocol) onEvent(ev Event) {
	switch e := ev.(type) {
	case RequestReceived:
		p.onRequestReceived(e)
	case ResponseReceived:
		p.onResponseReceived(e)
	case RequestFailed:
		p.onRequestFailed(e)
	}
}

func (p *Protocol) onRequestReceived(e RequestReceived) {
	protocol := p.name
	if e.Fallback != "" {
		protocol = e.Fallback
	}
	req := IncomingRequest{
		Peer:     e.Peer,
		Payload:  e.Payload,
		Protocol: protocol,
		slot:     &answerSlot{id: e.RequestID, answers: p.answers},
	}

	select {
	case p.inbound <- req:
		p.pendingInbound[e.RequestID] = e.Peer
		p.stats.Delivered++
		p.metrics.InboundDelivered(string(p.name))
		log.Debug("收到请求",
			"protocol", p.name,
			"peer", logger.ShortPeer(e.Peer),
			"request", e.RequestID,
			"size", len(e.Payload))
	default:
		// nil 通道同样落入此分支
		p.stats.QueueFull++
		p.metrics.InboundRejected(string(p.name), "queue_full")
		log.Debug("入站通道已满，拒绝请求",
			"protocol", p.name,
			"peer", logger.ShortPeer(e.Peer),
			"request", e.RequestID,
			"error", ErrInboundQueueFull)
		p.reject(e.RequestID)
	}
}

func (p *Protocol) onResponseReceived(e ResponseReceived) {
	pending, ok := p.pendingOutbound[e.RequestID]
	if !ok {
		p.staleID("收到未知请求的响应", e.Peer, e.RequestID)
		return
	}
	delete(p.pendingOutbound, e.RequestID)

	protocol := p.name
	if e.Fallback != "" {
		protocol = e.Fallback
	}
	pending.tx.Send(Result{Response: types.Response{Payload: e.Payload, Protocol: protocol}})
	p.metrics.RequestFinished(string(p.name), metrics.OutcomeSuccess, p.clock.Since(pending.started))

	log.Debug("收到响应",
		"protocol", p.name,
		"peer", logger.ShortPeer(e.Peer),
		"request", e.RequestID,
		"size", len(e.Payload))
}

func (p *Protocol) onRequestFailed(e RequestFailed) {
	pending, ok := p.pendingOutbound[e.RequestID]
	if !ok {
		p.staleID("未知请求失败", e.Peer, e.RequestID)
		return
	}
	delete(p.pendingOutbound, e.RequestID)

	outcome, err := classifyFailure(e.Reason)
	switch e.Reason {
	case FailureCanceled:
		log.Debug("请求已被本地取消", "protocol", p.name, "peer", logger.ShortPeer(e.Peer), "request", e.RequestID)
	case FailureTooLargePayload:
		log.Warn("请求负载过大", "protocol", p.name, "peer", logger.ShortPeer(e.Peer), "request", e.RequestID)
	default:
		log.Debug("请求失败", "protocol", p.name, "peer", logger.ShortPeer(e.Peer), "request", e.RequestID, "reason", e.Reason)
	}

	if err == nil {
		pending.tx.Drop()
	} else {
		pending.tx.Send(Result{Err: err})
	}
	p.metrics.RequestFinished(string(p.name), outcome, 0)
}

// classifyFailure 将失败原因归为三类：未连接、被拒绝、不通知
func classifyFailure(reason FailureReason) (string, error) {
	switch reason {
	case FailureNotConnected:
		return metrics.OutcomeNotConnected, types.ErrNotConnected
	case FailureCanceled:
		return metrics.OutcomeCanceled, nil
	default:
		return metrics.OutcomeRefused, types.ErrRefused
	}
}

func (p *Protocol) onAnswer(a answer) {
	if _, ok := p.pendingInbound[a.id]; !ok {
		p.staleID("未知请求的答复", a.peer, a.id)
		return
	}
	delete(p.pendingInbound, a.id)

	if a.dropped {
		log.Debug("应用放弃作答，拒绝请求", "protocol", p.name, "peer", logger.ShortPeer(a.peer), "request", a.id)
		p.reject(a.id)
		return
	}

	resp := a.response
	for _, change := range resp.ReputationChanges {
		log.Debug("信誉调整", "peer", logger.ShortPeer(a.peer), "change", change.String())
		p.peerStore.ReportPeer(a.peer, change)
	}

	if resp.Err != nil {
		log.Debug("应用拒绝请求", "protocol", p.name, "peer", logger.ShortPeer(a.peer), "request", a.id, "error", resp.Err)
		p.reject(a.id)
		return
	}

	if !p.handle.SendResponse(a.id, resp.Result, resp.SentFeedback) {
		log.Warn("命令通道已满，丢弃响应", "protocol", p.name, "request", a.id)
		resp.SentFeedback.Drop()
		return
	}
	log.Debug("发送响应", "protocol", p.name, "peer", logger.ShortPeer(a.peer), "request", a.id, "size", len(resp.Result))
}

func (p *Protocol) reject(id types.RequestID) {
	if !p.handle.RejectRequest(id) {
		log.Warn("命令通道已满，无法拒绝请求", "protocol", p.name, "request", id)
	}
}

func (p *Protocol) staleID(msg string, peer types.PeerID, id types.RequestID) {
	p.stats.Stale++
	p.metrics.StaleID(string(p.name))
	if p.stale.Allow() {
		log.Warn(msg, "protocol", p.name, "peer", logger.ShortPeer(peer), "request", id)
		return
	}
	log.Debug(msg, "protocol", p.name, "peer", logger.ShortPeer(peer), "request", id)
}

// Close 放弃所有等待中的请求与答复
//
// 出站请求的调用方收到丢弃信号；之后应用的 Respond 返回 false。
func (p *Protocol) Close() {
	for id, pending := range p.pendingOutbound {
		pending.tx.Drop()
		delete(p.pendingOutbound, id)
	}
	p.answers.Close()
	for _, a := range p.answers.Drain() {
		if a.response.SentFeedback != nil {
			a.response.SentFeedback.Drop()
		}
	}
	clear(p.pendingInbound)
}
