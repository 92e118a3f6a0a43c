package reqresp

import (
	"context"
	"sync/atomic"

	"github.com/dep2p/go-chainnet/internal/util/oneshot"
	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// ============================================================================
//                              RequestID 分配
// ============================================================================

// IDAllocator 引擎侧与传输侧共享的 RequestID 分配器
type IDAllocator struct {
	next atomic.Uint64
}

// Next 分配新的 RequestID
func (a *IDAllocator) Next() types.RequestID {
	return types.RequestID(a.next.Add(1))
}

// ============================================================================
//                              命令（引擎 -> 传输）
// ============================================================================

// Command 发往传输层的命令
type Command interface {
	isCommand()
}

// SendRequestCommand 发送请求
type SendRequestCommand struct {
	RequestID types.RequestID
	Peer      types.PeerID
	Payload   []byte
	Connect   types.IfDisconnected
}

// SendResponseCommand 发送响应
type SendResponseCommand struct {
	RequestID types.RequestID
	Payload   []byte

	// Feedback 响应写出后发送信号，可为 nil
	Feedback *oneshot.Sender[struct{}]
}

// RejectRequestCommand 拒绝入站请求
type RejectRequestCommand struct {
	RequestID types.RequestID
}

func (SendRequestCommand) isCommand()   {}
func (SendResponseCommand) isCommand()  {}
func (RejectRequestCommand) isCommand() {}

// ============================================================================
//                              事件（传输 -> 引擎）
// ============================================================================

// FailureReason 传输层报告的请求失败原因
type FailureReason int

const (
	// FailureNotConnected 未连接且不允许拨号，或拨号失败
	FailureNotConnected FailureReason = iota
	// FailureRejected 远端拒绝
	FailureRejected
	// FailureTimeout 超时
	FailureTimeout
	// FailureCanceled 本地取消
	FailureCanceled
	// FailureTooLargePayload 负载超限
	FailureTooLargePayload
)

// String 返回原因名
func (r FailureReason) String() string {
	switch r {
	case FailureNotConnected:
		return "not-connected"
	case FailureRejected:
		return "rejected"
	case FailureTimeout:
		return "timeout"
	case FailureCanceled:
		return "canceled"
	case FailureTooLargePayload:
		return "too-large-payload"
	default:
		return "unknown"
	}
}

// Event 传输层上报的事件
type Event interface {
	isEvent()
}

// RequestReceived 收到入站请求
type RequestReceived struct {
	Peer      types.PeerID
	RequestID types.RequestID
	Payload   []byte

	// Fallback 通过回退协议到达时为回退协议名
	Fallback types.ProtocolName
}

// ResponseReceived 收到出站请求的响应
type ResponseReceived struct {
	Peer      types.PeerID
	RequestID types.RequestID
	Payload   []byte
	Fallback  types.ProtocolName
}

// RequestFailed 出站请求失败
type RequestFailed struct {
	Peer      types.PeerID
	RequestID types.RequestID
	Reason    FailureReason
}

func (RequestReceived) isEvent()  {}
func (ResponseReceived) isEvent() {}
func (RequestFailed) isEvent()    {}

// ============================================================================
//                              Handle
// ============================================================================

// Handle 引擎侧句柄
type Handle struct {
	cfg    Config
	cmds   chan Command
	events *queue.Queue[Event]
	ids    *IDAllocator
	waker  *queue.Waker
}

// Transport 传输侧句柄
type Transport struct {
	Config   Config
	Commands <-chan Command
	Events   *queue.Queue[Event]
	IDs      *IDAllocator
}

// NewHandle 创建一对引擎侧与传输侧句柄
func NewHandle(cfg Config, buffer int, w *queue.Waker) (*Handle, *Transport) {
	if buffer <= 0 {
		buffer = DefaultCommandBuffer
	}
	ids := &IDAllocator{}
	h := &Handle{
		cfg:    cfg,
		cmds:   make(chan Command, buffer),
		events: queue.New[Event](w),
		ids:    ids,
		waker:  w,
	}
	return h, &Transport{
		Config:   cfg,
		Commands: h.cmds,
		Events:   h.events,
		IDs:      ids,
	}
}

// SendRequest 发出请求，返回分配的 RequestID
//
// 传输侧已停止时返回 types.ErrNetwork。
func (h *Handle) SendRequest(ctx context.Context, p types.PeerID, payload []byte, connect types.IfDisconnected) (types.RequestID, error) {
	if h.events.IsClosed() {
		return 0, types.ErrNetwork
	}
	id := h.ids.Next()
	select {
	case h.cmds <- SendRequestCommand{RequestID: id, Peer: p, Payload: payload, Connect: connect}:
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SendResponse 发送响应，通道满时返回 false
func (h *Handle) SendResponse(id types.RequestID, payload []byte, feedback *oneshot.Sender[struct{}]) bool {
	return h.trySend(SendResponseCommand{RequestID: id, Payload: payload, Feedback: feedback})
}

// RejectRequest 拒绝入站请求，通道满时返回 false
func (h *Handle) RejectRequest(id types.RequestID) bool {
	return h.trySend(RejectRequestCommand{RequestID: id})
}

func (h *Handle) trySend(cmd Command) bool {
	select {
	case h.cmds <- cmd:
		return true
	default:
		return false
	}
}
