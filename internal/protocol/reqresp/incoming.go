package reqresp

import (
	"sync"

	"github.com/dep2p/go-chainnet/internal/util/oneshot"
	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// OutgoingResponse 应用对入站请求的答复
type OutgoingResponse struct {
	// Result 响应负载；Err 非空时请求被拒绝
	Result []byte
	Err    error

	// ReputationChanges 在发送响应之前应用
	ReputationChanges []types.ReputationChange

	// SentFeedback 响应写出后收到信号，可为 nil
	SentFeedback *oneshot.Sender[struct{}]
}

// IncomingRequest 投递给应用的入站请求
//
// 应用必须恰好调用一次 Respond 或 Drop；多余的调用被忽略。
type IncomingRequest struct {
	Peer     types.PeerID
	Payload  []byte
	Protocol types.ProtocolName

	slot *answerSlot
}

// Respond 答复请求，引擎已关闭或已答复时返回 false
func (r IncomingRequest) Respond(resp OutgoingResponse) bool {
	if r.slot == nil {
		return false
	}
	return r.slot.resolve(answer{peer: r.Peer, id: r.slot.id, response: resp})
}

// Drop 放弃作答，远端会收到拒绝
func (r IncomingRequest) Drop() {
	if r.slot == nil {
		return
	}
	r.slot.resolve(answer{peer: r.Peer, id: r.slot.id, dropped: true})
}

type answer struct {
	peer     types.PeerID
	id       types.RequestID
	response OutgoingResponse
	dropped  bool
}

type answerSlot struct {
	once    sync.Once
	id      types.RequestID
	answers *queue.Queue[answer]
}

func (s *answerSlot) resolve(a answer) bool {
	ok := false
	s.once.Do(func() {
		ok = s.answers.Push(a) == nil
	})
	return ok
}
