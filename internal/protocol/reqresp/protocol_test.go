package reqresp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-chainnet/internal/util/oneshot"
	"github.com/dep2p/go-chainnet/internal/util/poll"
	"github.com/dep2p/go-chainnet/internal/util/queue"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type report struct {
	peer   types.PeerID
	change types.ReputationChange

	// pendingCommands 上报时传输侧尚未取走的命令数
	pendingCommands int
}

type fakePeerStore struct {
	mu       sync.Mutex
	reports  []report
	commands <-chan Command
}

func (f *fakePeerStore) PeerCount() int { return 0 }

func (f *fakePeerStore) PeerRole(types.PeerID) (types.ObservedRole, bool) {
	return types.RoleUnknown, false
}

func (f *fakePeerStore) ReportPeer(p types.PeerID, c types.ReputationChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report{peer: p, change: c, pendingCommands: len(f.commands)})
}

func (f *fakePeerStore) AddKnownPeer(types.PeerID) {}

type testProtocol struct {
	*Protocol
	transport *Transport
	inbound   chan IncomingRequest
	peers     *fakePeerStore
	waker     *queue.Waker
}

func newTestProtocol(t *testing.T, name types.ProtocolName, inboundCap int, opts ...Option) *testProtocol {
	t.Helper()

	inbound := make(chan IncomingRequest, inboundCap)
	cfg := Config{
		Name:            name,
		MaxRequestSize:  DefaultMaxRequestSize,
		MaxResponseSize: DefaultMaxResponseSize,
		RequestTimeout:  DefaultRequestTimeout,
		InboundQueue:    inbound,
	}
	require.NoError(t, cfg.Validate())

	w := queue.NewWaker()
	h, tr := NewHandle(cfg, 16, w)
	ps := &fakePeerStore{commands: tr.Commands}

	return &testProtocol{
		Protocol:  NewProtocol(h, ps, opts...),
		transport: tr,
		inbound:   inbound,
		peers:     ps,
		waker:     w,
	}
}

func (tp *testProtocol) nextCommand(t *testing.T) Command {
	t.Helper()
	select {
	case cmd := <-tp.transport.Commands:
		return cmd
	default:
		t.Fatal("expected a command")
		return nil
	}
}

func (tp *testProtocol) noCommand(t *testing.T) {
	t.Helper()
	select {
	case cmd := <-tp.transport.Commands:
		t.Fatalf("unexpected command %T", cmd)
	default:
	}
}

func (tp *testProtocol) send(t *testing.T, peer types.PeerID, payload string) (types.RequestID, *oneshot.Receiver[Result]) {
	t.Helper()
	tx, rx := oneshot.New[Result]()
	require.NoError(t, tp.SendRequest(context.Background(), peer, []byte(payload), tx, types.TryConnect))
	cmd := tp.nextCommand(t).(SendRequestCommand)
	assert.Equal(t, peer, cmd.Peer)
	return cmd.RequestID, rx
}

func (tp *testProtocol) receive(t *testing.T, peer types.PeerID, payload string) types.RequestID {
	t.Helper()
	id := tp.transport.IDs.Next()
	require.NoError(t, tp.transport.Events.Push(RequestReceived{Peer: peer, RequestID: id, Payload: []byte(payload)}))
	return id
}

// ============================================================================
//                              出站请求
// ============================================================================

// TestProtocol_RoundTrip 测试响应只完成对应 RequestID 的请求
func TestProtocol_RoundTrip(t *testing.T) {
	tp := newTestProtocol(t, "/x/1", 1)

	id1, rx1 := tp.send(t, "alice", "one")
	id2, rx2 := tp.send(t, "bob", "two")
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, tp.PendingOutbound())

	require.NoError(t, tp.transport.Events.Push(ResponseReceived{Peer: "bob", RequestID: id2, Payload: []byte("pong")}))
	assert.Equal(t, poll.Ready, tp.Poll())

	res, err := rx2.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), res.Response.Payload)
	assert.Equal(t, types.ProtocolName("/x/1"), res.Response.Protocol)

	_, done, _ := rx1.TryRecv()
	assert.False(t, done, "other request must stay pending")
	assert.Equal(t, 1, tp.PendingOutbound())

	t.Log("✅ 往返只完成匹配的请求")
}

// TestProtocol_FallbackResponse 测试回退协议名随响应返回
func TestProtocol_FallbackResponse(t *testing.T) {
	tp := newTestProtocol(t, "/x/2", 1)
	id, rx := tp.send(t, "alice", "req")

	require.NoError(t, tp.transport.Events.Push(ResponseReceived{Peer: "alice", RequestID: id, Payload: []byte("r"), Fallback: "/x/1"}))
	tp.Poll()

	res, err := rx.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolName("/x/1"), res.Response.Protocol)
}

// TestProtocol_UnknownResponse 测试未知 RequestID 的响应不改变状态
func TestProtocol_UnknownResponse(t *testing.T) {
	tp := newTestProtocol(t, "/x/1", 1)
	_, rx := tp.send(t, "alice", "req")

	require.NoError(t, tp.transport.Events.Push(ResponseReceived{Peer: "alice", RequestID: 999, Payload: []byte("?")}))
	require.NoError(t, tp.transport.Events.Push(RequestFailed{Peer: "alice", RequestID: 998, Reason: FailureTimeout}))

	assert.NotPanics(t, func() { tp.Poll() })
	assert.Equal(t, 1, tp.PendingOutbound())
	assert.Equal(t, uint64(2), tp.Stats().Stale)

	_, done, _ := rx.TryRecv()
	assert.False(t, done)
	tp.noCommand(t)
}

// TestProtocol_FailureClassification 测试失败原因归类
func TestProtocol_FailureClassification(t *testing.T) {
	tests := []struct {
		reason  FailureReason
		want    error
		dropped bool
	}{
		{FailureNotConnected, types.ErrNotConnected, false},
		{FailureRejected, types.ErrRefused, false},
		{FailureTimeout, types.ErrRefused, false},
		{FailureTooLargePayload, types.ErrRefused, false},
		{FailureCanceled, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			tp := newTestProtocol(t, "/x/1", 1)
			id, rx := tp.send(t, "alice", "req")

			require.NoError(t, tp.transport.Events.Push(RequestFailed{Peer: "alice", RequestID: id, Reason: tt.reason}))
			tp.Poll()
			assert.Equal(t, 0, tp.PendingOutbound())

			res, done, err := rx.TryRecv()
			require.True(t, done)
			if tt.dropped {
				assert.ErrorIs(t, err, oneshot.ErrDropped)
				return
			}
			require.NoError(t, err)
			assert.ErrorIs(t, res.Err, tt.want)
		})
	}
}

// TestProtocol_SendAfterTransportClosed 测试传输侧停止后发送失败
func TestProtocol_SendAfterTransportClosed(t *testing.T) {
	tp := newTestProtocol(t, "/x/1", 1)
	tp.transport.Events.Close()

	tx, rx := oneshot.New[Result]()
	err := tp.SendRequest(context.Background(), "alice", nil, tx, types.ImmediateError)
	assert.ErrorIs(t, err, types.ErrNetwork)

	res, err := rx.Recv(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, types.ErrNetwork)
	assert.Equal(t, 0, tp.PendingOutbound())
}

// ============================================================================
//                              入站请求
// ============================================================================

// TestProtocol_InboundQueueFull 测试容量为 1 时第二个请求被拒绝
func TestProtocol_InboundQueueFull(t *testing.T) {
	tp := newTestProtocol(t, "/x/1", 1)

	first := tp.receive(t, "alice", "a")
	second := tp.receive(t, "alice", "b")
	tp.Poll()

	require.Len(t, tp.inbound, 1)
	req := <-tp.inbound
	assert.Equal(t, []byte("a"), req.Payload)
	assert.Equal(t, types.PeerID("alice"), req.Peer)

	cmd := tp.nextCommand(t).(RejectRequestCommand)
	assert.Equal(t, second, cmd.RequestID)
	assert.NotEqual(t, first, second)

	assert.Equal(t, 1, tp.PendingInbound())
	assert.Equal(t, uint64(1), tp.Stats().Delivered)
	assert.Equal(t, uint64(1), tp.Stats().QueueFull)

	t.Log("✅ 入站通道满时立即拒绝且不登记")
}

// TestProtocol_NoInboundQueue 测试未配置入站通道时一律拒绝
func TestProtocol_NoInboundQueue(t *testing.T) {
	w := queue.NewWaker()
	h, tr := NewHandle(Config{Name: "/out/1"}, 4, w)
	p := NewProtocol(h, &fakePeerStore{})

	id := tr.IDs.Next()
	require.NoError(t, tr.Events.Push(RequestReceived{Peer: "alice", RequestID: id}))
	p.Poll()

	cmd := (<-tr.Commands).(RejectRequestCommand)
	assert.Equal(t, id, cmd.RequestID)
	assert.Equal(t, 0, p.PendingInbound())
}

// TestProtocol_AnswerReputationBeforeResponse 测试信誉调整先于响应
func TestProtocol_AnswerReputationBeforeResponse(t *testing.T) {
	tp := newTestProtocol(t, "/x/1", 1)
	id := tp.receive(t, "alice", "req")
	tp.Poll()
	req := <-tp.inbound

	// 作答之前不应有任何信誉调整
	assert.Empty(t, tp.peers.reports)

	feedbackTx, feedbackRx := oneshot.New[struct{}]()
	ok := req.Respond(OutgoingResponse{
		Result:            []byte("resp"),
		ReputationChanges: []types.ReputationChange{types.NewReputationChange(10, "good"), types.NewReputationChange(-5, "slow")},
		SentFeedback:      feedbackTx,
	})
	require.True(t, ok)
	assert.Equal(t, poll.Ready, tp.Poll())

	require.Len(t, tp.peers.reports, 2)
	for _, r := range tp.peers.reports {
		assert.Equal(t, types.PeerID("alice"), r.peer)
		assert.Equal(t, 0, r.pendingCommands, "response must not be queued before reputation is applied")
	}

	cmd := tp.nextCommand(t).(SendResponseCommand)
	assert.Equal(t, id, cmd.RequestID)
	assert.Equal(t, []byte("resp"), cmd.Payload)
	assert.NotNil(t, cmd.Feedback)
	assert.Equal(t, 0, tp.PendingInbound())

	// 传输侧写出后通知
	cmd.Feedback.Send(struct{}{})
	_, err := feedbackRx.Recv(context.Background())
	assert.NoError(t, err)
}

// TestProtocol_AnswerDropped 测试应用放弃作答时拒绝请求
func TestProtocol_AnswerDropped(t *testing.T) {
	tp := newTestProtocol(t, "/x/1", 1)
	id := tp.receive(t, "alice", "req")
	tp.Poll()
	req := <-tp.inbound

	req.Drop()
	assert.False(t, req.Respond(OutgoingResponse{Result: []byte("late")}))
	tp.Poll()

	cmd := tp.nextCommand(t).(RejectRequestCommand)
	assert.Equal(t, id, cmd.RequestID)
	tp.noCommand(t)
	assert.Equal(t, 0, tp.PendingInbound())
}

// TestProtocol_AnswerError 测试错误答复：应用信誉调整后拒绝
func TestProtocol_AnswerError(t *testing.T) {
	tp := newTestProtocol(t, "/x/1", 1)
	id := tp.receive(t, "alice", "req")
	tp.Poll()
	req := <-tp.inbound

	req.Respond(OutgoingResponse{
		Err:               assert.AnError,
		ReputationChanges: []types.ReputationChange{types.NewFatalReputationChange("bad request")},
	})
	tp.Poll()

	require.Len(t, tp.peers.reports, 1)
	assert.True(t, tp.peers.reports[0].change.IsFatal())

	cmd := tp.nextCommand(t).(RejectRequestCommand)
	assert.Equal(t, id, cmd.RequestID)
}

// ============================================================================
//                              轮询
// ============================================================================

// TestProtocol_PollBudget 测试单次轮询的处理上限
func TestProtocol_PollBudget(t *testing.T) {
	tp := newTestProtocol(t, "/x/1", 1, WithPollBudget(2))

	for i := 0; i < 5; i++ {
		require.NoError(t, tp.transport.Events.Push(ResponseReceived{RequestID: types.RequestID(1000 + i)}))
	}
	// 清空投递产生的唤醒
	<-tp.waker.C()

	assert.Equal(t, poll.Ready, tp.Poll())
	assert.Equal(t, uint64(2), tp.Stats().Stale)

	select {
	case <-tp.waker.C():
	case <-time.After(time.Second):
		t.Fatal("driver should be woken when budget is hit")
	}

	tp.Poll()
	tp.Poll()
	assert.Equal(t, uint64(5), tp.Stats().Stale)
	assert.Equal(t, poll.Pending, tp.Poll())
}

// TestProtocol_Exhausted 测试传输事件队列关闭后报告耗尽
func TestProtocol_Exhausted(t *testing.T) {
	tp := newTestProtocol(t, "/x/1", 1)
	tp.receive(t, "alice", "req")
	tp.transport.Events.Close()

	// 已入队的事件先被处理，随后报告耗尽
	assert.Equal(t, poll.Exhausted, tp.Poll())
	assert.Len(t, tp.inbound, 1)
	assert.Equal(t, poll.Exhausted, tp.Poll())
}

// TestProtocol_Close 测试关闭放弃所有等待
func TestProtocol_Close(t *testing.T) {
	tp := newTestProtocol(t, "/x/1", 1)
	_, rx := tp.send(t, "alice", "req")
	tp.receive(t, "bob", "in")
	tp.Poll()
	req := <-tp.inbound

	tp.Close()

	_, err := rx.Recv(context.Background())
	assert.ErrorIs(t, err, oneshot.ErrDropped)
	assert.False(t, req.Respond(OutgoingResponse{Result: []byte("x")}))
	assert.Equal(t, 0, tp.PendingOutbound())
	assert.Equal(t, 0, tp.PendingInbound())
}
