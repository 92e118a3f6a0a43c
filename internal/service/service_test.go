package service

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-chainnet/internal/discovery"
	"github.com/dep2p/go-chainnet/internal/peerstore"
	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/util/oneshot"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

const testProtocol types.ProtocolName = "/x/1"

type fakeTransport struct {
	mu           sync.Mutex
	addrs        map[types.PeerID][]types.Multiaddr
	disconnected []types.PeerID
	protected    map[types.PeerID]string
	in, out      uint64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		addrs:     make(map[types.PeerID][]types.Multiaddr),
		protected: make(map[types.PeerID]string),
	}
}

func (f *fakeTransport) AddKnownAddress(p types.PeerID, addrs []types.Multiaddr) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrs[p] = append(f.addrs[p], addrs...)
	return len(addrs)
}

func (f *fakeTransport) Disconnect(p types.PeerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, p)
}

func (f *fakeTransport) ConnectedPeers() []types.PeerID { return nil }

func (f *fakeTransport) Protect(p types.PeerID, tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.protected[p] = tag
}

func (f *fakeTransport) Unprotect(p types.PeerID, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.protected, p)
}

func (f *fakeTransport) BandwidthTotals() (uint64, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.in, f.out
}

func (f *fakeTransport) isDisconnected(p types.PeerID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.disconnected {
		if id == p {
			return true
		}
	}
	return false
}

type harness struct {
	svc       Service
	backend   *Backend
	transport *fakeTransport
	peers     *peerstore.Store
	protocols *discovery.Protocols
	reqresp   *reqresp.Transport
	inbound   chan reqresp.IncomingRequest
}

func newHarness(t *testing.T, mutate func(*Config, *discovery.Config)) *harness {
	t.Helper()

	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)

	cfg := Config{DefaultProtocol: testProtocol, EventBuffer: 16}
	dcfg := discovery.DefaultConfig()
	if mutate != nil {
		mutate(&cfg, &dcfg)
	}

	store, err := peerstore.New(peerstore.DefaultConfig())
	require.NoError(t, err)

	fatal := func(err error) { t.Errorf("unexpected fatal: %v", err) }
	d, protocols := discovery.New(dcfg, []byte{0xab, 0xcd}, "rococo", "dot", nil, store,
		discovery.WithClock(clock.NewMock()),
		discovery.WithFatalHandler(fatal))

	inbound := make(chan reqresp.IncomingRequest, 4)
	rcfg := reqresp.Config{
		Name:            testProtocol,
		MaxRequestSize:  reqresp.DefaultMaxRequestSize,
		MaxResponseSize: reqresp.DefaultMaxResponseSize,
		RequestTimeout:  reqresp.DefaultRequestTimeout,
		InboundQueue:    inbound,
	}
	h, tr := reqresp.NewHandle(rcfg, 16, d.Waker())
	set := reqresp.NewProtocolSet(reqresp.WithFatalHandler(fatal))
	require.NoError(t, set.Register(reqresp.NewProtocol(h, store)))

	transport := newFakeTransport()
	svc, b, err := New(cfg, Params{
		LocalKey:  key,
		Discovery: d,
		Protocols: set,
		Transport: transport,
		PeerStore: store,
	})
	require.NoError(t, err)

	return &harness{
		svc:       svc,
		backend:   b,
		transport: transport,
		peers:     store,
		protocols: protocols,
		reqresp:   tr,
		inbound:   inbound,
	}
}

func (h *harness) step(t *testing.T) {
	t.Helper()
	require.NoError(t, h.backend.step(context.Background()))
}

// run 在后台运行后端，返回停止函数
func (h *harness) run(t *testing.T) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.backend.Run(ctx) }()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("backend did not stop")
		}
	}
	t.Cleanup(func() { cancel() })
	return stop
}

func newPeer(t *testing.T) types.PeerID {
	t.Helper()
	_, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	id, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func p2pAddrOf(t *testing.T, p types.PeerID) types.Multiaddr {
	t.Helper()
	addr, err := ma.NewMultiaddr("/ip4/10.0.0.1/tcp/30333/p2p/" + p.String())
	require.NoError(t, err)
	return addr
}

func nextEvent(t *testing.T, sub *Subscription) types.Event {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected an event")
		return nil
	}
}

func noEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event %T", ev)
	default:
	}
}

func nextKademliaCommand(t *testing.T, h *harness) discovery.KademliaCommand {
	t.Helper()
	select {
	case cmd := <-h.protocols.Kademlia.Commands:
		return cmd
	default:
		t.Fatal("expected a kademlia command")
		return nil
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

// TestService_CommandsAfterShutdown 测试后端停止后门面不会挂起
func TestService_CommandsAfterShutdown(t *testing.T) {
	h := newHarness(t, nil)
	stop := h.run(t)
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := h.svc.Status(ctx)
	assert.ErrorIs(t, err, ErrServiceClosed)

	_, err = h.svc.ReservedPeers(ctx)
	assert.ErrorIs(t, err, ErrServiceClosed)

	_, err = h.svc.Request(ctx, newPeer(t), testProtocol, []byte("x"), types.TryConnect)
	assert.ErrorIs(t, err, ErrServiceClosed)

	tx, rx := oneshot.New[reqresp.Result]()
	h.svc.StartRequest(newPeer(t), testProtocol, nil, tx, types.TryConnect)
	_, err = rx.Recv(ctx)
	assert.ErrorIs(t, err, oneshot.ErrDropped)

	sub := h.svc.EventStream("late")
	_, ok := <-sub.C()
	assert.False(t, ok)

	// 无应答命令静默失败
	h.svc.GetValue([]byte("k"))
	h.svc.ReportPeer(newPeer(t), types.NewReputationChange(-1, "x"))
}

// TestService_PendingRepliesAbandoned 测试停止时队列中的应答被释放
func TestService_PendingRepliesAbandoned(t *testing.T) {
	h := newHarness(t, nil)

	tx, rx := oneshot.New[types.NetworkStatus]()
	require.True(t, h.svc.submit(Status{Reply: tx}))
	sub := h.svc.EventStream("pending")

	h.backend.shutdown()

	_, err := rx.Recv(context.Background())
	assert.ErrorIs(t, err, oneshot.ErrDropped)
	_, ok := <-sub.C()
	assert.False(t, ok)
}

// TestService_Status 测试状态查询
func TestService_Status(t *testing.T) {
	h := newHarness(t, nil)
	h.transport.in, h.transport.out = 10, 20
	stop := h.run(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	st, err := h.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.NumConnectedPeers)
	assert.Equal(t, uint64(10), st.TotalBytesInbound)
	assert.Equal(t, uint64(20), st.TotalBytesOutbound)
	assert.Empty(t, st.ExternalAddresses)
}

// TestBackend_DiscoveryExhausted 测试 ping 事件源终止时后端停止
func TestBackend_DiscoveryExhausted(t *testing.T) {
	h := newHarness(t, nil)
	h.protocols.Ping.Events.Close()

	err := h.backend.Run(context.Background())
	assert.ErrorIs(t, err, ErrDiscoveryExhausted)

	_, err = h.svc.Status(context.Background())
	assert.ErrorIs(t, err, ErrServiceClosed)
}

// TestBackend_ProtocolsExhausted 测试请求-响应事件源终止时后端停止
func TestBackend_ProtocolsExhausted(t *testing.T) {
	h := newHarness(t, nil)
	h.reqresp.Events.Close()

	err := h.backend.Run(context.Background())
	assert.ErrorIs(t, err, ErrProtocolsExhausted)
}

// TestNew_InvalidConfig 测试配置校验
func TestNew_InvalidConfig(t *testing.T) {
	_, _, err := New(Config{}, Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, _, err = New(Config{DefaultProtocol: testProtocol}, Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	addr, err := ma.NewMultiaddr("/ip4/1.2.3.4/tcp/1")
	require.NoError(t, err)
	_, _, err = New(Config{DefaultProtocol: testProtocol, ReservedPeers: []types.Multiaddr{addr}}, Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ============================================================================
//                              DHT
// ============================================================================

// TestBackend_DhtEvents 测试查询结果转换为事件流上的 DHT 事件
func TestBackend_DhtEvents(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.svc.EventStream("dht")

	h.svc.GetValue([]byte("k1"))
	h.svc.PutValue([]byte("k2"), []byte("v2"))
	h.svc.GetValue([]byte("k3"))
	h.step(t)

	get1 := nextKademliaCommand(t, h).(discovery.GetRecordCommand)
	put := nextKademliaCommand(t, h).(discovery.PutRecordCommand)
	get3 := nextKademliaCommand(t, h).(discovery.GetRecordCommand)
	assert.Equal(t, []byte("k1"), get1.Key)
	assert.Equal(t, []byte("v2"), put.Record.Value)

	events := h.protocols.Kademlia.Events
	rec := types.Record{Key: []byte("k1"), Value: []byte("v1")}
	require.NoError(t, events.Push(discovery.GetRecordSuccess{QueryID: get1.QueryID, Record: rec}))
	require.NoError(t, events.Push(discovery.QueryFailed{QueryID: put.QueryID}))
	require.NoError(t, events.Push(discovery.QueryFailed{QueryID: get3.QueryID}))
	require.NoError(t, events.Push(discovery.QueryFailed{QueryID: 999}))
	h.step(t)

	assert.Equal(t, types.DhtValueFound{Key: []byte("k1"), Record: rec}, nextEvent(t, sub))
	assert.Equal(t, types.DhtValuePutFailed{Key: []byte("k2")}, nextEvent(t, sub))
	assert.Equal(t, types.DhtValueNotFound{Key: []byte("k3")}, nextEvent(t, sub))
	noEvent(t, sub)

	assert.Empty(t, h.backend.pendingGet)
	assert.Empty(t, h.backend.pendingPut)
}

// TestBackend_DhtPutSuccess 测试 PUT 成功
func TestBackend_DhtPutSuccess(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.svc.EventStream("dht")

	h.svc.PutValue([]byte("k"), []byte("v"))
	h.step(t)
	put := nextKademliaCommand(t, h).(discovery.PutRecordCommand)

	require.NoError(t, h.protocols.Kademlia.Events.Push(discovery.PutRecordSuccess{QueryID: put.QueryID, Key: []byte("k")}))
	h.step(t)

	assert.Equal(t, types.DhtValuePut{Key: []byte("k")}, nextEvent(t, sub))
}

// ============================================================================
//                              发现事件
// ============================================================================

// TestBackend_ExternalAddress 测试确认的外部地址出现在状态中
func TestBackend_ExternalAddress(t *testing.T) {
	h := newHarness(t, nil)
	observed, err := ma.NewMultiaddr("/ip4/203.0.113.7/tcp/30333")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.protocols.Identify.Events.Push(discovery.IdentifiedEvent{
			Peer:            newPeer(t),
			ObservedAddress: observed,
		}))
	}
	h.step(t)
	h.step(t)

	st := h.backend.status()
	require.Len(t, st.ExternalAddresses, 1)
	assert.True(t, st.ExternalAddresses[0].Equal(observed))
}

// TestBackend_PingAndMDNS 测试 ping 记录延迟、mDNS 地址登记到传输层
func TestBackend_PingAndMDNS(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *discovery.Config) { d.EnableMDNS = true })
	p := newPeer(t)

	require.NoError(t, h.protocols.Ping.Events.Push(discovery.PingEvent{Peer: p, RTT: 40 * time.Millisecond}))
	require.NoError(t, h.protocols.MDNS.Events.Push(discovery.DiscoveredEvent{
		Addresses: []types.Multiaddr{p2pAddrOf(t, p)},
	}))
	h.step(t)

	rtt, ok := h.peers.Latency(p)
	require.True(t, ok)
	assert.Equal(t, 40*time.Millisecond, rtt)

	h.transport.mu.Lock()
	assert.Len(t, h.transport.addrs[p], 1)
	h.transport.mu.Unlock()

	cmd := nextKademliaCommand(t, h).(discovery.AddKnownPeerCommand)
	assert.Equal(t, p, cmd.Peer)
}

// ============================================================================
//                              保留节点与连接
// ============================================================================

// TestBackend_ReservedPeers 测试保留集增删、保护与查询
func TestBackend_ReservedPeers(t *testing.T) {
	h := newHarness(t, nil)
	a, b := newPeer(t), newPeer(t)

	require.NoError(t, h.svc.AddPeersToReservedSet(testProtocol, []types.Multiaddr{p2pAddrOf(t, a), p2pAddrOf(t, b)}))
	h.step(t)

	tx, rx := oneshot.New[[]types.PeerID]()
	require.True(t, h.svc.submit(ReservedPeers{Protocol: testProtocol, Reply: tx}))
	h.step(t)
	got, done, err := rx.TryRecv()
	require.True(t, done)
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.PeerID{a, b}, got)

	h.transport.mu.Lock()
	assert.Equal(t, "reserved//x/1", h.transport.protected[a])
	h.transport.mu.Unlock()

	h.svc.RemoveReservedPeer(a)
	h.step(t)
	h.transport.mu.Lock()
	_, protected := h.transport.protected[a]
	h.transport.mu.Unlock()
	assert.False(t, protected)

	// 地址必须带 /p2p
	bare, err := ma.NewMultiaddr("/ip4/1.2.3.4/tcp/1")
	require.NoError(t, err)
	assert.ErrorIs(t, h.svc.SetReservedPeers(testProtocol, []types.Multiaddr{bare}), types.ErrMissingPeerID)
	assert.ErrorIs(t, h.svc.AddReservedPeer(bare), types.ErrMissingPeerID)
}

// TestBackend_ReservedOnly 测试保留模式断开并拒绝非保留节点
func TestBackend_ReservedOnly(t *testing.T) {
	h := newHarness(t, nil)
	reserved, other := newPeer(t), newPeer(t)

	conns := h.backend.Connections()
	require.NoError(t, conns.Push(types.ConnectionEvent{Peer: reserved, Connected: true}))
	require.NoError(t, conns.Push(types.ConnectionEvent{Peer: other, Connected: true}))
	h.step(t)
	assert.Equal(t, 2, h.svc.NumConnectedPeers())

	h.svc.SetAuthorizedPeers([]types.PeerID{reserved})
	h.svc.DenyUnreservedPeers()
	h.step(t)

	assert.True(t, h.transport.isDisconnected(other))
	assert.False(t, h.transport.isDisconnected(reserved))

	adm := h.backend.Admission()
	assert.True(t, adm.Allow(reserved))
	assert.False(t, adm.Allow(other))

	h.svc.AcceptUnreservedPeers()
	h.step(t)
	assert.True(t, adm.Allow(other))
}

// TestBackend_Connections 测试连接计数、角色记录与事件
func TestBackend_Connections(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.svc.EventStream("conn")
	p := newPeer(t)

	conns := h.backend.Connections()
	require.NoError(t, conns.Push(types.ConnectionEvent{Peer: p, Connected: true, Handshake: types.RoleAuthority.Encode()}))
	require.NoError(t, conns.Push(types.ConnectionEvent{Peer: p, Connected: true}))
	h.step(t)

	assert.Equal(t, 1, h.svc.NumConnectedPeers())
	assert.Equal(t, types.PeerConnected{Peer: p, Role: types.ObservedAuthority}, nextEvent(t, sub))
	noEvent(t, sub)

	role, ok := h.svc.PeerRole(p, nil)
	require.True(t, ok)
	assert.Equal(t, types.ObservedAuthority, role)

	role, ok = h.svc.PeerRole(p, types.RoleLight.Encode())
	require.True(t, ok)
	assert.Equal(t, types.ObservedLight, role)

	require.NoError(t, conns.Push(types.ConnectionEvent{Peer: p}))
	require.NoError(t, conns.Push(types.ConnectionEvent{Peer: p}))
	h.step(t)
	assert.Equal(t, 0, h.svc.NumConnectedPeers())
	assert.Equal(t, types.PeerDisconnected{Peer: p}, nextEvent(t, sub))
	noEvent(t, sub)
}

// TestBackend_BannedPeerRejected 测试已封禁节点的连接被断开
func TestBackend_BannedPeerRejected(t *testing.T) {
	h := newHarness(t, nil)
	p := newPeer(t)

	h.svc.ReportPeer(p, types.NewFatalReputationChange("misbehaviour"))
	h.step(t)
	require.True(t, h.peers.IsBanned(p))

	require.NoError(t, h.backend.Connections().Push(types.ConnectionEvent{Peer: p, Connected: true}))
	h.step(t)

	assert.Equal(t, 0, h.svc.NumConnectedPeers())
	assert.True(t, h.transport.isDisconnected(p))
}

// ============================================================================
//                              事件流
// ============================================================================

// TestBackend_EventStreamOverflow 测试缓冲满时丢弃事件
func TestBackend_EventStreamOverflow(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *discovery.Config) { c.EventBuffer = 1 })
	sub := h.svc.EventStream("small")
	h.step(t)

	h.backend.broadcast(types.DhtValuePut{Key: []byte("a")})
	h.backend.broadcast(types.DhtValuePut{Key: []byte("b")})

	assert.Equal(t, uint64(1), sub.Dropped())
	assert.Equal(t, types.DhtValuePut{Key: []byte("a")}, nextEvent(t, sub))
	noEvent(t, sub)
}

// TestBackend_EventStreamPruned 测试取消的订阅被移除并关闭
func TestBackend_EventStreamPruned(t *testing.T) {
	h := newHarness(t, nil)
	keep := h.svc.EventStream("keep")
	gone := h.svc.EventStream("gone")
	h.step(t)
	require.Len(t, h.backend.subscribers, 2)

	gone.Close()
	h.backend.broadcast(types.DhtValuePut{Key: []byte("a")})

	require.Len(t, h.backend.subscribers, 1)
	_, ok := <-gone.C()
	assert.False(t, ok)
	assert.NotEmpty(t, keep.ID())
	assert.Equal(t, types.DhtValuePut{Key: []byte("a")}, nextEvent(t, keep))
}

// ============================================================================
//                              请求-响应
// ============================================================================

// TestService_StartRequestUnknownProtocol 测试未注册协议立即失败
func TestService_StartRequestUnknownProtocol(t *testing.T) {
	h := newHarness(t, nil)

	tx, rx := oneshot.New[reqresp.Result]()
	h.svc.StartRequest(newPeer(t), "/nope/1", []byte("x"), tx, types.TryConnect)
	h.step(t)

	res, done, err := rx.TryRecv()
	require.True(t, done)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, types.ErrUnknownProtocol)

	select {
	case cmd := <-h.reqresp.Commands:
		t.Fatalf("unexpected command %T", cmd)
	default:
	}
}

// TestService_Request 测试同步请求包装
func TestService_Request(t *testing.T) {
	h := newHarness(t, nil)
	stop := h.run(t)
	defer stop()

	p := newPeer(t)
	go func() {
		cmd := (<-h.reqresp.Commands).(reqresp.SendRequestCommand)
		_ = h.reqresp.Events.Push(reqresp.ResponseReceived{
			Peer:      cmd.Peer,
			RequestID: cmd.RequestID,
			Payload:   append([]byte("re:"), cmd.Payload...),
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := h.svc.Request(ctx, p, testProtocol, []byte("hello"), types.ImmediateError)
	require.NoError(t, err)
	assert.Equal(t, []byte("re:hello"), resp.Payload)
	assert.Equal(t, testProtocol, resp.Protocol)
}

// TestService_RequestFailure 测试请求失败原因透传
func TestService_RequestFailure(t *testing.T) {
	h := newHarness(t, nil)
	stop := h.run(t)
	defer stop()

	go func() {
		cmd := (<-h.reqresp.Commands).(reqresp.SendRequestCommand)
		_ = h.reqresp.Events.Push(reqresp.RequestFailed{
			Peer:      cmd.Peer,
			RequestID: cmd.RequestID,
			Reason:    reqresp.FailureNotConnected,
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := h.svc.Request(ctx, newPeer(t), testProtocol, []byte("x"), types.ImmediateError)
	assert.ErrorIs(t, err, types.ErrNotConnected)
}

// ============================================================================
//                              签名
// ============================================================================

// TestService_SignVerify 测试本地身份签名与验证
func TestService_SignVerify(t *testing.T) {
	h := newHarness(t, nil)
	msg := []byte("block announce")

	sig, err := h.svc.SignWithLocalIdentity(msg)
	require.NoError(t, err)

	ok, err := h.svc.Verify(h.svc.LocalPeerID(), sig.PublicKey, sig.Bytes, msg)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.svc.Verify(h.svc.LocalPeerID(), sig.PublicKey, sig.Bytes, []byte("tampered"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.svc.Verify(newPeer(t), sig.PublicKey, sig.Bytes, msg)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.svc.Verify(h.svc.LocalPeerID(), []byte{1, 2, 3}, sig.Bytes, msg)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	t.Log("✅ 签名验证通过")
}
