package libp2p

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/protocol"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-chainnet/internal/protocol/reqresp"
	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/pkg/types"
)

// requestResponse 单个请求-响应协议的流适配
//
// 每个请求一条流：请求方写一帧后半关闭，响应方写一帧后关闭；拒绝即重置流。
type requestResponse struct {
	host host.Host
	tr   *reqresp.Transport
	cfg  reqresp.Config
	ids  []protocol.ID

	mu      sync.Mutex
	inbound map[types.RequestID]network.Stream
}

func newRequestResponse(h host.Host, tr *reqresp.Transport) *requestResponse {
	names := tr.Config.Names()
	ids := make([]protocol.ID, 0, len(names))
	for _, n := range names {
		ids = append(ids, protocol.ID(n))
	}
	r := &requestResponse{
		host:    h,
		tr:      tr,
		cfg:     tr.Config,
		ids:     ids,
		inbound: make(map[types.RequestID]network.Stream),
	}
	for _, id := range ids {
		h.SetStreamHandler(id, r.handleStream)
	}
	return r
}

// run 执行引擎命令，停止时注销流处理并关闭事件队列
func (r *requestResponse) run(ctx context.Context) error {
	var g errgroup.Group
	defer func() {
		for _, id := range r.ids {
			r.host.RemoveStreamHandler(id)
		}
		_ = g.Wait()
		r.tr.Events.Close()
		r.resetInbound()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-r.tr.Commands:
			if !ok {
				return nil
			}
			switch c := cmd.(type) {
			case reqresp.SendRequestCommand:
				g.Go(func() error {
					r.request(ctx, c)
					return nil
				})
			case reqresp.SendResponseCommand:
				if s := r.takeInbound(c.RequestID); s != nil {
					g.Go(func() error {
						r.respond(s, c)
						return nil
					})
				}
			case reqresp.RejectRequestCommand:
				if s := r.takeInbound(c.RequestID); s != nil {
					_ = s.Reset()
				}
			}
		}
	}
}

// ============================================================================
//                              入站
// ============================================================================

func (r *requestResponse) handleStream(s network.Stream) {
	p := s.Conn().RemotePeer()
	_ = s.SetReadDeadline(time.Now().Add(r.cfg.RequestTimeout))

	payload, err := readFrame(s, r.cfg.MaxRequestSize)
	if err != nil {
		log.Debug("读取请求失败", "protocol", r.cfg.Name, "peer", logger.ShortPeer(p), "error", err)
		_ = s.Reset()
		return
	}
	_ = s.SetReadDeadline(time.Time{})

	id := r.tr.IDs.Next()
	r.mu.Lock()
	r.inbound[id] = s
	r.mu.Unlock()

	ev := reqresp.RequestReceived{Peer: p, RequestID: id, Payload: payload, Fallback: r.fallback(s.Protocol())}
	if err := r.tr.Events.Push(ev); err != nil {
		r.takeInbound(id)
		_ = s.Reset()
	}
}

func (r *requestResponse) respond(s network.Stream, c reqresp.SendResponseCommand) {
	_ = s.SetWriteDeadline(time.Now().Add(r.cfg.RequestTimeout))
	if err := writeFrame(s, c.Payload, r.cfg.MaxResponseSize); err != nil {
		log.Debug("发送响应失败", "protocol", r.cfg.Name, "request", c.RequestID, "error", err)
		_ = s.Reset()
		c.Feedback.Drop()
		return
	}
	_ = s.Close()
	c.Feedback.Send(struct{}{})
}

func (r *requestResponse) takeInbound(id types.RequestID) network.Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.inbound[id]
	if !ok {
		return nil
	}
	delete(r.inbound, id)
	return s
}

func (r *requestResponse) resetInbound() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.inbound {
		_ = s.Reset()
		delete(r.inbound, id)
	}
}

// ============================================================================
//                              出站
// ============================================================================

func (r *requestResponse) request(parent context.Context, c reqresp.SendRequestCommand) {
	fail := func(reason reqresp.FailureReason) {
		_ = r.tr.Events.Push(reqresp.RequestFailed{Peer: c.Peer, RequestID: c.RequestID, Reason: reason})
	}

	if uint64(len(c.Payload)) > r.cfg.MaxRequestSize {
		fail(reqresp.FailureTooLargePayload)
		return
	}

	ctx, cancel := context.WithTimeout(parent, r.cfg.RequestTimeout)
	defer cancel()
	if !c.Connect.ShouldConnect() {
		if r.host.Network().Connectedness(c.Peer) != network.Connected {
			fail(reqresp.FailureNotConnected)
			return
		}
		ctx = network.WithNoDial(ctx, "request-response")
	}

	s, err := r.host.NewStream(ctx, c.Peer, r.ids...)
	if err != nil {
		fail(classifyStreamError(parent, ctx, err, reqresp.FailureNotConnected))
		return
	}
	defer s.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(dl)
	}

	if err := writeFrame(s, c.Payload, r.cfg.MaxRequestSize); err != nil {
		_ = s.Reset()
		fail(classifyStreamError(parent, ctx, err, reqresp.FailureRejected))
		return
	}
	if err := s.CloseWrite(); err != nil {
		_ = s.Reset()
		fail(classifyStreamError(parent, ctx, err, reqresp.FailureRejected))
		return
	}

	payload, err := readFrame(s, r.cfg.MaxResponseSize)
	if err != nil {
		_ = s.Reset()
		fail(classifyStreamError(parent, ctx, err, reqresp.FailureRejected))
		return
	}

	_ = r.tr.Events.Push(reqresp.ResponseReceived{
		Peer:      c.Peer,
		RequestID: c.RequestID,
		Payload:   payload,
		Fallback:  r.fallback(s.Protocol()),
	})
}

func (r *requestResponse) fallback(id protocol.ID) types.ProtocolName {
	if types.ProtocolName(id) == r.cfg.Name {
		return ""
	}
	return types.ProtocolName(id)
}

// classifyStreamError 把流错误映射为失败原因
func classifyStreamError(parent, ctx context.Context, err error, otherwise reqresp.FailureReason) reqresp.FailureReason {
	switch {
	case parent.Err() != nil:
		return reqresp.FailureCanceled
	case errors.Is(err, ErrFrameTooLarge):
		return reqresp.FailureTooLargePayload
	case ctx.Err() != nil, errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return reqresp.FailureTimeout
	default:
		return otherwise
	}
}

