package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dep2p/go-chainnet/internal/util/logger"
)

var log = logger.Logger("metrics")

// Server /metrics HTTP 服务
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen 监听地址并开始服务
func (m *Metrics) Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("指标服务退出", "error", err)
		}
	}()

	log.Info("指标服务已启动", "addr", ln.Addr().String())
	return s, nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close 关闭服务
func (s *Server) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
