package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dep2p/go-home/internal/util/logger"
)

var log = logger.Logger("metrics")

// Server 指标 HTTP 服务
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen 在 addr 上监听并在 path 暴露指标
func (m *Metrics) Listen(addr, path string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("指标服务退出", "err", err)
		}
	}()
	log.Info("指标服务已启动", "addr", ln.Addr().String(), "path", path)
	return s, nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown 关闭服务
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
