package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/pkg/types"
)

// Listener WebSocket 监听器，同时是升级请求的 http.Handler
type Listener struct {
	t        *Transport
	addr     types.Address
	server   *http.Server
	upgrader websocket.Upgrader

	incoming chan transport.Channel

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

var _ transport.Listener = (*Listener)(nil)

func newListener(t *Transport, addr types.Address) *Listener {
	return &Listener{
		t:    t,
		addr: addr,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: t.cfg.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			// 非浏览器客户端，不校验 Origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		incoming: make(chan transport.Channel, 64),
		done:     make(chan struct{}),
	}
}

// ServeHTTP 升级连接并交给 Accept
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("WebSocket 升级失败", "remote", r.RemoteAddr, "err", err)
		return
	}
	ch := newChannel(conn, r.RemoteAddr, l.t.cfg.MaxFrameSize)
	select {
	case l.incoming <- ch:
	case <-l.done:
		ch.Close()
	}
}

// Accept 等待入站通道
func (l *Listener) Accept(ctx context.Context) (transport.Channel, error) {
	select {
	case ch := <-l.incoming:
		return ch, nil
	case <-l.done:
		return nil, transport.ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr 返回实际监听地址
func (l *Listener) Addr() types.Address { return l.addr }

// Close 关闭 HTTP 服务
//
// 已升级的连接不受影响，由各自的通道关闭。
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.closeErr = l.server.Close()
		l.t.removeListener(l)
	})
	return l.closeErr
}
