package tcp

import (
	"context"
	"net"
	"sync"

	"github.com/hashicorp/yamux"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/pkg/types"
)

// acceptBacklog 等待 Accept 的入站通道数
const acceptBacklog = 64

// Listener TCP 监听器
type Listener struct {
	t    *Transport
	ml   manet.Listener
	addr types.Address

	incoming chan transport.Channel

	mu       sync.Mutex
	sessions map[*yamux.Session]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

var _ transport.Listener = (*Listener)(nil)

func newListener(t *Transport, ml manet.Listener, addr types.Address) *Listener {
	return &Listener{
		t:        t,
		ml:       ml,
		addr:     addr,
		incoming: make(chan transport.Channel, acceptBacklog),
		sessions: make(map[*yamux.Session]struct{}),
		done:     make(chan struct{}),
	}
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ml.Accept()
		if err != nil {
			if !isClosedErr(err) {
				log.Warn("接受连接失败", "addr", l.addr, "err", err)
			}
			l.Close()
			return
		}
		remote := conn.RemoteMultiaddr().String()
		if tc, ok := manet.NetConn(conn).(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}

		if !l.t.cfg.Mux {
			l.deliver(transport.NewStreamChannel(conn, remote, l.t.cfg.MaxFrameSize))
			continue
		}

		sess, err := yamux.Server(conn, yamuxConfig())
		if err != nil {
			log.Warn("yamux 服务端初始化失败", "remote", remote, "err", err)
			conn.Close()
			continue
		}
		l.mu.Lock()
		l.sessions[sess] = struct{}{}
		l.mu.Unlock()
		go l.acceptStreams(sess, remote)
	}
}

func (l *Listener) acceptStreams(sess *yamux.Session, remote string) {
	defer func() {
		l.mu.Lock()
		delete(l.sessions, sess)
		l.mu.Unlock()
		sess.Close()
	}()
	for {
		stream, err := sess.AcceptStream()
		if err != nil {
			if !isClosedErr(err) {
				log.Debug("yamux 会话结束", "remote", remote, "err", err)
			}
			return
		}
		if !l.deliver(transport.NewStreamChannel(stream, remote, l.t.cfg.MaxFrameSize)) {
			return
		}
	}
}

// deliver 把入站通道交给 Accept；监听器已关闭时关闭通道并返回 false
func (l *Listener) deliver(ch transport.Channel) bool {
	select {
	case l.incoming <- ch:
		return true
	case <-l.done:
		ch.Close()
		return false
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

// Close 停止监听并关闭所有服务端 yamux 会话
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.ml.Close()
		l.mu.Lock()
		for s := range l.sessions {
			s.Close()
		}
		l.mu.Unlock()
		l.t.removeListener(l)
	})
	return err
}
