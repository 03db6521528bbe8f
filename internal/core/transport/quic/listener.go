package quic

import (
	"context"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/pkg/types"
)

// Listener QUIC 监听器
type Listener struct {
	t    *Transport
	udp  *net.UDPConn
	tr   *quic.Transport
	ql   *quic.Listener
	addr types.Address

	incoming chan transport.Channel

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

var _ transport.Listener = (*Listener)(nil)

func newListener(t *Transport, udp *net.UDPConn, tr *quic.Transport, ql *quic.Listener, addr types.Address) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		t:        t,
		udp:      udp,
		tr:       tr,
		ql:       ql,
		addr:     addr,
		incoming: make(chan transport.Channel, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ql.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil && !isClosedErr(err) {
				log.Warn("接受 QUIC 连接失败", "addr", l.addr, "err", err)
			}
			l.Close()
			return
		}
		go l.acceptStream(conn)
	}
}

// acceptStream 等待对端在新连接上打开第一个流
func (l *Listener) acceptStream(conn quic.Connection) {
	ctx, cancel := context.WithTimeout(l.ctx, l.t.cfg.HandshakeTimeout)
	defer cancel()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		log.Debug("等待 QUIC 流失败", "remote", conn.RemoteAddr(), "err", err)
		_ = conn.CloseWithError(0, "no stream")
		return
	}
	if id, ok := PeerIdentityID(conn.ConnectionState().TLS); ok {
		log.Debug("QUIC 入站连接", "remote", conn.RemoteAddr(), "claimed", id.ShortString())
	}

	ch := transport.NewStreamChannel(&streamConn{Stream: stream, conn: conn}, conn.RemoteAddr().String(), l.t.cfg.MaxFrameSize)
	select {
	case l.incoming <- ch:
	case <-l.ctx.Done():
		ch.Close()
	}
}

// Accept 等待入站通道
func (l *Listener) Accept(ctx context.Context) (transport.Channel, error) {
	select {
	case ch := <-l.incoming:
		return ch, nil
	case <-l.ctx.Done():
		return nil, transport.ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr 返回实际监听地址
func (l *Listener) Addr() types.Address { return l.addr }

// Close 停止监听并释放 UDP socket
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.closeErr = multierr.Combine(l.ql.Close(), l.tr.Close(), l.udp.Close())
		l.t.removeListener(l)
	})
	return l.closeErr
}
