package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("transport.quic")

// Config QUIC 传输配置
type Config struct {
	// MaxIdleTimeout 连接空闲超时
	MaxIdleTimeout time.Duration

	// KeepAlivePeriod QUIC 层保活间隔
	KeepAlivePeriod time.Duration

	// HandshakeTimeout QUIC 握手超时
	HandshakeTimeout time.Duration

	// MaxFrameSize 最大消息长度
	MaxFrameSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxIdleTimeout:   30 * time.Second,
		KeepAlivePeriod:  10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxFrameSize:     transport.DefaultMaxFrameSize,
	}
}

// Transport QUIC 传输
type Transport struct {
	cfg     Config
	tlsConf *tls.Config
	qconf   *quic.Config

	mu        sync.Mutex
	dialer    *quic.Transport // 拨号共用的 UDP socket，首次拨号时创建
	dialConn  *net.UDPConn
	listeners map[*Listener]struct{}
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 QUIC 传输
//
// key 用于生成 TLS 证书，可为 nil。
func New(cfg Config, key crypto.PrivateKey) (*Transport, error) {
	tlsConf, err := NewTLSConfig(key)
	if err != nil {
		return nil, err
	}
	return &Transport{
		cfg:     cfg,
		tlsConf: tlsConf,
		qconf: &quic.Config{
			MaxIdleTimeout:        cfg.MaxIdleTimeout,
			KeepAlivePeriod:       cfg.KeepAlivePeriod,
			HandshakeIdleTimeout:  cfg.HandshakeTimeout,
			MaxIncomingStreams:    16,
			MaxIncomingUniStreams: -1,
		},
		listeners: make(map[*Listener]struct{}),
	}, nil
}

// Name 返回传输名称
func (t *Transport) Name() string { return types.TransportQUIC }

// CanDial 只处理 quic-v1 地址
func (t *Transport) CanDial(addr types.Address) bool {
	return addr.Transport() == types.TransportQUIC
}

// Dial 建立 QUIC 连接并打开一个流
func (t *Transport) Dial(ctx context.Context, addr types.Address) (transport.Channel, error) {
	if !t.CanDial(addr) {
		return nil, fmt.Errorf("%w: %s", transport.ErrNoTransport, addr)
	}
	tr, err := t.dialTransport()
	if err != nil {
		return nil, err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr.Host(), strconv.Itoa(addr.Port())))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := tr.Dial(ctx, udpAddr, t.tlsConf, t.qconf)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return transport.NewStreamChannel(&streamConn{Stream: stream, conn: conn}, addr.String(), t.cfg.MaxFrameSize), nil
}

func (t *Transport) dialTransport() (*quic.Transport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrTransportClosed
	}
	if t.dialer == nil {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
		if err != nil {
			return nil, fmt.Errorf("listen udp for dial: %w", err)
		}
		t.dialConn = conn
		t.dialer = &quic.Transport{Conn: conn}
	}
	return t.dialer, nil
}

// Listen 在 addr 上监听
func (t *Transport) Listen(addr types.Address) (transport.Listener, error) {
	if !t.CanDial(addr) {
		return nil, fmt.Errorf("%w: %s", transport.ErrNoTransport, addr)
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.ErrTransportClosed
	}
	t.mu.Unlock()

	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr.Host(), strconv.Itoa(addr.Port())))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	tr := &quic.Transport{Conn: conn}
	ql, err := tr.Listen(t.tlsConf, t.qconf)
	if err != nil {
		_ = multierr.Combine(tr.Close(), conn.Close())
		return nil, fmt.Errorf("listen quic: %w", err)
	}

	bound, err := boundAddress(conn.LocalAddr())
	if err != nil {
		_ = multierr.Combine(ql.Close(), tr.Close(), conn.Close())
		return nil, err
	}

	l := newListener(t, conn, tr, ql, bound)
	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()
	go l.acceptLoop()
	return l, nil
}

// boundAddress 把 UDP 本地地址转换为 quic-v1 Address
func boundAddress(a net.Addr) (types.Address, error) {
	udp, err := manet.FromNetAddr(a)
	if err != nil {
		return types.Address{}, fmt.Errorf("convert %s: %w", a, err)
	}
	return types.NewAddress(udp.Encapsulate(ma.StringCast("/quic-v1")))
}

func (t *Transport) removeListener(l *Listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}

// Close 关闭监听器和拨号 socket
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	listeners := t.listeners
	t.listeners = make(map[*Listener]struct{})
	dialer, dialConn := t.dialer, t.dialConn
	t.mu.Unlock()

	var err error
	for l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	if dialer != nil {
		err = multierr.Append(err, multierr.Combine(dialer.Close(), dialConn.Close()))
	}
	return err
}

// streamConn 关闭时同时关闭所属连接
type streamConn struct {
	quic.Stream
	conn quic.Connection
}

func (s *streamConn) Close() error {
	s.Stream.CancelRead(0)
	err := s.Stream.Close()
	return multierr.Append(err, s.conn.CloseWithError(0, ""))
}

func isClosedErr(err error) bool {
	return errors.Is(err, quic.ErrServerClosed) || errors.Is(err, net.ErrClosed)
}
