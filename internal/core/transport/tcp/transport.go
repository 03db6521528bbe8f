package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
	manet "github.com/multiformats/go-multiaddr/net"
	"go.uber.org/multierr"

	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("transport.tcp")

// Config TCP 传输配置
type Config struct {
	// Mux 是否使用 yamux 复用连接
	Mux bool

	// DialTimeout 建立连接超时
	DialTimeout time.Duration

	// KeepAlive TCP keepalive 周期，0 使用系统默认值
	KeepAlive time.Duration

	// MaxFrameSize 最大消息长度
	MaxFrameSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Mux:          true,
		DialTimeout:  10 * time.Second,
		KeepAlive:    30 * time.Second,
		MaxFrameSize: transport.DefaultMaxFrameSize,
	}
}

// Transport TCP 传输
type Transport struct {
	cfg Config

	mu        sync.Mutex
	sessions  map[string]*yamux.Session // 按拨号目标缓存的客户端会话
	listeners map[*Listener]struct{}
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 TCP 传输
func New(cfg Config) *Transport {
	return &Transport{
		cfg:       cfg,
		sessions:  make(map[string]*yamux.Session),
		listeners: make(map[*Listener]struct{}),
	}
}

// Name 返回传输名称
func (t *Transport) Name() string { return types.TransportTCP }

// CanDial 只处理纯 TCP 地址
func (t *Transport) CanDial(addr types.Address) bool {
	return addr.Transport() == types.TransportTCP
}

// Dial 拨号
func (t *Transport) Dial(ctx context.Context, addr types.Address) (transport.Channel, error) {
	if !t.CanDial(addr) {
		return nil, fmt.Errorf("%w: %s", transport.ErrNoTransport, addr)
	}
	target := net.JoinHostPort(addr.Host(), strconv.Itoa(addr.Port()))

	if !t.cfg.Mux {
		conn, err := t.dialConn(ctx, target)
		if err != nil {
			return nil, err
		}
		return transport.NewStreamChannel(conn, addr.String(), t.cfg.MaxFrameSize), nil
	}

	sess, err := t.session(ctx, target)
	if err != nil {
		return nil, err
	}
	stream, err := sess.OpenStream()
	if err != nil {
		// 会话已失效，丢弃后重试一次
		t.dropSession(target, sess)
		if sess, err = t.session(ctx, target); err != nil {
			return nil, err
		}
		if stream, err = sess.OpenStream(); err != nil {
			return nil, fmt.Errorf("open yamux stream: %w", err)
		}
	}
	return transport.NewStreamChannel(stream, addr.String(), t.cfg.MaxFrameSize), nil
}

func (t *Transport) dialConn(ctx context.Context, target string) (net.Conn, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, transport.ErrTransportClosed
	}

	d := &net.Dialer{Timeout: t.cfg.DialTimeout, KeepAlive: t.cfg.KeepAlive}
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// session 返回到 target 的 yamux 客户端会话，不存在时新建
func (t *Transport) session(ctx context.Context, target string) (*yamux.Session, error) {
	t.mu.Lock()
	if s, ok := t.sessions[target]; ok && !s.IsClosed() {
		t.mu.Unlock()
		return s, nil
	}
	t.mu.Unlock()

	conn, err := t.dialConn(ctx, target)
	if err != nil {
		return nil, err
	}
	sess, err := yamux.Client(conn, yamuxConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("yamux client: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		sess.Close()
		return nil, transport.ErrTransportClosed
	}
	if existing, ok := t.sessions[target]; ok && !existing.IsClosed() {
		// 并发拨号，保留先建立的会话
		sess.Close()
		return existing, nil
	}
	t.sessions[target] = sess
	log.Debug("建立 yamux 会话", "target", target)
	return sess, nil
}

func (t *Transport) dropSession(target string, sess *yamux.Session) {
	t.mu.Lock()
	if t.sessions[target] == sess {
		delete(t.sessions, target)
	}
	t.mu.Unlock()
	sess.Close()
}

// Listen 监听
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

	ml, err := manet.Listen(addr.Multiaddr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	bound, err := types.NewAddress(ml.Multiaddr())
	if err != nil {
		ml.Close()
		return nil, err
	}

	l := newListener(t, ml, bound)
	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()
	go l.acceptLoop()
	return l, nil
}

func (t *Transport) removeListener(l *Listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}

// Close 关闭全部会话与监听器
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sessions := t.sessions
	listeners := t.listeners
	t.sessions = make(map[string]*yamux.Session)
	t.listeners = make(map[*Listener]struct{})
	t.mu.Unlock()

	var err error
	for _, s := range sessions {
		err = multierr.Append(err, s.Close())
	}
	for l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	return err
}

func yamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	// 存活检测由上层多路复用的 keepalive 负责
	cfg.EnableKeepAlive = false
	cfg.LogOutput = io.Discard
	cfg.StreamOpenTimeout = 30 * time.Second
	return cfg
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, yamux.ErrSessionShutdown) || errors.Is(err, io.EOF)
}
