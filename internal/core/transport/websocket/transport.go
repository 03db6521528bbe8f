package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"go.uber.org/multierr"

	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("transport.ws")

var wsComponent = ma.StringCast("/ws")

// Config WebSocket 传输配置
type Config struct {
	// HandshakeTimeout HTTP 升级超时
	HandshakeTimeout time.Duration

	// MaxFrameSize 最大消息长度
	MaxFrameSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		MaxFrameSize:     transport.DefaultMaxFrameSize,
	}
}

// Transport WebSocket 传输
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer

	mu        sync.Mutex
	listeners map[*Listener]struct{}
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 WebSocket 传输
func New(cfg Config) *Transport {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = transport.DefaultMaxFrameSize
	}
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		listeners: make(map[*Listener]struct{}),
	}
}

// Name 返回传输名称
func (t *Transport) Name() string { return types.TransportWebSocket }

// CanDial 只处理 /ws 地址
func (t *Transport) CanDial(addr types.Address) bool {
	return addr.Transport() == types.TransportWebSocket
}

// Dial 建立 WebSocket 连接
func (t *Transport) Dial(ctx context.Context, addr types.Address) (transport.Channel, error) {
	if !t.CanDial(addr) {
		return nil, fmt.Errorf("%w: %s", transport.ErrNoTransport, addr)
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, transport.ErrTransportClosed
	}

	url := "ws://" + net.JoinHostPort(addr.Host(), strconv.Itoa(addr.Port())) + "/"
	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newChannel(conn, addr.String(), t.cfg.MaxFrameSize), nil
}

// Listen 启动 HTTP 服务并接受 WebSocket 升级
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

	// 去掉 /ws 后在 TCP 层监听
	ml, err := manet.Listen(addr.Multiaddr().Decapsulate(wsComponent))
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	bound, err := types.NewAddress(ml.Multiaddr().Encapsulate(wsComponent))
	if err != nil {
		ml.Close()
		return nil, err
	}

	l := newListener(t, bound)
	l.server = &http.Server{
		Handler:           l,
		ReadHeaderTimeout: t.cfg.HandshakeTimeout,
	}
	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()

	go func() {
		err := l.server.Serve(manet.NetListener(ml))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("WebSocket 服务退出", "addr", bound, "err", err)
		}
		l.Close()
	}()
	return l, nil
}

func (t *Transport) removeListener(l *Listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}

// Close 关闭全部监听器
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	listeners := t.listeners
	t.listeners = make(map[*Listener]struct{})
	t.mu.Unlock()

	var err error
	for l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	return err
}
