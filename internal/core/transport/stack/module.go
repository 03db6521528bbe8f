// Package stack 按配置组装已启用的传输并提供 Fx 模块
package stack

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/transport"
	"github.com/dep2p/go-home/internal/core/transport/quic"
	"github.com/dep2p/go-home/internal/core/transport/tcp"
	"github.com/dep2p/go-home/internal/core/transport/websocket"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/lib/crypto"
)

var log = logger.Logger("transport.stack")

// Config 传输层配置
type Config struct {
	// 协议开关
	EnableTCP       bool
	EnableWebSocket bool
	EnableQUIC      bool

	// TCPMux 启用 yamux 复用
	TCPMux bool

	// QUICIdleTimeout QUIC 空闲超时
	QUICIdleTimeout time.Duration

	// 通用配置
	DialTimeout  time.Duration
	MaxFrameSize int
}

// NewConfig 创建默认配置
func NewConfig() Config {
	return ConfigFromUnified(config.NewConfig())
}

// ConfigFromUnified 从统一配置创建传输配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return Config{
		EnableTCP:       cfg.Transport.EnableTCP,
		EnableWebSocket: cfg.Transport.EnableWebSocket,
		EnableQUIC:      cfg.Transport.EnableQUIC,
		TCPMux:          cfg.Transport.TCPMux,
		QUICIdleTimeout: cfg.Transport.QUICIdleTimeout.Duration(),
		DialTimeout:     cfg.Transport.DialTimeout.Duration(),
		MaxFrameSize:    cfg.Transport.MaxFrameSize,
	}
}

// New 创建包含全部已启用传输的集合
//
// key 用于 QUIC 证书，可为 nil。
func New(cfg Config, key crypto.PrivateKey) (*transport.Set, error) {
	set := transport.NewSet()

	if cfg.EnableTCP {
		tc := tcp.DefaultConfig()
		tc.Mux = cfg.TCPMux
		tc.DialTimeout = cfg.DialTimeout
		tc.MaxFrameSize = cfg.MaxFrameSize
		set.Add(tcp.New(tc))
	}

	if cfg.EnableWebSocket {
		wc := websocket.DefaultConfig()
		wc.HandshakeTimeout = cfg.DialTimeout
		wc.MaxFrameSize = cfg.MaxFrameSize
		set.Add(websocket.New(wc))
	}

	if cfg.EnableQUIC {
		qc := quic.DefaultConfig()
		qc.MaxIdleTimeout = cfg.QUICIdleTimeout
		qc.HandshakeTimeout = cfg.DialTimeout
		qc.MaxFrameSize = cfg.MaxFrameSize
		qt, err := quic.New(qc, key)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		set.Add(qt)
	}

	log.Debug("传输集合已创建", "transports", set.Names())
	return set, nil
}

// ============================================================================
//                              Fx 模块
// ============================================================================

// Input Fx 输入
type Input struct {
	fx.In

	Config *config.Config
	Key    crypto.PrivateKey `optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(ProvideSet),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideSet 提供传输集合
func ProvideSet(in Input) (*transport.Set, error) {
	return New(ConfigFromUnified(in.Config), in.Key)
}

func registerLifecycle(lc fx.Lifecycle, set *transport.Set) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return set.Close()
		},
	})
}
