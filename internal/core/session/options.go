package session

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/pkg/types"
)

// Options 握手选项
type Options struct {
	// HandshakeTimeout 整个握手的时间上限，0 表示只受 ctx 约束
	HandshakeTimeout time.Duration

	// Identifier 本地身份携带的可解析标识
	Identifier string

	// ExpectedRemote 发起方期望的对端身份，空表示接受任意身份
	ExpectedRemote types.IdentityID

	// Authorize 响应方在签名校验通过后调用，返回错误则拒绝握手
	Authorize func(remote types.Identity) error

	// Mux 会话连接配置
	Mux muxer.Config

	// Clock 时钟
	Clock clock.Clock

	// Rand 随机源，用于随机数与临时密钥
	Rand io.Reader
}

// DefaultOptions 返回默认选项
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		Mux:              muxer.DefaultConfig(),
		Clock:            clock.New(),
		Rand:             rand.Reader,
	}
}

// OptionsFromUnified 从统一配置创建握手选项
func OptionsFromUnified(cfg *config.Config) Options {
	o := DefaultOptions()
	o.Mux = muxer.ConfigFromUnified(cfg)
	if cfg == nil {
		return o
	}
	o.HandshakeTimeout = cfg.Session.HandshakeTimeout.Duration()
	o.Identifier = cfg.Identity.Identifier
	return o
}

func (o *Options) normalize() {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Rand == nil {
		o.Rand = rand.Reader
	}
	if o.Mux.Clock == nil {
		o.Mux.Clock = o.Clock
	}
}
