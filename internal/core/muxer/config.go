package muxer

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-home/config"
)

// Config 连接配置
type Config struct {
	// KeepaliveInterval Ping 间隔
	KeepaliveInterval time.Duration

	// MaxMissedKeepalives 连续无入站帧的间隔数上限
	MaxMissedKeepalives int

	// SendQueueSize 数据帧发送队列长度
	SendQueueSize int

	// MaxPending 等待响应的请求上限
	MaxPending int

	// CloseTimeout 发送 Close 帧的最长时间
	CloseTimeout time.Duration

	// Clock 时钟，测试时替换为 clock.NewMock()
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		KeepaliveInterval:   15 * time.Second,
		MaxMissedKeepalives: 3,
		SendQueueSize:       256,
		MaxPending:          1024,
		CloseTimeout:        time.Second,
		Clock:               clock.New(),
	}
}

// ConfigFromUnified 从统一配置创建连接配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.KeepaliveInterval = cfg.Session.KeepaliveInterval.Duration()
	c.MaxMissedKeepalives = cfg.Session.MaxMissedKeepalives
	c.SendQueueSize = cfg.Session.SendQueueSize
	c.MaxPending = cfg.Session.MaxPendingRequests
	return c
}

// normalize 用默认值补全无效字段
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = d.KeepaliveInterval
	}
	if c.MaxMissedKeepalives <= 0 {
		c.MaxMissedKeepalives = d.MaxMissedKeepalives
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = d.SendQueueSize
	}
	if c.MaxPending <= 0 {
		c.MaxPending = d.MaxPending
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = d.CloseTimeout
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
}
