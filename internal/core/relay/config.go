package relay

import (
	"time"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/claims"
)

// Config 转发配置
type Config struct {
	// CallTimeout 等待被叫响应的时间
	CallTimeout time.Duration

	// RequiredScope 转发所需的凭证范围
	RequiredScope []string

	// RateLimit 每个主叫会话每秒可发起的调用数，0 表示不限制
	RateLimit float64

	// RateBurst 突发调用数
	RateBurst int

	// MaxPendingPerSession 每个主叫会话的未完成调用上限
	MaxPendingPerSession int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建转发配置
func ConfigFromUnified(cfg *config.Config) Config {
	rc := config.DefaultRelayConfig()
	if cfg != nil {
		rc = cfg.Relay
	}
	c := Config{
		CallTimeout:          rc.CallTimeout.Duration(),
		RequiredScope:        append([]string(nil), rc.RequiredScope...),
		RateLimit:            rc.RateLimit,
		RateBurst:            rc.RateBurst,
		MaxPendingPerSession: rc.MaxPendingPerSession,
	}
	c.normalize()
	return c
}

func (c *Config) normalize() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if len(c.RequiredScope) == 0 {
		c.RequiredScope = []string{claims.ScopeRelay}
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		c.RateBurst = 1
	}
	if c.MaxPendingPerSession <= 0 {
		c.MaxPendingPerSession = 256
	}
}
