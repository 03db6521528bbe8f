package home

import (
	"time"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/claims"
	"github.com/dep2p/go-home/pkg/types"
)

// Config home 服务配置
type Config struct {
	// ListenAddrs 监听地址
	ListenAddrs []types.Address

	// AdvertiseAddrs 公布地址，为空时使用实际监听地址
	AdvertiseAddrs []types.Address

	// PairingTTL 配对声明的最长有效期，0 表示不限制
	PairingTTL time.Duration

	// PairingClockSkew 检查配对有效期时容忍的 persona 时钟偏差
	PairingClockSkew time.Duration

	// RelationTimeout 等待对端 persona 确认关系消息的时间
	RelationTimeout time.Duration

	// ShutdownTimeout 关闭时等待连接处理退出的时间
	ShutdownTimeout time.Duration

	// ClaimScope 请求未指定范围时签发的凭证范围
	ClaimScope []string

	// 托管 persona 解析缓存
	ResolverCacheSize int
	ResolverCacheTTL  time.Duration
}

// DefaultConfig 返回默认配置，不监听任何地址
func DefaultConfig() Config {
	c := Config{}
	c.normalize()
	return c
}

// ConfigFromUnified 从统一配置创建服务配置
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	listen, err := types.ParseAddresses(cfg.Home.ListenAddrs)
	if err != nil {
		return Config{}, err
	}
	advertise, err := types.ParseAddresses(cfg.Home.AdvertiseAddrs)
	if err != nil {
		return Config{}, err
	}
	c := Config{
		ListenAddrs:       listen,
		AdvertiseAddrs:    advertise,
		PairingTTL:        cfg.Home.PairingTTL.Duration(),
		PairingClockSkew:  cfg.Home.PairingClockSkew.Duration(),
		ShutdownTimeout:   cfg.Home.ShutdownTimeout.Duration(),
		ClaimScope:        append([]string(nil), cfg.Relay.RequiredScope...),
		ResolverCacheSize: cfg.Resolver.CacheSize,
		ResolverCacheTTL:  cfg.Resolver.CacheTTL.Duration(),
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.RelationTimeout <= 0 {
		c.RelationTimeout = 30 * time.Second
	}
	if c.PairingClockSkew <= 0 {
		c.PairingClockSkew = time.Minute
	}
	if len(c.ClaimScope) == 0 {
		c.ClaimScope = []string{claims.ScopeRelay}
	}
	if c.ResolverCacheSize <= 0 {
		c.ResolverCacheSize = 1024
	}
	if c.ResolverCacheTTL <= 0 {
		c.ResolverCacheTTL = time.Minute
	}
}
