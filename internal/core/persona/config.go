package persona

import (
	"fmt"
	"time"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/pkg/types"
)

// HomeEntry 一个 home 的连接信息
type HomeEntry struct {
	// Identity 期望的 home 身份，空值表示接受握手中出现的任何身份
	Identity types.Identity

	// Addrs 地址，按顺序尝试
	Addrs []types.Address
}

// Config 客户端配置
type Config struct {
	// Homes 配置的 home，第一项为首选
	Homes []HomeEntry

	// ClaimTTL 申请凭证的有效期
	ClaimTTL time.Duration

	// ClaimRefreshBefore 凭证剩余有效期低于该值时重新申请
	ClaimRefreshBefore time.Duration

	// PairingTTL 配对声明的有效期，0 表示不过期
	PairingTTL time.Duration

	// 解析缓存
	ResolverCacheSize int
	ResolverCacheTTL  time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	c := Config{}
	c.normalize()
	return c
}

// ConfigFromUnified 从统一配置创建客户端配置
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	c := Config{
		ClaimTTL:           cfg.Persona.ClaimTTL.Duration(),
		ClaimRefreshBefore: cfg.Persona.ClaimRefreshBefore.Duration(),
		PairingTTL:         cfg.Home.PairingTTL.Duration(),
		ResolverCacheSize:  cfg.Resolver.CacheSize,
		ResolverCacheTTL:   cfg.Resolver.CacheTTL.Duration(),
	}
	for i, h := range cfg.Persona.Homes {
		addrs, err := types.ParseAddresses(h.Addrs)
		if err != nil {
			return Config{}, fmt.Errorf("persona.homes[%d]: %w", i, err)
		}
		entry := HomeEntry{Addrs: addrs}
		if h.Identity != "" {
			if entry.Identity, err = config.ParseIdentity(h.Identity); err != nil {
				return Config{}, fmt.Errorf("persona.homes[%d].identity: %w", i, err)
			}
		}
		c.Homes = append(c.Homes, entry)
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = time.Hour
	}
	if c.ClaimRefreshBefore < 0 || c.ClaimRefreshBefore >= c.ClaimTTL {
		c.ClaimRefreshBefore = c.ClaimTTL / 10
	}
	if c.ResolverCacheSize <= 0 {
		c.ResolverCacheSize = 1024
	}
	if c.ResolverCacheTTL <= 0 {
		c.ResolverCacheTTL = time.Minute
	}
}
