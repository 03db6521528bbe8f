package config

// ResolverConfig 身份元数据解析缓存配置
type ResolverConfig struct {
	// CacheSize 缓存条目数
	CacheSize int `json:"cache_size" toml:"cache_size"`

	// CacheTTL 缓存有效期
	CacheTTL Duration `json:"cache_ttl" toml:"cache_ttl"`
}

// DefaultResolverConfig 返回默认配置
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CacheSize: 1024,
		CacheTTL:  Duration(60e9),
	}
}

// Validate 验证配置
func (c ResolverConfig) Validate() error {
	if c.CacheSize < 1 {
		return invalid("resolver", "cache_size must be at least 1")
	}
	if c.CacheTTL <= 0 {
		return invalid("resolver", "cache_ttl must be positive")
	}
	return nil
}
