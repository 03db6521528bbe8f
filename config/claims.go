package config

// ClaimsConfig 授权凭证配置
type ClaimsConfig struct {
	// DefaultTTL 申请未指定有效期时使用的有效期
	DefaultTTL Duration `json:"default_ttl" toml:"default_ttl"`

	// MaxTTL 可签发的最长有效期
	MaxTTL Duration `json:"max_ttl" toml:"max_ttl"`

	// TrustedIssuers 额外信任的签发者（base58 编码的序列化身份）
	// home 总是信任自身
	TrustedIssuers []string `json:"trusted_issuers,omitempty" toml:"trusted_issuers"`
}

// DefaultClaimsConfig 返回默认配置
func DefaultClaimsConfig() ClaimsConfig {
	return ClaimsConfig{
		DefaultTTL: Duration(3600e9),
		MaxTTL:     Duration(24 * 3600e9),
	}
}

// Validate 验证配置
func (c ClaimsConfig) Validate() error {
	if c.DefaultTTL <= 0 || c.MaxTTL <= 0 {
		return invalid("claims", "ttl values must be positive")
	}
	if c.DefaultTTL > c.MaxTTL {
		return invalid("claims", "default_ttl exceeds max_ttl")
	}
	for i, s := range c.TrustedIssuers {
		if _, err := ParseIdentity(s); err != nil {
			return invalid("claims", "trusted_issuers[%d]: %v", i, err)
		}
	}
	return nil
}
