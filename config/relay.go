package config

// RelayConfig 调用转发配置
type RelayConfig struct {
	// CallTimeout 转发调用等待被叫响应的时间
	CallTimeout Duration `json:"call_timeout" toml:"call_timeout"`

	// RequiredScope 转发调用所需的授权范围
	RequiredScope []string `json:"required_scope" toml:"required_scope"`

	// RateLimit 每个会话每秒可发起的调用数，0 表示不限制
	RateLimit float64 `json:"rate_limit" toml:"rate_limit"`

	// RateBurst 突发调用数
	RateBurst int `json:"rate_burst" toml:"rate_burst"`

	// MaxPendingPerSession 每个主叫会话同时进行的调用上限
	MaxPendingPerSession int `json:"max_pending_per_session" toml:"max_pending_per_session"`
}

// DefaultRelayConfig 返回默认配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		CallTimeout:          Duration(30e9),
		RequiredScope:        []string{"relay"},
		RateLimit:            50,
		RateBurst:            100,
		MaxPendingPerSession: 256,
	}
}

// Validate 验证配置
func (c RelayConfig) Validate() error {
	if c.CallTimeout <= 0 {
		return invalid("relay", "call_timeout must be positive")
	}
	if len(c.RequiredScope) == 0 {
		return invalid("relay", "required_scope must not be empty")
	}
	for _, s := range c.RequiredScope {
		if s == "" {
			return invalid("relay", "required_scope contains an empty tag")
		}
	}
	if c.RateLimit < 0 {
		return invalid("relay", "rate_limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return invalid("relay", "rate_burst must be at least 1 when rate_limit is set")
	}
	if c.MaxPendingPerSession < 1 {
		return invalid("relay", "max_pending_per_session must be at least 1")
	}
	return nil
}
