package config

// SessionConfig 会话配置
type SessionConfig struct {
	// HandshakeTimeout 握手超时
	HandshakeTimeout Duration `json:"handshake_timeout" toml:"handshake_timeout"`

	// KeepaliveInterval 保活 Ping 间隔
	KeepaliveInterval Duration `json:"keepalive_interval" toml:"keepalive_interval"`

	// MaxMissedKeepalives 连续未收到 Pong 的间隔数达到该值时判定连接失效
	MaxMissedKeepalives int `json:"max_missed_keepalives" toml:"max_missed_keepalives"`

	// SendQueueSize 每个连接的发送队列长度
	SendQueueSize int `json:"send_queue_size" toml:"send_queue_size"`

	// MaxPendingRequests 每个连接同时等待响应的请求上限
	MaxPendingRequests int `json:"max_pending_requests" toml:"max_pending_requests"`
}

// DefaultSessionConfig 返回默认配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		HandshakeTimeout:    Duration(10e9),
		KeepaliveInterval:   Duration(15e9),
		MaxMissedKeepalives: 3,
		SendQueueSize:       256,
		MaxPendingRequests:  1024,
	}
}

// Validate 验证配置
func (c SessionConfig) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return invalid("session", "handshake_timeout must be positive")
	}
	if c.KeepaliveInterval <= 0 {
		return invalid("session", "keepalive_interval must be positive")
	}
	if c.MaxMissedKeepalives < 1 {
		return invalid("session", "max_missed_keepalives must be at least 1")
	}
	if c.SendQueueSize < 1 {
		return invalid("session", "send_queue_size must be at least 1")
	}
	if c.MaxPendingRequests < 1 {
		return invalid("session", "max_pending_requests must be at least 1")
	}
	return nil
}
