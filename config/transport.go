package config

// TransportConfig 传输层配置
//
// 配置节点支持的传输协议及其参数：
//   - TCP: 可选 yamux 多路复用
//   - WebSocket: /ws 地址
//   - QUIC: 基于 UDP，TLS 1.3
type TransportConfig struct {
	// EnableTCP 启用 TCP
	EnableTCP bool `json:"enable_tcp" toml:"enable_tcp"`

	// TCPMux 在一条 TCP 连接上复用多个通道（两端需一致）
	TCPMux bool `json:"tcp_mux" toml:"tcp_mux"`

	// EnableWebSocket 启用 WebSocket
	EnableWebSocket bool `json:"enable_websocket" toml:"enable_websocket"`

	// EnableQUIC 启用 QUIC
	EnableQUIC bool `json:"enable_quic" toml:"enable_quic"`

	// QUICIdleTimeout QUIC 连接空闲超时
	QUICIdleTimeout Duration `json:"quic_idle_timeout" toml:"quic_idle_timeout"`

	// DialTimeout 拨号超时
	DialTimeout Duration `json:"dial_timeout" toml:"dial_timeout"`

	// MaxFrameSize 单条消息最大长度（字节）
	MaxFrameSize int `json:"max_frame_size" toml:"max_frame_size"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		EnableTCP:       true,
		TCPMux:          true,
		EnableWebSocket: true,
		EnableQUIC:      true,
		QUICIdleTimeout: Duration(30e9),
		DialTimeout:     Duration(10e9),
		MaxFrameSize:    1 << 20,
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if !c.EnableTCP && !c.EnableWebSocket && !c.EnableQUIC {
		return invalid("transport", "at least one transport must be enabled")
	}
	if c.DialTimeout <= 0 {
		return invalid("transport", "dial_timeout must be positive")
	}
	if c.EnableQUIC && c.QUICIdleTimeout <= 0 {
		return invalid("transport", "quic_idle_timeout must be positive")
	}
	if c.MaxFrameSize < 1024 {
		return invalid("transport", "max_frame_size must be at least 1024")
	}
	return nil
}
