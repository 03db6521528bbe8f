package config

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// Enabled 启用指标采集
	Enabled bool `json:"enabled" toml:"enabled"`

	// ListenAddr 指标 HTTP 服务地址（host:port），为空时不启动服务
	ListenAddr string `json:"listen_addr,omitempty" toml:"listen_addr"`

	// Path 指标路径
	Path string `json:"path" toml:"path"`
}

// DefaultMetricsConfig 返回默认配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: true,
		Path:    "/metrics",
	}
}

// Validate 验证配置
func (c MetricsConfig) Validate() error {
	if c.ListenAddr != "" && (len(c.Path) == 0 || c.Path[0] != '/') {
		return invalid("metrics", "path must start with '/'")
	}
	return nil
}
