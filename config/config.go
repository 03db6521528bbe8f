// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义。
// 配置在启动时一次性加载，运行期间不热更新。
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Transport.EnableQUIC = true
//
//	// 从文件加载（.json 或 .toml）
//	cfg, err := config.Load("home.toml")
//
//	// 应用预设
//	config.ApplyPreset(cfg, "persona")
package config

// Config 是 go-home 的完整配置结构
//
// 配置按功能模块组织：
//   - Identity: 本地密钥与可解析标识
//   - Home: 作为 home 节点时的监听与公布地址
//   - Persona: 作为 persona 时要连接的 home 列表
//   - Session: 握手与连接保活
//   - Relay: 调用转发
//   - Claims: 授权凭证签发与信任
//   - Resolver: 身份元数据解析缓存
//   - Storage: 配对记录持久化
//   - Transport: 物理传输
//   - Metrics: Prometheus 指标
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity" toml:"identity"`

	// Home home 节点配置
	Home HomeConfig `json:"home" toml:"home"`

	// Persona persona 客户端配置
	Persona PersonaConfig `json:"persona" toml:"persona"`

	// Session 会话配置
	Session SessionConfig `json:"session" toml:"session"`

	// Relay 调用转发配置
	Relay RelayConfig `json:"relay" toml:"relay"`

	// Claims 授权凭证配置
	Claims ClaimsConfig `json:"claims" toml:"claims"`

	// Resolver 身份解析配置
	Resolver ResolverConfig `json:"resolver" toml:"resolver"`

	// Storage 存储配置
	Storage StorageConfig `json:"storage" toml:"storage"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport" toml:"transport"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics" toml:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Home:      DefaultHomeConfig(),
		Persona:   DefaultPersonaConfig(),
		Session:   DefaultSessionConfig(),
		Relay:     DefaultRelayConfig(),
		Claims:    DefaultClaimsConfig(),
		Resolver:  DefaultResolverConfig(),
		Storage:   DefaultStorageConfig(),
		Transport: DefaultTransportConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
//
// 返回遇到的第一个错误，错误均包装 ErrInvalidConfig。
func (c *Config) Validate() error {
	validators := []func() error{
		c.Identity.Validate,
		c.Home.Validate,
		c.Persona.Validate,
		c.Session.Validate,
		c.Relay.Validate,
		c.Claims.Validate,
		c.Resolver.Validate,
		c.Storage.Validate,
		c.Transport.Validate,
		c.Metrics.Validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}
