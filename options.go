package home

import (
	"fmt"
	"strings"

	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
)

// Role 节点角色
type Role int

const (
	// RoleHome 接受 persona 会话并转发调用
	RoleHome Role = iota
	// RolePersona 连接 home 并处理入站调用
	RolePersona
)

// String 返回角色名
func (r Role) String() string {
	switch r {
	case RoleHome:
		return "home"
	case RolePersona:
		return "persona"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole 解析角色名
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "home", "":
		return RoleHome, nil
	case "persona":
		return RolePersona, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	role Role

	// 配置来源，按 config > configFile > 默认 的顺序选取
	config     *config.Config
	configFile string
	preset     string

	// 覆盖项，在配置加载后应用
	keyFile     string
	identifier  string
	listenAddrs []string
	listenSet   bool
	homes       []config.HomeEntry
	dataDir     string
	inMemory    *bool

	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{role: RoleHome}
}

// WithRole 设置节点角色，默认 RoleHome
func WithRole(r Role) Option {
	return func(o *options) error {
		if r != RoleHome && r != RolePersona {
			return fmt.Errorf("%w: %s", ErrUnknownRole, r)
		}
		o.role = r
		return nil
	}
}

// WithConfig 使用给定的完整配置
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: config is nil", config.ErrInvalidConfig)
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 .toml 或 .json 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configFile = path
		return nil
	}
}

// WithPreset 应用预设（"home"、"persona"、"test"）
func WithPreset(name string) Option {
	return func(o *options) error {
		o.preset = name
		return nil
	}
}

// WithKeyFile 设置身份密钥文件，不存在时自动生成
func WithKeyFile(path string) Option {
	return func(o *options) error {
		o.keyFile = path
		return nil
	}
}

// WithIdentifier 设置本地可解析标识
func WithIdentifier(identifier string) Option {
	return func(o *options) error {
		o.identifier = identifier
		return nil
	}
}

// WithListenAddrs 设置 home 监听地址
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		o.listenAddrs = addrs
		o.listenSet = true
		return nil
	}
}

// WithHomes 设置 persona 要连接的 home，第一项为首选
func WithHomes(entries ...config.HomeEntry) Option {
	return func(o *options) error {
		o.homes = append(o.homes, entries...)
		return nil
	}
}

// WithDataDir 设置数据目录
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.dataDir = dir
		return nil
	}
}

// WithInMemoryStorage 使用内存存储，不落盘
func WithInMemoryStorage(enable bool) Option {
	return func(o *options) error {
		o.inMemory = &enable
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}

// buildConfig 按选项生成最终配置并校验
func (o *options) buildConfig() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case o.config != nil:
		cfg = o.config
	case o.configFile != "":
		loaded, err := config.Load(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	default:
		cfg = config.NewConfig()
	}

	if o.preset != "" {
		if err := config.ApplyPreset(cfg, o.preset); err != nil {
			return nil, err
		}
	}

	if o.keyFile != "" {
		cfg.Identity.KeyFile = o.keyFile
		cfg.Identity.AutoGenerate = true
	}
	if o.identifier != "" {
		cfg.Identity.Identifier = o.identifier
	}
	if o.listenSet {
		cfg.Home.ListenAddrs = o.listenAddrs
	}
	if len(o.homes) > 0 {
		cfg.Persona.Homes = o.homes
	}
	if o.dataDir != "" {
		cfg.Storage.DataDir = o.dataDir
	}
	if o.inMemory != nil {
		cfg.Storage.InMemory = *o.inMemory
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
