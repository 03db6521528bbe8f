package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load 从文件加载配置
//
// 按扩展名选择格式：.json 或 .toml。未出现的字段保留默认值。
// 加载后执行 Validate。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cfg, err = FromJSON(data)
	case ".toml":
		cfg, err = FromTOML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromJSON 从 JSON 数据创建配置，缺省字段使用默认值
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// FromTOML 从 TOML 数据创建配置，缺省字段使用默认值
//
// 未知键视为错误。
func FromTOML(data []byte) (*Config, error) {
	cfg := NewConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode toml config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown keys %v", ErrInvalidConfig, undecoded)
	}
	return cfg, nil
}

// ToJSON 序列化为缩进 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ApplyPreset 应用预设配置
//
// 支持的预设：
//   - "home": 公网 home 节点，监听全部传输并开启指标
//   - "persona": 只拨号的客户端，不监听，使用内存存储
//   - "test": 本机回环、短超时、内存存储
func ApplyPreset(cfg *Config, name string) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	switch name {
	case "", "home":
		cfg.Metrics.Enabled = true
	case "persona":
		cfg.Home.ListenAddrs = nil
		cfg.Storage.InMemory = true
		cfg.Metrics.Enabled = false
	case "test":
		cfg.Home.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
		cfg.Storage.InMemory = true
		cfg.Session.HandshakeTimeout = Duration(2e9)
		cfg.Relay.CallTimeout = Duration(2e9)
		cfg.Transport.DialTimeout = Duration(2e9)
		cfg.Metrics.Enabled = false
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return nil
}
