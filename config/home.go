package config

import (
	"github.com/mr-tron/base58"

	"github.com/dep2p/go-home/pkg/types"
)

// HomeConfig home 节点配置
type HomeConfig struct {
	// ListenAddrs 监听地址（multiaddr）
	ListenAddrs []string `json:"listen_addrs" toml:"listen_addrs"`

	// AdvertiseAddrs 写入配对声明的公布地址，按优先级排序
	// 为空时使用实际监听地址
	AdvertiseAddrs []string `json:"advertise_addrs,omitempty" toml:"advertise_addrs"`

	// PairingTTL 配对有效期，0 表示不过期
	PairingTTL Duration `json:"pairing_ttl" toml:"pairing_ttl"`

	// PairingClockSkew 校验配对有效期时容忍的时钟偏差，0 使用默认值
	PairingClockSkew Duration `json:"pairing_clock_skew,omitempty" toml:"pairing_clock_skew"`

	// ShutdownTimeout 关闭时等待会话退出的时间
	ShutdownTimeout Duration `json:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DefaultHomeConfig 返回默认配置
func DefaultHomeConfig() HomeConfig {
	return HomeConfig{
		ListenAddrs:     []string{"/ip4/0.0.0.0/tcp/4100", "/ip4/0.0.0.0/udp/4100/quic-v1"},
		ShutdownTimeout: Duration(5e9),
	}
}

// Validate 验证配置
func (c HomeConfig) Validate() error {
	if _, err := types.ParseAddresses(c.ListenAddrs); err != nil {
		return invalid("home", "listen_addrs: %v", err)
	}
	if _, err := types.ParseAddresses(c.AdvertiseAddrs); err != nil {
		return invalid("home", "advertise_addrs: %v", err)
	}
	if c.PairingTTL < 0 {
		return invalid("home", "pairing_ttl must not be negative")
	}
	if c.PairingClockSkew < 0 {
		return invalid("home", "pairing_clock_skew must not be negative")
	}
	if c.ShutdownTimeout < 0 {
		return invalid("home", "shutdown_timeout must not be negative")
	}
	return nil
}

// HomeEntry persona 要连接的一个 home
type HomeEntry struct {
	// Identity home 身份（base58 编码的序列化身份），为空时接受握手中出现的任何身份
	Identity string `json:"identity,omitempty" toml:"identity"`

	// Addrs home 地址，按顺序尝试
	Addrs []string `json:"addrs" toml:"addrs"`
}

// PersonaConfig persona 客户端配置
type PersonaConfig struct {
	// Homes home 列表，第一项为首选
	Homes []HomeEntry `json:"homes,omitempty" toml:"homes"`

	// ClaimTTL 申请授权凭证的有效期
	ClaimTTL Duration `json:"claim_ttl" toml:"claim_ttl"`

	// ClaimRefreshBefore 凭证剩余有效期低于该值时重新申请
	ClaimRefreshBefore Duration `json:"claim_refresh_before" toml:"claim_refresh_before"`

	// Apps 本地处理入站调用的应用标识，空表示接受所有
	Apps []string `json:"apps,omitempty" toml:"apps"`
}

// DefaultPersonaConfig 返回默认配置
func DefaultPersonaConfig() PersonaConfig {
	return PersonaConfig{
		ClaimTTL:           Duration(3600e9),
		ClaimRefreshBefore: Duration(60e9),
	}
}

// Validate 验证配置
func (c PersonaConfig) Validate() error {
	for i, h := range c.Homes {
		if len(h.Addrs) == 0 {
			return invalid("persona", "homes[%d]: no addresses", i)
		}
		if _, err := types.ParseAddresses(h.Addrs); err != nil {
			return invalid("persona", "homes[%d]: %v", i, err)
		}
		if h.Identity != "" {
			if _, err := ParseIdentity(h.Identity); err != nil {
				return invalid("persona", "homes[%d].identity: %v", i, err)
			}
		}
	}
	if c.ClaimTTL <= 0 {
		return invalid("persona", "claim_ttl must be positive")
	}
	if c.ClaimRefreshBefore < 0 || c.ClaimRefreshBefore >= c.ClaimTTL {
		return invalid("persona", "claim_refresh_before must be in [0, claim_ttl)")
	}
	return nil
}

// ParseIdentity 解析配置中 base58 编码的序列化身份
func ParseIdentity(s string) (types.Identity, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return types.Identity{}, err
	}
	return types.ParseIdentity(raw)
}

// FormatIdentity 把身份编码为配置中使用的 base58 字符串
func FormatIdentity(id types.Identity) string {
	return base58.Encode(id.Bytes())
}
