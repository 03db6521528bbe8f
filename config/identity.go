package config

import (
	"github.com/dep2p/go-home/pkg/lib/crypto"
)

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyType 密钥类型
	// 可选值: "Ed25519"（默认）, "Secp256k1", "Dilithium3"
	KeyType string `json:"key_type" toml:"key_type"`

	// KeyFile 密钥文件路径
	// 为空时在内存中生成临时密钥
	KeyFile string `json:"key_file" toml:"key_file"`

	// AutoGenerate 当密钥文件不存在时是否自动生成
	AutoGenerate bool `json:"auto_generate" toml:"auto_generate"`

	// Identifier 可解析标识（可选），随身份一起公布
	Identifier string `json:"identifier,omitempty" toml:"identifier"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		KeyType:      "Ed25519",
		AutoGenerate: true,
	}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	kt, err := crypto.ParseKeyType(c.KeyType)
	if err != nil || kt == crypto.KeyTypeUnspecified {
		return invalid("identity", "unsupported key type %q", c.KeyType)
	}
	if c.KeyFile == "" && !c.AutoGenerate {
		return invalid("identity", "key_file is empty and auto_generate is disabled")
	}
	return nil
}

// ParsedKeyType 返回解析后的密钥类型
func (c IdentityConfig) ParsedKeyType() crypto.KeyType {
	kt, err := crypto.ParseKeyType(c.KeyType)
	if err != nil {
		return crypto.KeyTypeEd25519
	}
	return kt
}
