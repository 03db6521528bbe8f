package identity

import (
	"context"
	"fmt"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("identity")

// Metadata 身份的可解析元数据
type Metadata struct {
	Identity  types.Identity
	Addresses []types.Address // 所属 home 的地址，按优先顺序
}

// Resolver 按标识解析身份
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (*Metadata, error)
}

// ============================================================================
//                              Service
// ============================================================================

// Service 本地身份服务
type Service struct {
	key      crypto.PrivateKey
	local    types.Identity
	resolver Resolver
}

// New 以私钥与可选标识创建服务
func New(key crypto.PrivateKey, identifier string) (*Service, error) {
	if key == nil {
		return nil, ErrNilPrivateKey
	}
	local, err := types.IdentityFromPrivateKey(key, identifier)
	if err != nil {
		return nil, err
	}
	return &Service{key: key, local: local}, nil
}

// FromConfig 按配置加载或生成私钥
//
// 未配置密钥文件时生成临时密钥；配置了文件且允许自动生成时，
// 文件不存在则生成并写入。
func FromConfig(cfg config.IdentityConfig) (*Service, error) {
	kt, err := crypto.ParseKeyType(cfg.KeyType)
	if err != nil {
		return nil, err
	}

	var key crypto.PrivateKey
	switch {
	case cfg.KeyFile == "":
		key, _, err = crypto.GenerateKeyPair(kt)
		if err == nil {
			log.Info("使用临时身份", "type", kt)
		}
	case cfg.AutoGenerate:
		var created bool
		key, created, err = crypto.LoadOrGenerateKeyFile(cfg.KeyFile, kt)
		if err == nil && created {
			log.Info("已生成身份密钥", "path", cfg.KeyFile, "type", kt)
		}
	default:
		key, err = crypto.ReadKeyFile(cfg.KeyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("load identity key: %w", err)
	}
	return New(key, cfg.Identifier)
}

// Local 返回本地身份
func (s *Service) Local() types.Identity { return s.local }

// PrivateKey 返回本地私钥
func (s *Service) PrivateKey() crypto.PrivateKey { return s.key }

// Sign 使用本地私钥签名
func (s *Service) Sign(data []byte) ([]byte, error) {
	return s.key.Sign(data)
}

// Verify 校验 id 对 data 的签名
func (s *Service) Verify(id types.Identity, data, sig []byte) bool {
	if id.IsEmpty() || len(sig) == 0 {
		return false
	}
	return id.Verify(data, sig)
}

// SetResolver 设置解析来源
func (s *Service) SetResolver(r Resolver) { s.resolver = r }

// Resolve 解析标识，无法解析时返回匹配 ErrNotFound 的错误
func (s *Service) Resolve(ctx context.Context, identifier string) (*Metadata, error) {
	if identifier == "" {
		return nil, ErrEmptyIdentifier
	}
	if identifier == s.local.Identifier() {
		return &Metadata{Identity: s.local}, nil
	}
	if s.resolver == nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, ErrNoResolver)
	}
	return s.resolver.Resolve(ctx, identifier)
}
