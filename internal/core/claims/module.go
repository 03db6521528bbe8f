package claims

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

// Params claims 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Key        crypto.PrivateKey
	Local      types.Identity
	Clock      clock.Clock `optional:"true"`
}

// Module 返回 claims Fx 模块
//
// 提供信任本地身份与配置中额外签发者的 Verifier，以及使用本地密钥的 Issuer。
func Module() fx.Option {
	return fx.Module("claims",
		fx.Provide(ProvideVerifier, ProvideIssuer),
	)
}

// ProvideVerifier 创建 Verifier
func ProvideVerifier(p Params) (*Verifier, error) {
	v := NewVerifier(p.Local)
	if p.UnifiedCfg == nil {
		return v, nil
	}
	for i, s := range p.UnifiedCfg.Claims.TrustedIssuers {
		id, err := config.ParseIdentity(s)
		if err != nil {
			return nil, fmt.Errorf("claims.trusted_issuers[%d]: %w", i, err)
		}
		v.Trust(id)
	}
	return v, nil
}

// ProvideIssuer 创建 Issuer
func ProvideIssuer(p Params) *Issuer {
	cc := config.DefaultClaimsConfig()
	if p.UnifiedCfg != nil {
		cc = p.UnifiedCfg.Claims
	}
	return NewIssuer(p.Key, cc.DefaultTTL.Duration(), cc.MaxTTL.Duration(), p.Clock)
}
