package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

// Params identity 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Output identity 模块输出
type Output struct {
	fx.Out

	Service *Service
	Key     crypto.PrivateKey
	Local   types.Identity
}

// Module 返回 identity Fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 加载本地身份
func ProvideServices(p Params) (Output, error) {
	cfg := config.DefaultIdentityConfig()
	if p.UnifiedCfg != nil {
		cfg = p.UnifiedCfg.Identity
	}
	svc, err := FromConfig(cfg)
	if err != nil {
		return Output{}, err
	}
	log.Info("本地身份", "id", svc.Local().ID().ShortString())
	return Output{Service: svc, Key: svc.PrivateKey(), Local: svc.Local()}, nil
}
