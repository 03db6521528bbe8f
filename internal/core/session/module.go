package session

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/muxer"
)

// Params 会话模块依赖
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Mux        *muxer.Config  `optional:"true"`
}

// Module 返回 Fx 模块，提供握手选项
func Module() fx.Option {
	return fx.Module("session",
		fx.Provide(ProvideOptions),
	)
}

// ProvideOptions 从统一配置提供握手选项
func ProvideOptions(p Params) Options {
	o := OptionsFromUnified(p.UnifiedCfg)
	if p.Mux != nil {
		o.Mux = *p.Mux
	}
	return o
}
