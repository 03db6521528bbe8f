package muxer

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
)

// Params Muxer 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 返回 Fx 模块，提供连接配置
func Module() fx.Option {
	return fx.Module("muxer",
		fx.Provide(ProvideConfig),
	)
}

// ProvideConfig 从统一配置提供连接配置
func ProvideConfig(p Params) *Config {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	return &cfg
}
