package relay

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/claims"
	"github.com/dep2p/go-home/internal/core/metrics"
	"github.com/dep2p/go-home/internal/core/registry"
)

// Params Router 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Registry   *registry.Registry
	Verifier   *claims.Verifier
	Clock      clock.Clock      `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

// Module 返回 relay Fx 模块
func Module() fx.Option {
	return fx.Module("relay",
		fx.Provide(ProvideRouter),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideRouter 创建转发器
func ProvideRouter(p Params) *Router {
	return NewRouter(ConfigFromUnified(p.UnifiedCfg), p.Registry, p.Verifier, Options{
		Clock:   p.Clock,
		Metrics: p.Metrics,
	})
}

func registerLifecycle(lc fx.Lifecycle, r *Router) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return r.Close()
		},
	})
}
