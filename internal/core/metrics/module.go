package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
)

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 返回 metrics Fx 模块
//
// 未启用时提供 nil *Metrics；配置了监听地址时随生命周期启停 HTTP 服务。
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideMetrics 根据配置创建指标集合
func ProvideMetrics(p Params) *Metrics {
	cfg := config.DefaultMetricsConfig()
	if p.UnifiedCfg != nil {
		cfg = p.UnifiedCfg.Metrics
	}
	if !cfg.Enabled {
		return nil
	}
	return New()
}

func registerLifecycle(lc fx.Lifecycle, m *Metrics, p Params) {
	if m == nil || p.UnifiedCfg == nil || p.UnifiedCfg.Metrics.ListenAddr == "" {
		return
	}
	cfg := p.UnifiedCfg.Metrics
	var srv *Server
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			srv, err = m.Listen(cfg.ListenAddr, cfg.Path)
			return err
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
