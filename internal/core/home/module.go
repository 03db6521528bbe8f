package home

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/claims"
	"github.com/dep2p/go-home/internal/core/identity"
	"github.com/dep2p/go-home/internal/core/metrics"
	"github.com/dep2p/go-home/internal/core/registry"
	"github.com/dep2p/go-home/internal/core/relay"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/core/transport"
)

// Params home 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Identity   *identity.Service
	Transports *transport.Set `optional:"true"`
	Registry   *registry.Registry
	Router     *relay.Router
	Issuer     *claims.Issuer
	Session    session.Options
	Metrics    *metrics.Metrics `optional:"true"`
	Clock      clock.Clock      `optional:"true"`
}

// Module 返回 home Fx 模块
//
// OnStart 开始监听，OnStop 关闭监听与全部会话。
func Module() fx.Option {
	return fx.Module("home",
		fx.Provide(ProvideServer),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideServer 创建服务
func ProvideServer(p Params) (*Server, error) {
	cfg, err := ConfigFromUnified(p.UnifiedCfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, Deps{
		Identity:   p.Identity,
		Transports: p.Transports,
		Registry:   p.Registry,
		Router:     p.Router,
		Issuer:     p.Issuer,
		Session:    p.Session,
		Metrics:    p.Metrics,
		Clock:      p.Clock,
	})
}

func registerLifecycle(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return s.Start()
		},
		OnStop: func(context.Context) error {
			return s.Close()
		},
	})
}
