package home

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/claims"
	homesrv "github.com/dep2p/go-home/internal/core/home"
	"github.com/dep2p/go-home/internal/core/identity"
	"github.com/dep2p/go-home/internal/core/metrics"
	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/core/persona"
	"github.com/dep2p/go-home/internal/core/registry"
	"github.com/dep2p/go-home/internal/core/relay"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/core/storage"
	"github.com/dep2p/go-home/internal/core/transport/stack"
	"github.com/dep2p/go-home/internal/util/logger"
)

var fxLogger = logger.Logger("fx")

// ════════════════════════════════════════════════════════════════════════════
//                              Fx 应用组装
// ════════════════════════════════════════════════════════════════════════════

// buildFxApp 按角色组装模块
//
// 公共层：配置、身份、存储、会话、复用、传输。
// home 角色追加指标、凭证、注册表、转发与 home 服务；
// persona 角色追加 persona 客户端。
func buildFxApp(cfg *config.Config, role Role, node *Node, userOpts []fx.Option) *fx.App {
	modules := []fx.Option{
		fx.Supply(cfg),

		identity.Module(),
		storage.Module(),
		session.Module(),
		muxer.Module(),
		stack.Module(),
	}

	switch role {
	case RoleHome:
		modules = append(modules,
			metrics.Module(),
			claims.Module(),
			registry.Module(),
			relay.Module(),
			homesrv.Module(),
			fx.Invoke(injectServer(node)),
		)
	case RolePersona:
		modules = append(modules,
			persona.Module(),
			fx.Invoke(injectClient(node)),
		)
	}
	fxLogger.Debug("组装模块", "role", role, "user_options", len(userOpts))

	modules = append(modules, userOpts...)
	modules = append(modules,
		fx.Invoke(func(svc *identity.Service) { node.identity = svc }),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)
	return fx.New(modules...)
}

func injectServer(node *Node) interface{} {
	return func(srv *homesrv.Server) { node.server = srv }
}

func injectClient(node *Node) interface{} {
	return func(c *persona.Client) { node.client = c }
}
