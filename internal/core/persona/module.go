package persona

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/identity"
	"github.com/dep2p/go-home/internal/core/registry/pairing"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/core/storage"
	"github.com/dep2p/go-home/internal/core/storage/engine"
	"github.com/dep2p/go-home/internal/core/transport"
)

// Params persona 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Identity   *identity.Service
	Transports *transport.Set `optional:"true"`
	Session    session.Options
	Engine     engine.Engine `optional:"true"`
	Clock      clock.Clock   `optional:"true"`
}

// Module 返回 persona Fx 模块
//
// OnStart 加载配对记录并连接配置中的 home，连接失败只记录日志；
// OnStop 关闭全部会话。
func Module() fx.Option {
	return fx.Module("persona",
		fx.Provide(ProvideClient),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideClient 创建客户端，并把身份服务的解析来源设为首选 home
func ProvideClient(p Params) (*Client, error) {
	cfg, err := ConfigFromUnified(p.UnifiedCfg)
	if err != nil {
		return nil, err
	}
	var store pairing.Store
	if p.Engine != nil {
		store = pairing.NewKVStore(storage.NewKVStore(p.Engine, storage.PrefixHomes))
	}
	c, err := New(cfg, Deps{
		Key:        p.Identity.PrivateKey(),
		Identifier: p.Identity.Local().Identifier(),
		Transports: p.Transports,
		Session:    p.Session,
		Store:      store,
		Clock:      p.Clock,
	})
	if err != nil {
		return nil, err
	}
	p.Identity.SetResolver(c.Resolver())
	return c, nil
}

func registerLifecycle(lc fx.Lifecycle, c *Client) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			n, err := c.Load()
			if err != nil {
				log.Warn("加载配对记录出错", "err", err)
			}
			homes, err := c.ConnectAll(ctx)
			if err != nil {
				log.Warn("部分 home 连接失败", "err", err)
			}
			log.Info("persona 已启动", "id", c.Local().ID().ShortString(), "pairings", n, "homes", len(homes))
			return nil
		},
		OnStop: func(context.Context) error {
			return c.Close()
		},
	})
}
