package registry

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-home/internal/core/muxer"
	"github.com/dep2p/go-home/internal/core/registry/pairing"
	"github.com/dep2p/go-home/internal/core/storage"
	"github.com/dep2p/go-home/internal/core/storage/engine"
	"github.com/dep2p/go-home/pkg/types"
)

// Params Registry 模块依赖参数
type Params struct {
	fx.In

	Local  types.Identity
	Engine engine.Engine `optional:"true"`
	Clock  clock.Clock   `optional:"true"`
}

// Module 返回 Registry Fx 模块
//
// 有存储引擎时配对记录持久化到 h/p/ 前缀下；OnStart 加载并校验记录，
// OnStop 关闭全部会话。
func Module() fx.Option {
	return fx.Module("registry",
		fx.Provide(ProvideRegistry),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideRegistry 创建 Registry
func ProvideRegistry(p Params) *Registry {
	var store pairing.Store
	if p.Engine != nil {
		store = pairing.NewKVStore(storage.NewKVStore(p.Engine, storage.PrefixPairings))
	}
	return New(p.Local, store, Options{Clock: p.Clock})
}

func registerLifecycle(lc fx.Lifecycle, r *Registry) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			_, _, err := r.Load()
			return err
		},
		OnStop: func(context.Context) error {
			r.CloseAll(muxer.ErrConnClosed)
			return nil
		},
	})
}
