package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-home/config"
	"github.com/dep2p/go-home/internal/core/storage/engine"
	"github.com/dep2p/go-home/internal/core/storage/engine/badger"
	"github.com/dep2p/go-home/internal/core/storage/kv"
	"github.com/dep2p/go-home/internal/util/logger"
)

var log = logger.Logger("storage")

// Params Storage 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 返回 Storage Fx 模块
//
// 提供 engine.Engine；OnStop 时关闭引擎。
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideEngine),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideEngine 根据统一配置打开存储引擎
func ProvideEngine(p Params) (engine.Engine, error) {
	return NewEngine(ConfigFromUnified(p.UnifiedCfg))
}

func registerLifecycle(lc fx.Lifecycle, eng engine.Engine) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("正在关闭存储引擎")
			if err := eng.Close(); err != nil {
				log.Warn("存储引擎关闭失败", "error", err)
				return err
			}
			return nil
		},
	})
}

// NewEngine 根据配置创建存储引擎
func NewEngine(cfg Config) (engine.Engine, error) {
	eng, err := badger.New(cfg.ToEngineConfig())
	if err != nil {
		log.Error("创建存储引擎失败", "path", cfg.Path, "error", err)
		return nil, err
	}
	return eng, nil
}

// NewKVStore 创建带前缀的 KVStore
func NewKVStore(eng engine.Engine, prefix []byte) *kv.Store {
	return kv.New(eng, prefix)
}

// KVStore 是 kv.Store 的类型别名
type KVStore = kv.Store
